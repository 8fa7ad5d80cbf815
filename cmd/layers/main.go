// Package main provides the layers CLI.
package main

import (
	"fmt"
	"log"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/born-ml/layers/internal/serialization"
	"github.com/born-ml/layers/internal/tensor"
)

const version = "v0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("layers %s\n", version)
	case "inspect":
		if len(os.Args) != 3 {
			log.Fatalf("usage: layers inspect <file.safetensors>")
		}
		if err := inspect(os.Args[2]); err != nil {
			log.Fatal(err)
		}
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println("layers - composable neural network layers for Go")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  version                 Show version")
	fmt.Println("  inspect <file>          List the records of a saved module")
}

// inspect prints every record of a safetensors file with its dtype, shape
// and element count, followed by the header metadata.
func inspect(path string) error {
	f, err := serialization.OpenFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDTYPE\tSHAPE\tELEMENTS")
	total := 0
	for _, r := range f.Records() {
		fmt.Fprintf(w, "%s\t%s\t%v\t%d\n", r.Name, r.DType, tensor.Shape(r.Shape), r.NumElements())
		total += r.NumElements()
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d records, %d elements\n", len(f.Records()), total)

	meta := f.Metadata()
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%s: %s\n", k, meta[k])
	}
	return nil
}
