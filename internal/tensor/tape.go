package tensor

import (
	"fmt"
	"sync/atomic"
)

// Tape records differentiable operations for reverse-mode differentiation.
//
// A tape travels with the tensors it records: an operation whose inputs carry
// a tape appends itself to that tape and hands it to its output. When values
// recorded on two different tapes meet, the tapes are merged. A Tape is not
// safe for concurrent use.
type Tape struct {
	merged *Tape
	grads  *Gradients
	ops    []tapeOp
}

// backwardFunc maps the output gradient to one gradient per input.
// A nil entry means the input receives no gradient.
type backwardFunc func(gOut *Tensor) ([]*Tensor, error)

type tapeOp struct {
	seq      uint64
	name     string
	out      *Tensor
	inputs   []*Tensor
	backward backwardFunc
}

var opSeq atomic.Uint64

// NewTape returns a tape that accumulates into grads.
// A nil grads starts an empty store.
func NewTape(grads *Gradients) *Tape {
	if grads == nil {
		grads = NewGradients()
	}
	return &Tape{grads: grads}
}

// Len returns the number of recorded operations.
func (tp *Tape) Len() int {
	return len(tp.root().ops)
}

// Gradients returns the store backward accumulates into.
func (tp *Tape) Gradients() *Gradients {
	return tp.root().grads
}

func (tp *Tape) root() *Tape {
	for tp.merged != nil {
		tp = tp.merged
	}
	return tp
}

// merge folds other into tp, keeping recording order.
func (tp *Tape) merge(other *Tape) *Tape {
	a, b := tp.root(), other.root()
	if a == b {
		return a
	}
	ops := make([]tapeOp, 0, len(a.ops)+len(b.ops))
	i, j := 0, 0
	for i < len(a.ops) && j < len(b.ops) {
		if a.ops[i].seq < b.ops[j].seq {
			ops = append(ops, a.ops[i])
			i++
		} else {
			ops = append(ops, b.ops[j])
			j++
		}
	}
	ops = append(ops, a.ops[i:]...)
	ops = append(ops, b.ops[j:]...)
	a.ops = ops

	for id, g := range b.grads.grads {
		if _, ok := a.grads.grads[id]; !ok {
			a.grads.grads[id] = g
		}
	}
	b.ops = nil
	b.merged = a
	return a
}

// Trace returns a clone of t that records operations onto a new tape
// accumulating into grads. A nil grads starts an empty store.
func (t *Tensor) Trace(grads *Gradients) *Tensor {
	c := t.Clone()
	c.tape = NewTape(grads)
	return c
}

// TraceNew is Trace with a fresh gradient store.
func (t *Tensor) TraceNew() *Tensor {
	return t.Trace(nil)
}

// HasTape reports whether operations on t are recorded.
func (t *Tensor) HasTape() bool {
	return t.tape != nil
}

// Tape returns the tape carried by t, or nil.
func (t *Tensor) Tape() *Tape {
	if t.tape == nil {
		return nil
	}
	return t.tape.root()
}

// SplitTape separates t into an untaped clone and its tape.
func (t *Tensor) SplitTape() (*Tensor, *Tape) {
	tp := t.Tape()
	c := t.Clone()
	c.tape = nil
	return c, tp
}

// PutTape returns a clone of t carrying tp. A nil tp detaches the clone.
func (t *Tensor) PutTape(tp *Tape) *Tensor {
	c := t.Clone()
	c.tape = tp
	return c
}

// Retaped returns a clone of t carrying the tape of like. Parameters are
// retaped onto an input before ops that would otherwise see no tape.
func (t *Tensor) Retaped(like *Tensor) *Tensor {
	return t.PutTape(like.Tape())
}

// Detach returns an untaped clone of t.
func (t *Tensor) Detach() *Tensor {
	c, _ := t.SplitTape()
	return c
}

// record attaches out to the combined tape of inputs and appends the
// operation. It is a no-op when no input carries a tape.
func record(name string, out *Tensor, inputs []*Tensor, backward backwardFunc) {
	var tp *Tape
	for _, in := range inputs {
		if in.tape == nil {
			continue
		}
		if tp == nil {
			tp = in.tape.root()
		} else {
			tp = tp.merge(in.tape)
		}
	}
	if tp == nil {
		return
	}

	detached := make([]*Tensor, len(inputs))
	for i, in := range inputs {
		detached[i] = in.Detach()
	}
	tp.ops = append(tp.ops, tapeOp{
		seq:      opSeq.Add(1),
		name:     name,
		out:      out.Detach(),
		inputs:   detached,
		backward: backward,
	})
	out.tape = tp
}

// Backward computes gradients of t with respect to every tensor recorded on
// its tape, seeding dt/dt with ones. The tape is consumed.
//
// Gradients of intermediate operation outputs are dropped; the returned store
// holds gradients for leaf tensors (parameters and traced inputs) only.
func (t *Tensor) Backward() (*Gradients, error) {
	if t.tape == nil {
		return nil, ErrNoTape
	}
	tp := t.tape.root()
	grads := tp.grads

	seed, err := Ones(t.dev, t.dtype, t.shape...)
	if err != nil {
		return nil, err
	}
	if err := grads.accumulate(t, seed); err != nil {
		return nil, err
	}

	for i := len(tp.ops) - 1; i >= 0; i-- {
		op := tp.ops[i]
		gOut, ok := grads.GetByID(op.out.id)
		if !ok {
			continue
		}
		gIns, err := op.backward(gOut)
		if err != nil {
			return nil, fmt.Errorf("tensor: backward of %s: %w", op.name, err)
		}
		for j, in := range op.inputs {
			if j >= len(gIns) || gIns[j] == nil {
				continue
			}
			if err := grads.accumulate(in, gIns[j]); err != nil {
				return nil, fmt.Errorf("tensor: backward of %s: %w", op.name, err)
			}
		}
	}

	for _, op := range tp.ops {
		grads.Remove(op.out.id)
	}
	tp.ops = nil
	return grads, nil
}
