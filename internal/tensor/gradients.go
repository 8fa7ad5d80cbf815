package tensor

import (
	"fmt"
	"slices"
)

// Gradients maps tensor identities to gradient tensors.
//
// A gradient always has the shape and data type of the tensor it belongs
// to. Gradients is not safe for concurrent use.
type Gradients struct {
	grads map[UniqueID]*Tensor
}

// NewGradients returns an empty gradient store.
func NewGradients() *Gradients {
	return &Gradients{grads: make(map[UniqueID]*Tensor)}
}

// Get returns the gradient recorded for t, if any.
func (g *Gradients) Get(t *Tensor) (*Tensor, bool) {
	return g.GetByID(t.id)
}

// GetByID returns the gradient recorded for id, if any.
func (g *Gradients) GetByID(id UniqueID) (*Tensor, bool) {
	grad, ok := g.grads[id]
	return grad, ok
}

// GetOrAlloc returns the gradient for t, allocating zeros if absent.
func (g *Gradients) GetOrAlloc(t *Tensor) (*Tensor, error) {
	if grad, ok := g.grads[t.id]; ok {
		return grad, nil
	}
	grad, err := like(t, t.shape)
	if err != nil {
		return nil, err
	}
	g.grads[t.id] = grad
	return grad, nil
}

// Remove drops the gradient recorded for id.
func (g *Gradients) Remove(id UniqueID) {
	delete(g.grads, id)
}

// Len returns the number of recorded gradients.
func (g *Gradients) Len() int {
	return len(g.grads)
}

// IDs returns the recorded identities in ascending order.
func (g *Gradients) IDs() []UniqueID {
	ids := make([]UniqueID, 0, len(g.grads))
	for id := range g.grads {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// accumulate adds grad into the entry for t.
func (g *Gradients) accumulate(t *Tensor, grad *Tensor) error {
	if !t.shape.Equal(grad.shape) {
		return fmt.Errorf("tensor: gradient for %d: %w", t.id, shapeErr("accumulate", "", t.shape, grad.shape))
	}
	dst, err := g.GetOrAlloc(t)
	if err != nil {
		return err
	}
	return dst.Axpy(1, grad)
}
