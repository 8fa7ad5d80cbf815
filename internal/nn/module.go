// Package nn implements the layer framework: the capability interfaces every
// module-like value may implement, the reflective derivation that composes
// them over user-declared structs and lists, and the leaf modules and
// combinators networks are assembled from.
//
// A network is declared twice. A configuration tree holds only shapes and
// hyperparameters; building it on a device yields the module tree that owns
// tensors. The two trees are isomorphic: every configuration field maps to
// the built field of the same name.
//
//	type MLPConfig struct {
//	    L1 nn.LinearConfig
//	    A1 nn.ReLU
//	    L2 nn.LinearConfig
//	}
//
//	type MLP struct {
//	    L1 *nn.Linear `nn:"l1,module"`
//	    A1 nn.ReLU    `nn:"a1,module"`
//	    L2 *nn.Linear `nn:"l2,module"`
//	}
//
//	func (c MLPConfig) TryBuild(dev tensor.Device, dt tensor.DataType) (*MLP, error) {
//	    return nn.BuildFields[*MLP](c, dev, dt)
//	}
//
//	func (m *MLP) TryForward(x *tensor.Tensor) (*tensor.Tensor, error) {
//	    return nn.ForwardFields[*tensor.Tensor](m, x)
//	}
//
// Reset, update, gradient zeroing and serialization need no code at all:
// they walk the `nn` struct tags.
package nn

import (
	"github.com/born-ml/layers/internal/tensor"
)

// Builder is implemented by configuration nodes. TryBuild allocates the
// built module's tensors on dev without initializing them; only device
// allocation failures are returned.
type Builder[M any] interface {
	TryBuild(dev tensor.Device, dt tensor.DataType) (M, error)
}

// Module is a value that maps inputs of type X to outputs of type Y.
//
// TryForward must not mutate the module. A module may accept several
// unrelated input types only through distinct types or methods, since Go
// has no overloading.
type Module[X, Y any] interface {
	TryForward(x X) (Y, error)
}

// MutModule is implemented by modules whose training-mode forward differs
// from inference, such as BatchNorm2D updating its running statistics.
type MutModule[X, Y any] interface {
	TryForwardMut(x X) (Y, error)
}

// ParamResetter lets a type take over ResetParams for itself.
type ParamResetter interface {
	TryResetParams() error
}

// ParamUpdater lets a type take over the update pass for itself. Use
// ctx.UpdateParam for every parameter it owns.
type ParamUpdater interface {
	TryUpdateParams(ctx *UpdateContext, path string) error
}

// GradZeroer lets a type take over ZeroGrads for itself.
type GradZeroer interface {
	TryZeroGrads(grads *tensor.Gradients) error
}

// Optimizer updates one parameter in place from its gradient.
type Optimizer interface {
	UpdateTensor(param, grad *tensor.Tensor) error
}

// TryBuildModule builds cfg on dev and resets the resulting parameters.
func TryBuildModule[M any](cfg Builder[M], dev tensor.Device, dt tensor.DataType) (M, error) {
	m, err := cfg.TryBuild(dev, dt)
	if err != nil {
		var zero M
		return zero, err
	}
	if err := TryResetParams(m); err != nil {
		var zero M
		return zero, err
	}
	return m, nil
}

// BuildModule is TryBuildModule that panics on error.
func BuildModule[M any](cfg Builder[M], dev tensor.Device, dt tensor.DataType) M {
	return Must(TryBuildModule(cfg, dev, dt))
}

// TryForwardMut runs the training-mode forward of m when it has one and the
// regular forward otherwise.
func TryForwardMut[Y, X any](m Module[X, Y], x X) (Y, error) {
	if mm, ok := m.(MutModule[X, Y]); ok {
		return mm.TryForwardMut(x)
	}
	return m.TryForward(x)
}

// Forward is TryForward that panics on error.
func Forward[Y, X any](m Module[X, Y], x X) Y {
	return Must(m.TryForward(x))
}

// ForwardMut is TryForwardMut that panics on error.
func ForwardMut[Y, X any](m Module[X, Y], x X) Y {
	return Must(TryForwardMut(m, x))
}

// Must returns v or panics with err.
func Must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
