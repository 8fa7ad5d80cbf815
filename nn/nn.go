// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"reflect"

	"github.com/born-ml/layers/internal/nn"
	"github.com/born-ml/layers/internal/serialization"
	"github.com/born-ml/layers/tensor"
)

// Capability interfaces

// Builder is implemented by configuration nodes.
type Builder[M any] = nn.Builder[M]

// Module maps inputs of type X to outputs of type Y.
type Module[X, Y any] = nn.Module[X, Y]

// MutModule is implemented by modules with a distinct training forward.
type MutModule[X, Y any] = nn.MutModule[X, Y]

// TensorModule is a module from tensors to tensors.
type TensorModule = nn.TensorModule

// ParamResetter lets a type take over parameter reset.
type ParamResetter = nn.ParamResetter

// ParamUpdater lets a type take over the update pass.
type ParamUpdater = nn.ParamUpdater

// GradZeroer lets a type take over gradient zeroing.
type GradZeroer = nn.GradZeroer

// Optimizer updates one parameter from its gradient.
type Optimizer = nn.Optimizer

// UpdateContext carries one update pass.
type UpdateContext = nn.UpdateContext

// NamedParam is a parameter and its path.
type NamedParam = nn.NamedParam

// Record is one serialized tensor or scalar.
type Record = serialization.Record

// Errors

// ErrUnusedParams matches any *UnusedParamsError.
var ErrUnusedParams = nn.ErrUnusedParams

// Error types.
type (
	MissingParam      = nn.MissingParam
	UnusedParamsError = nn.UnusedParamsError
	StructureError    = nn.StructureError
	ChainError        = nn.ChainError
	RankError         = nn.RankError
)

// Parameter file errors. ContentError matches its kind with errors.Is;
// FileError unwraps to the underlying IO error.
type (
	FileError    = serialization.FileError
	ContentError = serialization.ContentError
)

// Content error kinds returned by Load and Unflatten.
var (
	ErrMissingTensor    = serialization.ErrMissingTensor
	ErrShapeMismatch    = serialization.ErrShapeMismatch
	ErrDTypeMismatch    = serialization.ErrDTypeMismatch
	ErrMalformed        = serialization.ErrMalformed
	ErrChecksumMismatch = serialization.ErrChecksumMismatch
)

// Derivation

// BuildFields derives TryBuild for a struct module from a mirroring
// configuration struct.
func BuildFields[M any](cfg any, dev tensor.Device, dt tensor.DataType) (M, error) {
	return nn.BuildFields[M](cfg, dev, dt)
}

// ForwardFields derives TryForward by chaining module fields in order.
func ForwardFields[Y, X any](agg any, x X) (Y, error) {
	return nn.ForwardFields[Y](agg, x)
}

// ForwardFieldsMut is ForwardFields in training mode.
func ForwardFieldsMut[Y, X any](agg any, x X) (Y, error) {
	return nn.ForwardFieldsMut[Y](agg, x)
}

// ResolveChain checks a forward chain and returns its output type.
func ResolveChain(agg, in reflect.Type, mut bool) (reflect.Type, error) {
	return nn.ResolveChain(agg, in, mut)
}

// TryForwardEach folds x through mods in order.
func TryForwardEach[M Module[X, X], X any](mods []M, x X) (X, error) {
	return nn.TryForwardEach(mods, x)
}

// TryForwardEachMut is TryForwardEach in training mode.
func TryForwardEachMut[M Module[X, X], X any](mods []M, x X) (X, error) {
	return nn.TryForwardEachMut(mods, x)
}

// Lifecycle

// TryBuildModule builds cfg on dev and resets the parameters.
func TryBuildModule[M any](cfg Builder[M], dev tensor.Device, dt tensor.DataType) (M, error) {
	return nn.TryBuildModule(cfg, dev, dt)
}

// BuildModule is TryBuildModule that panics on error.
func BuildModule[M any](cfg Builder[M], dev tensor.Device, dt tensor.DataType) M {
	return nn.BuildModule(cfg, dev, dt)
}

// TryResetParams re-initializes every parameter and buffer of m.
func TryResetParams(m any) error { return nn.TryResetParams(m) }

// ResetParams is TryResetParams that panics on error.
func ResetParams(m any) { nn.ResetParams(m) }

// ResetFields resets the tagged fields of m, bypassing its ParamResetter.
func ResetFields(m any) error { return nn.ResetFields(m) }

// TryUpdate applies opt to every parameter of m with a gradient.
func TryUpdate(opt Optimizer, m any, grads *tensor.Gradients) error {
	return nn.TryUpdate(opt, m, grads)
}

// Update is TryUpdate that panics on error.
func Update(opt Optimizer, m any, grads *tensor.Gradients) { nn.Update(opt, m, grads) }

// TryZeroGrads ensures a zero-filled gradient for every parameter.
func TryZeroGrads(m any, grads *tensor.Gradients) error { return nn.TryZeroGrads(m, grads) }

// ZeroGrads is TryZeroGrads that panics on error.
func ZeroGrads(m any, grads *tensor.Gradients) { nn.ZeroGrads(m, grads) }

// TryAllocGrads returns a zeroed gradient table for m.
func TryAllocGrads(m any) (*tensor.Gradients, error) { return nn.TryAllocGrads(m) }

// AllocGrads is TryAllocGrads that panics on error.
func AllocGrads(m any) *tensor.Gradients { return nn.AllocGrads(m) }

// Params lists the trainable parameters of m.
func Params(m any) ([]NamedParam, error) { return nn.Params(m) }

// NumParams counts the trainable scalars of m.
func NumParams(m any) int { return nn.NumParams(m) }

// Forward is TryForward that panics on error.
func Forward[Y, X any](m Module[X, Y], x X) Y { return nn.Forward(m, x) }

// TryForwardMut runs the training forward when m has one.
func TryForwardMut[Y, X any](m Module[X, Y], x X) (Y, error) { return nn.TryForwardMut(m, x) }

// ForwardMut is TryForwardMut that panics on error.
func ForwardMut[Y, X any](m Module[X, Y], x X) Y { return nn.ForwardMut(m, x) }

// Must returns v or panics with err.
func Must[T any](v T, err error) T { return nn.Must(v, err) }

// Serialization

// Flatten lists the saved state of m as records.
func Flatten(m any) ([]Record, error) { return nn.Flatten(m) }

// Unflatten overwrites the state of m from records.
func Unflatten(m any, records []Record) error { return nn.Unflatten(m, records) }

// Save writes m to a safetensors file.
func Save(path string, m any) error { return nn.Save(path, m) }

// Load reads a safetensors file into m.
func Load(path string, m any) error { return nn.Load(path, m) }

// Layers

type (
	MatMulConfig = nn.MatMulConfig
	MatMul       = nn.MatMul

	Bias1DConfig = nn.Bias1DConfig
	Bias1D       = nn.Bias1D
	Bias2DConfig = nn.Bias2DConfig
	Bias2D       = nn.Bias2D

	// Linear is x·W + b.
	LinearConfig = nn.LinearConfig
	Linear       = nn.Linear

	Conv2DConfig = nn.Conv2DConfig
	Conv2D       = nn.Conv2D

	BatchNorm2DConfig = nn.BatchNorm2DConfig
	BatchNorm2D       = nn.BatchNorm2D
	LayerNorm1DConfig = nn.LayerNorm1DConfig
	LayerNorm1D       = nn.LayerNorm1D

	MaxPool2D     = nn.MaxPool2D
	AvgPool2D     = nn.AvgPool2D
	MinPool2D     = nn.MinPool2D
	AvgPoolGlobal = nn.AvgPoolGlobal
	Flatten2D     = nn.Flatten2D
	Reshape       = nn.Reshape
)

// Activations
type (
	ReLU    = nn.ReLU
	Tanh    = nn.Tanh
	Sigmoid = nn.Sigmoid
	Square  = nn.Square
	Softmax = nn.Softmax
)

// Combinators

// ResidualAddConfig configures x + Block(x).
type ResidualAddConfig[M TensorModule] = nn.ResidualAddConfig[M]

// ResidualAdd computes x + Block(x).
type ResidualAdd[M TensorModule] = nn.ResidualAdd[M]

// Residual wraps block in a skip connection.
//
// Example:
//
//	block := nn.Residual(nn.LinearConfig{In: 64, Out: 64})
func Residual[M TensorModule](block Builder[M]) ResidualAddConfig[M] {
	return nn.Residual(block)
}

// GeneralizedAddConfig configures T(x) + U(x).
type GeneralizedAddConfig[A, B TensorModule] = nn.GeneralizedAddConfig[A, B]

// GeneralizedAdd computes T(x) + U(x).
type GeneralizedAdd[A, B TensorModule] = nn.GeneralizedAdd[A, B]

// Generalized sums two branches over the same input.
func Generalized[A, B TensorModule](t Builder[A], u Builder[B]) GeneralizedAddConfig[A, B] {
	return nn.Generalized(t, u)
}

// Pair carries two inputs through one forward call.
type Pair[A, B any] = nn.Pair[A, B]

// MakePair returns Pair{a, b}.
func MakePair[A, B any](a A, b B) Pair[A, B] { return nn.MakePair(a, b) }

// Transformer blocks
type (
	MultiHeadAttentionConfig = nn.MultiHeadAttentionConfig
	MultiHeadAttention       = nn.MultiHeadAttention
	FeedForwardConfig        = nn.FeedForwardConfig
	FeedForward              = nn.FeedForward
	EncoderBlockConfig       = nn.EncoderBlockConfig
	EncoderBlock             = nn.EncoderBlock
	DecoderBlockConfig       = nn.DecoderBlockConfig
	DecoderBlock             = nn.DecoderBlock
	TransformerConfig        = nn.TransformerConfig
	Transformer              = nn.Transformer
)

// Defaults for normalization layers.
const (
	DefaultEpsilon  = nn.DefaultEpsilon
	DefaultMomentum = nn.DefaultMomentum
)
