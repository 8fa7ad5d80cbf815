package nn

import (
	"github.com/born-ml/layers/internal/tensor"
)

// Pair carries two inputs through a single forward call.
type Pair[A, B any] struct {
	First  A
	Second B
}

// MakePair returns Pair{a, b}.
func MakePair[A, B any](a A, b B) Pair[A, B] {
	return Pair[A, B]{First: a, Second: b}
}

// FeedForwardConfig configures the position-wise Linear, ReLU, Linear block.
type FeedForwardConfig struct {
	Model, Hidden int
}

type feedForwardFields struct {
	Up   LinearConfig
	Act  ReLU
	Down LinearConfig
}

// TryBuild builds both projections.
func (c FeedForwardConfig) TryBuild(dev tensor.Device, dt tensor.DataType) (*FeedForward, error) {
	return BuildFields[*FeedForward](feedForwardFields{
		Up:   LinearConfig{In: c.Model, Out: c.Hidden},
		Down: LinearConfig{In: c.Hidden, Out: c.Model},
	}, dev, dt)
}

// FeedForward maps (..., model) to (..., model) through a hidden layer.
type FeedForward struct {
	Up   *Linear `nn:"linear1,module"`
	Act  ReLU    `nn:"relu,module"`
	Down *Linear `nn:"linear2,module"`
}

// TryForward runs the three layers in order.
func (f *FeedForward) TryForward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return ForwardFields[*tensor.Tensor](f, x)
}

// EncoderBlockConfig configures one post-norm transformer encoder layer.
type EncoderBlockConfig struct {
	Model, NumHeads, Hidden int
}

type encoderFields struct {
	Attention ResidualAddConfig[*MultiHeadAttention]
	Norm1     LayerNorm1DConfig
	FF        ResidualAddConfig[*FeedForward]
	Norm2     LayerNorm1DConfig
}

// TryBuild builds attention, feed-forward and both norms.
func (c EncoderBlockConfig) TryBuild(dev tensor.Device, dt tensor.DataType) (*EncoderBlock, error) {
	return BuildFields[*EncoderBlock](encoderFields{
		Attention: Residual(MultiHeadAttentionConfig{Embed: c.Model, NumHeads: c.NumHeads}),
		Norm1:     LayerNorm1DConfig{Size: c.Model},
		FF:        Residual(FeedForwardConfig{Model: c.Model, Hidden: c.Hidden}),
		Norm2:     LayerNorm1DConfig{Size: c.Model},
	}, dev, dt)
}

// EncoderBlock is norm2(h + ff(h)) with h = norm1(x + attn(x, x, x)).
type EncoderBlock struct {
	Attention *ResidualAdd[*MultiHeadAttention] `nn:"self_attn,module"`
	Norm1     *LayerNorm1D                      `nn:"norm1,module"`
	FF        *ResidualAdd[*FeedForward]        `nn:"ff,module"`
	Norm2     *LayerNorm1D                      `nn:"norm2,module"`
}

// TryForward runs the encoder layer.
func (e *EncoderBlock) TryForward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return ForwardFields[*tensor.Tensor](e, x)
}

// DecoderBlockConfig configures one post-norm transformer decoder layer.
type DecoderBlockConfig struct {
	Model, NumHeads, Hidden int
}

type decoderFields struct {
	SelfAttention ResidualAddConfig[*MultiHeadAttention]
	Norm1         LayerNorm1DConfig
	CrossAttn     MultiHeadAttentionConfig
	Norm2         LayerNorm1DConfig
	FF            ResidualAddConfig[*FeedForward]
	Norm3         LayerNorm1DConfig
}

// TryBuild builds both attentions, the feed-forward block and three norms.
func (c DecoderBlockConfig) TryBuild(dev tensor.Device, dt tensor.DataType) (*DecoderBlock, error) {
	attn := MultiHeadAttentionConfig{Embed: c.Model, NumHeads: c.NumHeads}
	norm := LayerNorm1DConfig{Size: c.Model}
	return BuildFields[*DecoderBlock](decoderFields{
		SelfAttention: Residual(attn),
		Norm1:         norm,
		CrossAttn:     attn,
		Norm2:         norm,
		FF:            Residual(FeedForwardConfig{Model: c.Model, Hidden: c.Hidden}),
		Norm3:         norm,
	}, dev, dt)
}

// DecoderBlock maps (target, memory) to the next target representation,
// attending to itself and then to the encoder memory.
type DecoderBlock struct {
	SelfAttention *ResidualAdd[*MultiHeadAttention] `nn:"self_attn,module"`
	Norm1         *LayerNorm1D                      `nn:"norm1,module"`
	CrossAttn     *MultiHeadAttention               `nn:"mh_attn,module"`
	Norm2         *LayerNorm1D                      `nn:"norm2,module"`
	FF            *ResidualAdd[*FeedForward]        `nn:"ff,module"`
	Norm3         *LayerNorm1D                      `nn:"norm3,module"`
}

// TryForward runs the decoder layer on in.First attending to in.Second.
func (d *DecoderBlock) TryForward(in Pair[*tensor.Tensor, *tensor.Tensor]) (*tensor.Tensor, error) {
	tgt, mem := in.First, in.Second
	x, err := d.SelfAttention.TryForward(tgt)
	if err != nil {
		return nil, err
	}
	if x, err = d.Norm1.TryForward(x); err != nil {
		return nil, err
	}
	cross, err := d.CrossAttn.Attend(x.Clone(), mem, mem.Clone())
	if err != nil {
		return nil, err
	}
	if x, err = x.Add(cross); err != nil {
		return nil, err
	}
	if x, err = d.Norm2.TryForward(x); err != nil {
		return nil, err
	}
	if x, err = d.FF.TryForward(x); err != nil {
		return nil, err
	}
	return d.Norm3.TryForward(x)
}

// TransformerConfig configures an encoder-decoder transformer.
type TransformerConfig struct {
	Model         int
	NumHeads      int
	EncoderLayers int
	DecoderLayers int
	Hidden        int
}

type transformerFields struct {
	Encoder []EncoderBlockConfig
	Decoder []DecoderBlockConfig
}

// TryBuild builds the encoder and decoder stacks.
func (c TransformerConfig) TryBuild(dev tensor.Device, dt tensor.DataType) (*Transformer, error) {
	f := transformerFields{
		Encoder: make([]EncoderBlockConfig, c.EncoderLayers),
		Decoder: make([]DecoderBlockConfig, c.DecoderLayers),
	}
	for i := range f.Encoder {
		f.Encoder[i] = EncoderBlockConfig{Model: c.Model, NumHeads: c.NumHeads, Hidden: c.Hidden}
	}
	for i := range f.Decoder {
		f.Decoder[i] = DecoderBlockConfig{Model: c.Model, NumHeads: c.NumHeads, Hidden: c.Hidden}
	}
	return BuildFields[*Transformer](f, dev, dt)
}

// Transformer maps (source, target) sequences to target representations.
// The encoder stack folds the source into a memory every decoder layer
// attends to.
type Transformer struct {
	Encoder []*EncoderBlock `nn:"encoder,module"`
	Decoder []*DecoderBlock `nn:"decoder,module"`
}

// TryForward encodes in.First and decodes in.Second against it.
func (t *Transformer) TryForward(in Pair[*tensor.Tensor, *tensor.Tensor]) (*tensor.Tensor, error) {
	mem, err := TryForwardEach(t.Encoder, in.First)
	if err != nil {
		return nil, err
	}
	tgt := in.Second
	for _, d := range t.Decoder {
		if tgt, err = d.TryForward(MakePair(tgt, mem.Clone())); err != nil {
			return nil, err
		}
	}
	return tgt, nil
}
