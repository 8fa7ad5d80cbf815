package nn

import (
	"fmt"
	"math"

	"github.com/born-ml/layers/internal/tensor"
)

// MultiHeadAttentionConfig configures scaled dot-product attention over
// NumHeads heads of Embed/NumHeads features each.
type MultiHeadAttentionConfig struct {
	Embed    int
	NumHeads int
}

type attentionFields struct {
	Query, Key, Value, Out LinearConfig
	NumHeads               int
}

// TryBuild builds the four projections. Embed must be divisible by
// NumHeads; anything else panics.
func (c MultiHeadAttentionConfig) TryBuild(dev tensor.Device, dt tensor.DataType) (*MultiHeadAttention, error) {
	if c.NumHeads <= 0 || c.Embed%c.NumHeads != 0 {
		panic(fmt.Sprintf("nn: MultiHeadAttention: embed %d is not divisible by %d heads", c.Embed, c.NumHeads))
	}
	proj := LinearConfig{In: c.Embed, Out: c.Embed}
	return BuildFields[*MultiHeadAttention](attentionFields{
		Query: proj, Key: proj, Value: proj, Out: proj,
		NumHeads: c.NumHeads,
	}, dev, dt)
}

// MultiHeadAttention projects queries, keys and values, attends per head
// and projects the concatenated heads back.
//
// Inputs are (seq, embed) or (batch, seq, embed). Keys and values share a
// sequence length that may differ from the queries'.
type MultiHeadAttention struct {
	Query *Linear `nn:"w_q,module"`
	Key   *Linear `nn:"w_k,module"`
	Value *Linear `nn:"w_v,module"`
	Out   *Linear `nn:"w_o,module"`

	NumHeads int
}

// TryForward is self-attention: Attend(x, x, x).
func (m *MultiHeadAttention) TryForward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return m.Attend(x, x.Clone(), x.Clone())
}

// Attend computes softmax(QKᵀ/√d)·V per head.
func (m *MultiHeadAttention) Attend(q, k, v *tensor.Tensor) (*tensor.Tensor, error) {
	rank := q.Rank()
	if rank != 2 && rank != 3 || k.Rank() != rank || v.Rank() != rank {
		return nil, &RankError{Module: "MultiHeadAttention", Shape: q.Shape(), Want: "(seq, embed) or (batch, seq, embed)"}
	}
	embed := m.Query.MatMul.Weight.Dim(1)
	heads := m.NumHeads
	dHead := embed / heads

	// (..., seq, embed) -> (..., heads, seq, dHead), or its transpose for keys.
	split := func(x *tensor.Tensor, proj *Linear, transposed bool) (*tensor.Tensor, error) {
		y, err := proj.TryForward(x)
		if err != nil {
			return nil, err
		}
		if rank == 2 {
			if y, err = y.Reshape(y.Dim(0), heads, dHead); err != nil {
				return nil, err
			}
			if transposed {
				return y.Permute(1, 2, 0)
			}
			return y.Permute(1, 0, 2)
		}
		if y, err = y.Reshape(y.Dim(0), y.Dim(1), heads, dHead); err != nil {
			return nil, err
		}
		if transposed {
			return y.Permute(0, 2, 3, 1)
		}
		return y.Permute(0, 2, 1, 3)
	}

	qh, err := split(q, m.Query, false)
	if err != nil {
		return nil, err
	}
	kh, err := split(k, m.Key, true)
	if err != nil {
		return nil, err
	}
	vh, err := split(v, m.Value, false)
	if err != nil {
		return nil, err
	}

	scores, err := qh.MatMul(kh)
	if err != nil {
		return nil, err
	}
	if scores, err = scores.MulScalar(1 / math.Sqrt(float64(dHead))); err != nil {
		return nil, err
	}
	weights, err := scores.Softmax()
	if err != nil {
		return nil, err
	}
	out, err := weights.MatMul(vh)
	if err != nil {
		return nil, err
	}

	if rank == 2 {
		if out, err = out.Permute(1, 0, 2); err != nil {
			return nil, err
		}
		out, err = out.Reshape(out.Dim(0), embed)
	} else {
		if out, err = out.Permute(0, 2, 1, 3); err != nil {
			return nil, err
		}
		out, err = out.Reshape(out.Dim(0), out.Dim(1), embed)
	}
	if err != nil {
		return nil, err
	}
	return m.Out.TryForward(out)
}
