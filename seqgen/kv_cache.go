package seqgen

import "seqgen-go/tensor"

// KVCache stores per-layer key and value tensors whose leading axis is
// the batch row, typically shaped [rows, num_heads, seq_len, head_dim].
// It implements State, so the generation loop can prune it to the rows
// that remain active.
type KVCache struct {
	Keys   []*tensor.Tensor
	Values []*tensor.Tensor
}

// NewKVCache creates an empty cache for the given number of layers.
func NewKVCache(numLayers int) *KVCache {
	return &KVCache{
		Keys:   make([]*tensor.Tensor, numLayers),
		Values: make([]*tensor.Tensor, numLayers),
	}
}

// Layers returns the number of layers in the cache.
func (c *KVCache) Layers() int {
	return len(c.Keys)
}

// GetLayer returns the key and value tensors for a layer.
func (c *KVCache) GetLayer(layerIdx int) (*tensor.Tensor, *tensor.Tensor) {
	if layerIdx < 0 || layerIdx >= len(c.Keys) {
		return nil, nil
	}
	return c.Keys[layerIdx], c.Values[layerIdx]
}

// SetLayer sets the key and value tensors for a layer.
func (c *KVCache) SetLayer(layerIdx int, k, v *tensor.Tensor) {
	if layerIdx >= 0 && layerIdx < len(c.Keys) {
		c.Keys[layerIdx] = k
		c.Values[layerIdx] = v
	}
}

// Rows returns the batch-row count the cache was produced for.
func (c *KVCache) Rows() int {
	for _, k := range c.Keys {
		if k != nil {
			return k.Shape[0]
		}
	}
	return 0
}

// Select returns a cache retaining only the given rows, in order.
func (c *KVCache) Select(rows []int) State {
	out := NewKVCache(len(c.Keys))
	for i := range c.Keys {
		if c.Keys[i] != nil {
			out.Keys[i] = tensor.Gather(c.Keys[i], rows)
		}
		if c.Values[i] != nil {
			out.Values[i] = tensor.Gather(c.Values[i], rows)
		}
	}
	return out
}
