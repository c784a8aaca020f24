package embedding

import (
	"context"
	"crypto/md5"
	"encoding/hex"
)

// HashEmbedder derives a deterministic vector from the MD5 digest of the
// text. It needs no network and has the same width as the real models, so
// the whole pipeline runs offline.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder returns a HashEmbedder producing dims components.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &HashEmbedder{dims: dims}
}

// Embed cycles the 32 hex digits of the digest; each digit d maps to d/15 - 0.5.
func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sum := md5.Sum([]byte(text))
	digest := hex.EncodeToString(sum[:])

	v := make([]float32, h.dims)
	for i := range v {
		v[i] = float32(float64(hexVal(digest[i%len(digest)]))/15.0 - 0.5)
	}
	return v, nil
}

func (h *HashEmbedder) Dimensions() int { return h.dims }

func (h *HashEmbedder) Model() string { return "md5-hash" }

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	}
	return 0
}
