package pipeline

import (
	"context"
	"fmt"
)

// Synthetic is a deterministic staged computation over a fixed-width byte
// tensor. Every stage applies the same keyed byte transform, so running the
// prefix on the host and the suffix on the server produces the same output
// as running all stages in one place. It exists to exercise the transport
// and the sweep without a real model.
type Synthetic struct {
	stages int
	width  int
}

var _ Runner = (*Synthetic)(nil)

// NewSynthetic returns a Synthetic with the given number of stages and
// tensor width in bytes.
func NewSynthetic(stages, width int) (*Synthetic, error) {
	if stages < 2 {
		return nil, fmt.Errorf("synthetic pipeline needs at least 2 stages, got %d", stages)
	}
	if width < 1 {
		return nil, fmt.Errorf("synthetic tensor width must be positive, got %d", width)
	}
	return &Synthetic{stages: stages, width: width}, nil
}

// Stages implements Runner.
func (s *Synthetic) Stages() int { return s.stages }

// Width returns the tensor width in bytes.
func (s *Synthetic) Width() int { return s.width }

// RunPrefix implements Runner.
func (s *Synthetic) RunPrefix(ctx context.Context, item Item, boundary int) ([]byte, error) {
	if err := s.checkBoundary(boundary); err != nil {
		return nil, err
	}
	data := s.tensor(item.Data)
	for n := 0; n < boundary; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		transform(data, n)
	}
	return data, nil
}

// RunSuffix implements Runner.
func (s *Synthetic) RunSuffix(ctx context.Context, boundary int, intermediate []byte) ([]byte, error) {
	if err := s.checkBoundary(boundary); err != nil {
		return nil, err
	}
	if len(intermediate) != s.width {
		return nil, fmt.Errorf("intermediate is %d bytes, want %d", len(intermediate), s.width)
	}
	data := make([]byte, s.width)
	copy(data, intermediate)
	for n := boundary; n < s.stages; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		transform(data, n)
	}
	return data, nil
}

func (s *Synthetic) checkBoundary(boundary int) error {
	if boundary < 1 || boundary >= s.stages {
		return fmt.Errorf("boundary %d out of range [1, %d]", boundary, s.stages-1)
	}
	return nil
}

// tensor copies in into a width-sized buffer, truncating or zero-padding.
func (s *Synthetic) tensor(in []byte) []byte {
	data := make([]byte, s.width)
	copy(data, in)
	return data
}

// transform applies stage n's keyed byte mix to data in place.
func transform(data []byte, n int) {
	k := byte(n*131 + 89)
	for i := range data {
		data[i] = (data[i] ^ k) + byte(i)
	}
}

// MakeItems returns a deterministic work set of n items with width-sized
// tensors. The same (n, width) always produces the same items.
func MakeItems(n, width int) []Item {
	items := make([]Item, n)
	for i := range items {
		data := make([]byte, width)
		for j := range data {
			data[j] = byte((i*31 + j*7) % 251)
		}
		items[i] = Item{Index: i, Data: data}
	}
	return items
}
