// Package source owns the pixel-generation collaborator: deterministic
// synthetic frame producers for driving the pipeline in tests and the
// simulator. The protocol stack consumes any PixelSource; real sensor
// front ends implement the same interface.
package source

import (
	"errors"
	"sync"

	"github.com/danmuck/scanlink/internal/csi"
)

var ErrExhausted = errors.New("source: frame budget exhausted")

// PixelSource yields raw frame buffers of known geometry and bit depth.
type PixelSource interface {
	Geometry() (rows, cols, bitDepth int)
	Next() (*csi.Frame, error)
}

// Pattern generates deterministic gradient frames: sample (r, c) of
// frame n is r*cols + c + n*offsetStep, wrapped to 16 bits, so any two
// frames differ and reconstruction errors are position-attributable.
// Safe for concurrent use.
type Pattern struct {
	rows int
	cols int
	max  int // <= 0 means unbounded

	mu      sync.Mutex
	emitted int
}

const offsetStep = 257

// NewPattern creates a gradient source emitting at most maxFrames
// frames; maxFrames <= 0 means unbounded.
func NewPattern(rows, cols, maxFrames int) (*Pattern, error) {
	if rows <= 0 || cols <= 0 {
		return nil, csi.ErrBadGeometry
	}
	return &Pattern{rows: rows, cols: cols, max: maxFrames}, nil
}

func (p *Pattern) Geometry() (rows, cols, bitDepth int) {
	return p.rows, p.cols, csi.BitDepth
}

func (p *Pattern) Next() (*csi.Frame, error) {
	p.mu.Lock()
	if p.max > 0 && p.emitted >= p.max {
		p.mu.Unlock()
		return nil, ErrExhausted
	}
	n := p.emitted
	p.emitted++
	p.mu.Unlock()

	frame, err := csi.NewFrame(p.rows, p.cols)
	if err != nil {
		return nil, err
	}
	base := uint16(n * offsetStep)
	for r := range p.rows {
		for c := range p.cols {
			frame.SetSample(r, c, base+uint16(r*p.cols+c))
		}
	}
	return frame, nil
}
