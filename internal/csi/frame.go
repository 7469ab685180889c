package csi

import "github.com/danmuck/scanlink/internal/wire"

// BitDepth is the sample width of every frame in the pipeline.
const BitDepth = 16

// BytesPerSample is the on-wire size of one pixel sample.
const BytesPerSample = BitDepth / 8

// Frame is a 2D pixel buffer of 16-bit little-endian samples.
type Frame struct {
	Rows int
	Cols int
	Pix  []byte
}

// NewFrame allocates a zeroed frame of the given geometry.
func NewFrame(rows, cols int) (*Frame, error) {
	if rows <= 0 || cols <= 0 || rows > int(^uint16(0)) || cols > int(^uint16(0)) {
		return nil, ErrBadGeometry
	}
	return &Frame{
		Rows: rows,
		Cols: cols,
		Pix:  make([]byte, rows*cols*BytesPerSample),
	}, nil
}

// RowSize returns the byte length of one row.
func (f *Frame) RowSize() int {
	return f.Cols * BytesPerSample
}

// Row returns the byte slice backing row r. The slice aliases Pix.
func (f *Frame) Row(r int) []byte {
	size := f.RowSize()
	return f.Pix[r*size : (r+1)*size]
}

// Sample returns the pixel value at (r, c).
func (f *Frame) Sample(r, c int) uint16 {
	return wire.U16(f.Row(r), c*BytesPerSample)
}

// SetSample stores v at (r, c).
func (f *Frame) SetSample(r, c int, v uint16) {
	wire.PutU16(f.Row(r), c*BytesPerSample, v)
}
