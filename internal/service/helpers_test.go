package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"astroreduce/internal/core/domain"
)

// memCodec is an in-memory ports.Codec for tests. Reads hand out deep
// copies so in-place corrections never leak back into the "disk" copy.
type memCodec struct {
	mu    sync.Mutex
	files map[string]memFile
}

type memFile struct {
	header domain.Header
	pixels domain.Pixels
}

func newMemCodec() *memCodec {
	return &memCodec{files: make(map[string]memFile)}
}

func (m *memCodec) put(path string, h domain.Header, px domain.Pixels) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = memFile{header: cloneHeader(h), pixels: clonePixels(px)}
}

func (m *memCodec) ReadHeader(ctx context.Context, path string) (domain.Header, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", path)
	}
	return cloneHeader(f.header), nil
}

func (m *memCodec) ReadPixels(ctx context.Context, path string) (domain.Pixels, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", path)
	}
	return clonePixels(f.pixels), nil
}

func (m *memCodec) Write(ctx context.Context, path string, h domain.Header, px domain.Pixels) error {
	m.put(path, h, px)
	return nil
}

func cloneHeader(h domain.Header) domain.Header {
	out := make(domain.Header, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

func clonePixels(px domain.Pixels) domain.Pixels {
	out := make(domain.Pixels, len(px))
	for r, row := range px {
		out[r] = append([]float64(nil), row...)
	}
	return out
}

func nopLogger() zerolog.Logger {
	return zerolog.Nop()
}

// grid fills a rows x cols pixel grid from a base value with per-cell steps,
// keeping test arrays readable.
func grid(rows, cols int, base, rowStep, colStep float64) domain.Pixels {
	px := make(domain.Pixels, rows)
	for r := 0; r < rows; r++ {
		row := make([]float64, cols)
		for c := 0; c < cols; c++ {
			row[c] = base + float64(r)*rowStep + float64(c)*colStep
		}
		px[r] = row
	}
	return px
}

// addHot returns a copy of px with one hot pixel added at (r, c).
func addHot(px domain.Pixels, r, c int, offset float64) domain.Pixels {
	out := clonePixels(px)
	out[r][c] += offset
	return out
}

// addGrids returns the element-wise sum of two same-shape grids.
func addGrids(a, b domain.Pixels) domain.Pixels {
	out := clonePixels(a)
	for r := range out {
		for c := range out[r] {
			out[r][c] += b[r][c]
		}
	}
	return out
}

// loadedFrame builds a frame whose pixel data is already resident.
func loadedFrame(path string, px domain.Pixels) *domain.Frame {
	f := domain.NewFrame(path)
	f.SetData(clonePixels(px))
	return f
}

// diskFrame builds a frame whose pixel data lives only in the codec.
func diskFrame(codec *memCodec, path string, px domain.Pixels) *domain.Frame {
	codec.put(path, domain.Header{}, px)
	return domain.NewFrame(path)
}
