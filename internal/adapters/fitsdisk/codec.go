// Package fitsdisk implements the container and discovery collaborators for
// FITS files on the local filesystem. Only simple primary-HDU images are
// handled: a card-based header followed by a 2-D data array, both padded to
// 2880-byte blocks.
package fitsdisk

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"astroreduce/internal/core/domain"
)

const (
	blockSize = 2880
	cardSize  = 80
)

// Store reads and writes FITS containers and discovers them on disk. It
// implements ports.Codec and ports.Finder.
type Store struct {
	log zerolog.Logger
}

// NewStore creates a new Store.
func NewStore(logger zerolog.Logger) *Store {
	return &Store{log: logger.With().Str("component", "fitsdisk").Logger()}
}

// ReadHeader reads the primary header of the FITS file at path.
func (s *Store) ReadHeader(ctx context.Context, path string) (domain.Header, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fits file %s: %w", path, err)
	}
	h, _, err := parseHeader(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse fits header %s: %w", path, err)
	}
	return h, nil
}

// ReadPixels reads the primary data array of the FITS file at path.
func (s *Store) ReadPixels(ctx context.Context, path string) (domain.Pixels, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fits file %s: %w", path, err)
	}
	h, dataOff, err := parseHeader(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse fits header %s: %w", path, err)
	}
	px, err := parseData(h, raw[dataOff:])
	if err != nil {
		return nil, fmt.Errorf("failed to parse fits data %s: %w", path, err)
	}
	return px, nil
}

// Write persists header and pixels as a 64-bit float FITS image at path.
// The file is written to a temporary sibling and renamed, so an existing
// file is replaced atomically.
func (s *Store) Write(ctx context.Context, path string, h domain.Header, px domain.Pixels) error {
	rows, cols := px.Shape()
	buf := encodeHeader(h, rows, cols)
	buf = append(buf, encodeData(px)...)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write fits file %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close fits file %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace fits file %s: %w", path, err)
	}
	s.log.Debug().Str("path", path).Int("rows", rows).Int("cols", cols).Msg("wrote fits image")
	return nil
}

// parseHeader parses header cards up to END and returns the map plus the
// byte offset where the data unit begins.
func parseHeader(raw []byte) (domain.Header, int, error) {
	h := domain.Header{}
	offset := 0
	for {
		if offset+blockSize > len(raw) {
			return nil, 0, fmt.Errorf("truncated header (no END card in %d bytes)", len(raw))
		}
		block := raw[offset : offset+blockSize]
		offset += blockSize
		for c := 0; c < blockSize; c += cardSize {
			card := string(block[c : c+cardSize])
			key := strings.TrimRight(card[:8], " ")
			if key == "END" {
				return h, offset, nil
			}
			if key == "" || key == "COMMENT" || key == "HISTORY" {
				continue
			}
			if card[8:10] != "= " {
				continue
			}
			h[key] = parseCardValue(card[10:])
		}
	}
}

func parseCardValue(field string) string {
	v := strings.TrimSpace(field)
	if strings.HasPrefix(v, "'") {
		if end := strings.LastIndex(v[1:], "'"); end >= 0 {
			return strings.TrimRight(v[1:1+end], " ")
		}
		return strings.TrimRight(v[1:], " ")
	}
	if i := strings.Index(v, "/"); i >= 0 {
		v = strings.TrimSpace(v[:i])
	}
	return v
}

func headerInt(h domain.Header, key string) (int, error) {
	v, ok := h[key]
	if !ok {
		return 0, fmt.Errorf("missing %s card", key)
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("bad %s card %q: %w", key, v, err)
	}
	return n, nil
}

func headerFloat(h domain.Header, key string, def float64) float64 {
	if v, ok := h[key]; ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

// parseData decodes the primary data unit according to BITPIX, applying
// BSCALE/BZERO when present (unsigned 16-bit camera data is stored as
// BITPIX 16 with BZERO 32768).
func parseData(h domain.Header, raw []byte) (domain.Pixels, error) {
	bitpix, err := headerInt(h, "BITPIX")
	if err != nil {
		return nil, err
	}
	naxis, err := headerInt(h, "NAXIS")
	if err != nil {
		return nil, err
	}
	if naxis != 2 {
		return nil, fmt.Errorf("unsupported NAXIS %d (only 2-D images)", naxis)
	}
	cols, err := headerInt(h, "NAXIS1")
	if err != nil {
		return nil, err
	}
	rows, err := headerInt(h, "NAXIS2")
	if err != nil {
		return nil, err
	}
	bytesPer := abs(bitpix) / 8
	need := rows * cols * bytesPer
	if len(raw) < need {
		return nil, fmt.Errorf("truncated data: need %d bytes, have %d", need, len(raw))
	}
	bscale := headerFloat(h, "BSCALE", 1)
	bzero := headerFloat(h, "BZERO", 0)

	px := make(domain.Pixels, rows)
	i := 0
	for r := 0; r < rows; r++ {
		row := make([]float64, cols)
		for c := 0; c < cols; c++ {
			var v float64
			switch bitpix {
			case 8:
				v = float64(raw[i])
			case 16:
				v = float64(int16(binary.BigEndian.Uint16(raw[i:])))
			case 32:
				v = float64(int32(binary.BigEndian.Uint32(raw[i:])))
			case -32:
				v = float64(math.Float32frombits(binary.BigEndian.Uint32(raw[i:])))
			case -64:
				v = math.Float64frombits(binary.BigEndian.Uint64(raw[i:]))
			default:
				return nil, fmt.Errorf("unsupported BITPIX %d", bitpix)
			}
			row[c] = bzero + bscale*v
			i += bytesPer
		}
		px[r] = row
	}
	return px, nil
}

// structural cards written by encodeHeader; skipped when copying the
// caller's header map so they cannot disagree with the actual data shape.
var structuralKeys = map[string]bool{
	"SIMPLE": true, "BITPIX": true, "NAXIS": true,
	"NAXIS1": true, "NAXIS2": true, "BSCALE": true,
	"BZERO": true, "EXTEND": true, "END": true,
}

func encodeHeader(h domain.Header, rows, cols int) []byte {
	cards := make([]string, 0, 16)
	cards = append(cards,
		logicalCard("SIMPLE", true),
		numberCard("BITPIX", "-64"),
		numberCard("NAXIS", "2"),
		numberCard("NAXIS1", strconv.Itoa(cols)),
		numberCard("NAXIS2", strconv.Itoa(rows)),
	)

	keys := make([]string, 0, len(h))
	for k := range h {
		if !structuralKeys[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		cards = append(cards, valueCard(k, h[k]))
	}
	cards = append(cards, pad("END", cardSize))

	buf := make([]byte, 0, blockSize)
	for _, c := range cards {
		buf = append(buf, c...)
	}
	return padBlock(buf, ' ')
}

func encodeData(px domain.Pixels) []byte {
	rows, cols := px.Shape()
	buf := make([]byte, 0, rows*cols*8)
	var scratch [8]byte
	for _, row := range px {
		for _, v := range row {
			binary.BigEndian.PutUint64(scratch[:], math.Float64bits(v))
			buf = append(buf, scratch[:]...)
		}
	}
	return padBlock(buf, 0)
}

// valueCard renders numeric-looking values as number cards and everything
// else as quoted strings.
func valueCard(key, value string) string {
	if _, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil && value != "" {
		return numberCard(key, strings.TrimSpace(value))
	}
	return stringCard(key, value)
}

func numberCard(key, value string) string {
	return pad(fmt.Sprintf("%-8s= %20s", key, value), cardSize)
}

func stringCard(key, value string) string {
	return pad(fmt.Sprintf("%-8s= '%-8s'", key, value), cardSize)
}

func logicalCard(key string, value bool) string {
	v := "F"
	if value {
		v = "T"
	}
	return numberCard(key, v)
}

func pad(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	return s + strings.Repeat(" ", n-len(s))
}

func padBlock(buf []byte, fill byte) []byte {
	for len(buf)%blockSize != 0 {
		buf = append(buf, fill)
	}
	return buf
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
