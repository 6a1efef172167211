package domain

import (
	"math"
	"path/filepath"
	"strconv"
	"strings"
)

// Header card keys carried between the on-disk container and the derived
// scalar fields of a Frame.
const (
	KeyBinning = "XBINNING"
	KeyCCDTemp = "CCD-TEMP"
	KeyDateObs = "DATE-OBS"
	KeyExpTime = "EXPTIME"
	KeyFilter  = "FILTER"
	KeyObject  = "OBJECT"
)

// Pixels is a 2-D image grid, indexed [row][col].
type Pixels [][]float64

// Shape returns the number of rows and columns.
func (p Pixels) Shape() (rows, cols int) {
	if len(p) == 0 {
		return 0, 0
	}
	return len(p), len(p[0])
}

// Header is the metadata map of one container file.
type Header map[string]string

// Frame is the in-memory record of one exposure: its storage location, a
// lazily loaded pixel grid and header map, and the scalar fields derived from
// the header. Pixels and header load and unload independently; the derived
// scalars stay valid after the header is unloaded.
//
// A Frame is owned by exactly one job or orchestrator step at a time. It is
// not safe for concurrent mutation.
type Frame struct {
	Dir  string
	Name string
	Kind Kind

	// Derived scalar fields, copied out of the header by ApplyHeader.
	Binning int
	CCDTemp float64
	DateObs string
	ExpTime float64
	Filter  string
	Object  string

	pixels    Pixels
	hasPixels bool
	header    Header
	hasHeader bool
}

// NewFrame creates a Frame for the given path. The kind is inferred from the
// file name prefix once and does not change afterwards, except when a master
// frame is synthesized and retagged explicitly.
func NewFrame(path string) *Frame {
	dir := filepath.Dir(path)
	name := filepath.Base(path)
	return &Frame{Dir: dir, Name: name, Kind: KindFromFileName(name)}
}

// Path returns the full on-disk path of the frame.
func (f *Frame) Path() string {
	return filepath.Join(f.Dir, f.Name)
}

// Data returns the pixel grid and whether it is currently loaded.
func (f *Frame) Data() (Pixels, bool) {
	return f.pixels, f.hasPixels
}

// SetData installs a loaded pixel grid. The frame takes ownership.
func (f *Frame) SetData(p Pixels) {
	f.pixels = p
	f.hasPixels = true
}

// UnloadData drops the pixel grid to free memory. The next user must reload
// from disk.
func (f *Frame) UnloadData() {
	f.pixels = nil
	f.hasPixels = false
}

// HeaderMap returns the header map and whether it is currently loaded.
func (f *Frame) HeaderMap() (Header, bool) {
	return f.header, f.hasHeader
}

// SetHeader installs a loaded header map.
func (f *Frame) SetHeader(h Header) {
	f.header = h
	f.hasHeader = true
}

// UnloadHeader drops the header map. Derived scalar fields keep their values.
func (f *Frame) UnloadHeader() {
	f.header = nil
	f.hasHeader = false
}

// ApplyHeader copies the well-known card values into the derived scalar
// fields. Raw light frames with no OBJECT card take their object name from
// the file name prefix.
func (f *Frame) ApplyHeader(h Header) {
	if v, err := strconv.Atoi(strings.TrimSpace(h[KeyBinning])); err == nil {
		f.Binning = v
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(h[KeyCCDTemp]), 64); err == nil {
		f.CCDTemp = v
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(h[KeyExpTime]), 64); err == nil {
		f.ExpTime = v
	}
	if v, ok := h[KeyDateObs]; ok {
		f.DateObs = v
	}
	if v, ok := h[KeyFilter]; ok {
		f.Filter = v
	}
	if v, ok := h[KeyObject]; ok && v != "" {
		f.Object = v
	} else if f.Kind == KindRaw {
		f.Object = objectFromFileName(f.Name)
	}
}

// FillHeader writes the derived scalar fields into h, ready to be persisted.
func (f *Frame) FillHeader(h Header) {
	h[KeyBinning] = strconv.Itoa(f.Binning)
	h[KeyCCDTemp] = strconv.FormatFloat(f.CCDTemp, 'f', -1, 64)
	h[KeyDateObs] = f.DateObs
	h[KeyExpTime] = strconv.FormatFloat(f.ExpTime, 'f', -1, 64)
	h[KeyFilter] = f.Filter
	if f.Object != "" {
		h[KeyObject] = f.Object
	}
}

// CopyValues copies the derived scalar fields from another frame. Master
// frames carry the metadata of their first input.
func (f *Frame) CopyValues(src *Frame) {
	f.Binning = src.Binning
	f.CCDTemp = src.CCDTemp
	f.DateObs = src.DateObs
	f.ExpTime = src.ExpTime
	f.Filter = src.Filter
	f.Object = src.Object
}

// ExposureKey returns the dark group key for this frame's exposure time.
func (f *Frame) ExposureKey() int {
	return ExposureKey(f.ExpTime)
}

// ExposureKey rounds an exposure time to the nearest whole second. Halves
// round away from zero, so a 1.5s exposure keys as 2. The rounding is a
// tolerance policy: 4.96s and 5.04s share a key, 4.6s and 5.4s do not.
func ExposureKey(seconds float64) int {
	return int(math.Round(seconds))
}

// LightKey groups science frames that may share calibration masters.
// Exposure time is the exact header value; rounding applies only when the
// key is matched against a master dark.
type LightKey struct {
	Object  string
	ExpTime float64
	Filter  string
}

func objectFromFileName(name string) string {
	prefix, _, found := strings.Cut(name, "-")
	if !found {
		prefix = strings.TrimSuffix(prefix, filepath.Ext(prefix))
	}
	return prefix
}
