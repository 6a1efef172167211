package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"astroreduce/internal/core/domain"
)

func newSynthesizer(codec *memCodec) *Synthesizer {
	return NewSynthesizer(codec, NewCorrector(codec, nopLogger()), nopLogger())
}

func TestMedianCombineRemovesHotPixels(t *testing.T) {
	codec := newMemCodec()
	s := newSynthesizer(codec)

	base := grid(3, 3, 100, 10, 1)
	var frames []*domain.Frame
	for i := 0; i < 6; i++ {
		// Each frame carries one distinct hot pixel.
		px := addHot(base, i/3, i%3, 500)
		frames = append(frames, diskFrame(codec, fmt.Sprintf("/darks/Dark-%03d.fts", i), px))
	}

	out, err := s.MedianCombine(context.Background(), frames)
	require.NoError(t, err)
	assert.Equal(t, base, out)
}

func TestMedianCombineOddStack(t *testing.T) {
	codec := newMemCodec()
	s := newSynthesizer(codec)

	frames := []*domain.Frame{
		diskFrame(codec, "/darks/Dark-001.fts", domain.Pixels{{1, 9}}),
		diskFrame(codec, "/darks/Dark-002.fts", domain.Pixels{{5, 3}}),
		diskFrame(codec, "/darks/Dark-003.fts", domain.Pixels{{2, 7}}),
	}
	out, err := s.MedianCombine(context.Background(), frames)
	require.NoError(t, err)
	assert.Equal(t, domain.Pixels{{2, 7}}, out)
}

func TestMedianCombineEvenStackAveragesMiddles(t *testing.T) {
	codec := newMemCodec()
	s := newSynthesizer(codec)

	frames := []*domain.Frame{
		diskFrame(codec, "/darks/Dark-001.fts", domain.Pixels{{1}}),
		diskFrame(codec, "/darks/Dark-002.fts", domain.Pixels{{2}}),
		diskFrame(codec, "/darks/Dark-003.fts", domain.Pixels{{3}}),
		diskFrame(codec, "/darks/Dark-004.fts", domain.Pixels{{10}}),
	}
	out, err := s.MedianCombine(context.Background(), frames)
	require.NoError(t, err)
	assert.Equal(t, domain.Pixels{{2.5}}, out)
}

func TestMedianCombineShapeMismatch(t *testing.T) {
	codec := newMemCodec()
	s := newSynthesizer(codec)

	frames := []*domain.Frame{
		diskFrame(codec, "/darks/Dark-001.fts", domain.Pixels{{1, 2}}),
		diskFrame(codec, "/darks/Dark-002.fts", domain.Pixels{{1, 2}, {3, 4}}),
	}
	_, err := s.MedianCombine(context.Background(), frames)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestMedianCombineEmpty(t *testing.T) {
	codec := newMemCodec()
	s := newSynthesizer(codec)
	_, err := s.MedianCombine(context.Background(), nil)
	assert.Error(t, err)
}

func TestCreateMasterDark(t *testing.T) {
	codec := newMemCodec()
	s := newSynthesizer(codec)
	ctx := context.Background()

	base := grid(3, 3, 100, 10, 1)
	var darks []*domain.Frame
	for i := 0; i < 6; i++ {
		f := diskFrame(codec, fmt.Sprintf("/darks/Dark-%03d.fts", i), addHot(base, i/3, i%3, 500))
		f.ExpTime = 1.0
		f.Filter = "Clear"
		f.Binning = 2
		f.CCDTemp = -20
		f.DateObs = "2017-05-21T04:23:11"
		darks = append(darks, f)
	}

	mdark, err := s.CreateMasterDark(ctx, darks, "/mdarks")
	require.NoError(t, err)

	assert.Equal(t, "/mdarks/MDark-Exp1s0.fts", mdark.Path())
	assert.Equal(t, domain.KindMasterDark, mdark.Kind)
	assert.Equal(t, 1.0, mdark.ExpTime)
	assert.Equal(t, "Clear", mdark.Filter)

	// Inputs and output are unloaded after the save.
	for _, d := range darks {
		_, loaded := d.Data()
		assert.False(t, loaded)
	}
	_, loaded := mdark.Data()
	assert.False(t, loaded)

	// The persisted master equals the base array: the median removed every
	// single-frame hot pixel.
	saved, err := codec.ReadPixels(ctx, mdark.Path())
	require.NoError(t, err)
	assert.Equal(t, base, saved)

	h, err := codec.ReadHeader(ctx, mdark.Path())
	require.NoError(t, err)
	assert.Equal(t, "1", h[domain.KeyExpTime])
	assert.Equal(t, "Clear", h[domain.KeyFilter])
}

func TestCreateMasterDarkEmptyGroup(t *testing.T) {
	codec := newMemCodec()
	s := newSynthesizer(codec)
	_, err := s.CreateMasterDark(context.Background(), nil, "/mdarks")
	assert.Error(t, err)
}

func masterDarkLookup(codec *memCodec, exp float64, px domain.Pixels) map[int][]*domain.Frame {
	f := diskFrame(codec, "/mdarks/"+domain.MasterDarkName(exp), px)
	f.ExpTime = exp
	return map[int][]*domain.Frame{domain.ExposureKey(exp): {f}}
}

func TestCreateMasterFlat(t *testing.T) {
	codec := newMemCodec()
	s := newSynthesizer(codec)
	ctx := context.Background()

	flatBase := domain.Pixels{{2, 4, 4}, {6, 4, 2}, {4, 4, 6}} // median 4
	darkBase := grid(3, 3, 100, 10, 1)
	mdarks := masterDarkLookup(codec, 1.0, darkBase)

	var flats []*domain.Frame
	for i := 0; i < 6; i++ {
		px := addHot(addGrids(flatBase, darkBase), i/3, i%3, 500)
		f := diskFrame(codec, fmt.Sprintf("/flats/Flat-%03d.fts", i), px)
		f.ExpTime = 1.0
		f.Filter = "Clear"
		flats = append(flats, f)
	}

	mflat, err := s.CreateMasterFlat(ctx, flats, mdarks, "/mflats")
	require.NoError(t, err)
	assert.Equal(t, "/mflats/MFlat-Clear.fts", mflat.Path())
	assert.Equal(t, domain.KindMasterFlat, mflat.Kind)

	saved, err := codec.ReadPixels(ctx, mflat.Path())
	require.NoError(t, err)
	for r := range flatBase {
		for c := range flatBase[r] {
			assert.InDelta(t, flatBase[r][c]/4.0, saved[r][c], 1e-9)
		}
	}
	assert.InDelta(t, 1.0, globalMedian(saved), 1e-9)
}

func TestCreateMasterFlatDropsUnmatchedExposures(t *testing.T) {
	codec := newMemCodec()
	s := newSynthesizer(codec)
	ctx := context.Background()

	darkBase := grid(2, 2, 10, 1, 1)
	mdarks := masterDarkLookup(codec, 1.0, darkBase)

	matched := diskFrame(codec, "/flats/Flat-001.fts", addGrids(domain.Pixels{{2, 2}, {2, 2}}, darkBase))
	matched.ExpTime = 1.0
	matched.Filter = "Clear"
	unmatched := diskFrame(codec, "/flats/Flat-002.fts", domain.Pixels{{9, 9}, {9, 9}})
	unmatched.ExpTime = 30.0
	unmatched.Filter = "Clear"

	mflat, err := s.CreateMasterFlat(ctx, []*domain.Frame{matched, unmatched}, mdarks, "/mflats")
	require.NoError(t, err)

	// Only the matched flat contributes: dark-corrected to a uniform 2,
	// normalized to a uniform 1.
	saved, err := codec.ReadPixels(ctx, mflat.Path())
	require.NoError(t, err)
	assert.Equal(t, domain.Pixels{{1, 1}, {1, 1}}, saved)
}

func TestCreateMasterFlatAllDropped(t *testing.T) {
	codec := newMemCodec()
	s := newSynthesizer(codec)

	mdarks := masterDarkLookup(codec, 1.0, domain.Pixels{{0}})
	flat := diskFrame(codec, "/flats/Flat-001.fts", domain.Pixels{{5}})
	flat.ExpTime = 30.0
	flat.Filter = "Red"

	_, err := s.CreateMasterFlat(context.Background(), []*domain.Frame{flat}, mdarks, "/mflats")
	require.Error(t, err)

	_, readErr := codec.ReadPixels(context.Background(), "/mflats/MFlat-Red.fts")
	assert.Error(t, readErr, "no master flat may be written for a fully dropped group")
}

func TestCreateMasterFlatWithoutAnyMasterDarks(t *testing.T) {
	// With no master darks at all the correction step is skipped and the
	// flats combine as-is.
	codec := newMemCodec()
	s := newSynthesizer(codec)
	ctx := context.Background()

	flat := diskFrame(codec, "/flats/Flat-001.fts", domain.Pixels{{2, 4}, {4, 8}})
	flat.ExpTime = 30.0
	flat.Filter = "Clear"

	mflat, err := s.CreateMasterFlat(ctx, []*domain.Frame{flat}, nil, "/mflats")
	require.NoError(t, err)

	saved, err := codec.ReadPixels(ctx, mflat.Path())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, globalMedian(saved), 1e-9)
}
