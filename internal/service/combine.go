package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"astroreduce/internal/core/domain"
	"astroreduce/internal/core/ports"
)

// Synthesizer combines groups of same-key calibration frames into master
// frames by per-pixel median stacking.
type Synthesizer struct {
	codec     ports.Codec
	corrector *Corrector
	log       zerolog.Logger
}

// NewSynthesizer creates a new Synthesizer.
func NewSynthesizer(codec ports.Codec, corrector *Corrector, logger zerolog.Logger) *Synthesizer {
	return &Synthesizer{
		codec:     codec,
		corrector: corrector,
		log:       logger.With().Str("component", "synthesizer").Logger(),
	}
}

// MedianCombine loads every input frame and computes the element-wise median
// across the stack. All inputs must share one shape; a mismatch fails the
// whole combine.
func (s *Synthesizer) MedianCombine(ctx context.Context, frames []*domain.Frame) (domain.Pixels, error) {
	if len(frames) == 0 {
		return nil, errors.New("no images to median combine")
	}

	stack := make([]domain.Pixels, 0, len(frames))
	for _, f := range frames {
		px, err := s.corrector.LoadData(ctx, f)
		if err != nil {
			return nil, err
		}
		if len(stack) > 0 {
			if err := checkShape(stack[0], px); err != nil {
				return nil, fmt.Errorf("median combine %s: %w", f.Path(), err)
			}
		}
		stack = append(stack, px)
	}

	rows, cols := stack[0].Shape()
	out := make(domain.Pixels, rows)
	vals := make([]float64, len(stack))
	for r := 0; r < rows; r++ {
		row := make([]float64, cols)
		for c := 0; c < cols; c++ {
			for i, px := range stack {
				vals[i] = px[r][c]
			}
			row[c] = median(vals)
		}
		out[r] = row
	}
	s.log.Info().Int("count", len(stack)).Msg("median combined images")
	return out, nil
}

// CreateMasterDark median-combines one exposure group of darks and writes
// the master to outDir, carrying the first input's metadata.
func (s *Synthesizer) CreateMasterDark(ctx context.Context, darks []*domain.Frame, outDir string) (*domain.Frame, error) {
	if len(darks) == 0 {
		return nil, errors.New("no darks available to create master dark")
	}
	path := filepath.Join(outDir, domain.MasterDarkName(darks[0].ExpTime))

	px, err := s.MedianCombine(ctx, darks)
	unloadAll(darks)
	if err != nil {
		return nil, fmt.Errorf("master dark %s: %w", path, err)
	}

	mdark := domain.NewFrame(path)
	mdark.CopyValues(darks[0])
	mdark.Kind = domain.KindMasterDark
	mdark.SetData(px)
	if err := s.save(ctx, mdark); err != nil {
		return nil, err
	}
	mdark.UnloadData()
	s.log.Info().Float64("exp_time", darks[0].ExpTime).Str("path", path).Msg("created master dark")
	return mdark, nil
}

// CreateMasterFlat dark-corrects one filter group of flats against the
// master dark lookup, median-combines the survivors and normalizes the
// result so its whole-frame median is 1.0.
//
// A flat with no matching-exposure master dark is dropped with a warning,
// not treated as fatal; when no master darks exist at all the correction
// step is skipped entirely and the flats combine as-is. A group reduced to
// zero flats yields no master flat and is reported.
func (s *Synthesizer) CreateMasterFlat(ctx context.Context, flats []*domain.Frame, mdarks map[int][]*domain.Frame, outDir string) (*domain.Frame, error) {
	if len(flats) == 0 {
		return nil, errors.New("no flats available to create master flat")
	}
	filter := flats[0].Filter
	path := filepath.Join(outDir, domain.MasterFlatName(filter))

	survivors := s.darkCorrectFlats(ctx, flats, mdarks)
	if len(survivors) == 0 {
		unloadAll(flats)
		return nil, fmt.Errorf("no flats left to combine for filter=%s after dropping unmatched exposures", filter)
	}

	px, err := s.MedianCombine(ctx, survivors)
	unloadAll(flats)
	if err != nil {
		return nil, fmt.Errorf("master flat %s: %w", path, err)
	}

	med := globalMedian(px)
	for r := range px {
		for c := range px[r] {
			px[r][c] /= med
		}
	}

	mflat := domain.NewFrame(path)
	mflat.CopyValues(survivors[0])
	mflat.Kind = domain.KindMasterFlat
	mflat.SetData(px)
	if err := s.save(ctx, mflat); err != nil {
		return nil, err
	}
	mflat.UnloadData()
	s.log.Info().Str("filter", filter).Str("path", path).Msg("created master flat")
	return mflat, nil
}

// darkCorrectFlats corrects each flat against the master dark matching its
// rounded exposure and returns the flats that found a match.
func (s *Synthesizer) darkCorrectFlats(ctx context.Context, flats []*domain.Frame, mdarks map[int][]*domain.Frame) []*domain.Frame {
	if len(mdarks) == 0 {
		s.log.Warn().Str("filter", flats[0].Filter).Msg("no master darks available to dark correct flats")
		return flats
	}
	survivors := make([]*domain.Frame, 0, len(flats))
	for _, flat := range flats {
		key := flat.ExposureKey()
		group, ok := mdarks[key]
		if !ok || len(group) == 0 {
			s.log.Warn().Int("exp_time", key).Str("path", flat.Path()).Msg("dropping flat without matching dark")
			flat.UnloadData()
			continue
		}
		if err := s.corrector.DarkCorrect(ctx, flat, group[0]); err != nil {
			s.log.Warn().Err(err).Str("path", flat.Path()).Msg("dropping flat that failed dark correction")
			flat.UnloadData()
			continue
		}
		survivors = append(survivors, flat)
	}
	return survivors
}

func (s *Synthesizer) save(ctx context.Context, frame *domain.Frame) error {
	return saveFrame(ctx, s.codec, frame)
}

// median of vals; for an even count, the mean of the two middle values.
// vals is sorted in place.
func median(vals []float64) float64 {
	sort.Float64s(vals)
	n := len(vals)
	if n%2 == 1 {
		return vals[n/2]
	}
	return (vals[n/2-1] + vals[n/2]) / 2
}

// globalMedian is the scalar median over every pixel of one frame.
func globalMedian(px domain.Pixels) float64 {
	rows, cols := px.Shape()
	flat := make([]float64, 0, rows*cols)
	for _, row := range px {
		flat = append(flat, row...)
	}
	return median(flat)
}

func unloadAll(frames []*domain.Frame) {
	for _, f := range frames {
		f.UnloadData()
	}
}
