package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"astroreduce/internal/core/domain"
	"astroreduce/internal/core/ports"
)

// ErrShapeMismatch reports pixel grids that cannot be combined element-wise.
var ErrShapeMismatch = errors.New("pixel array shape mismatch")

// Corrector applies master calibration frames to single frames. Both
// operands' pixel arrays are loaded on demand; the corrected result replaces
// the target frame's pixel array in place.
type Corrector struct {
	codec ports.Codec
	log   zerolog.Logger
}

// NewCorrector creates a new Corrector.
func NewCorrector(codec ports.Codec, logger zerolog.Logger) *Corrector {
	return &Corrector{codec: codec, log: logger.With().Str("component", "corrector").Logger()}
}

// DarkCorrect subtracts the dark's pixel array from the frame's, element-wise.
// When both a dark and a flat correction apply, the dark must come first:
// master flats are themselves dark-corrected before normalization, and lights
// have to match that reference.
func (c *Corrector) DarkCorrect(ctx context.Context, frame, dark *domain.Frame) error {
	if frame == nil || dark == nil {
		return errors.New("attempted to dark correct with a missing image")
	}
	c.log.Info().Str("image", frame.Path()).Str("dark", dark.Path()).Msg("dark correcting image")

	img, err := c.LoadData(ctx, frame)
	if err != nil {
		return err
	}
	sub, err := c.LoadData(ctx, dark)
	if err != nil {
		return err
	}
	if err := checkShape(img, sub); err != nil {
		return fmt.Errorf("dark correct %s: %w", frame.Path(), err)
	}
	for r := range img {
		for col := range img[r] {
			img[r][col] -= sub[r][col]
		}
	}
	return nil
}

// FlatCorrect divides the frame's pixel array by the flat's, element-wise.
// A normalized master flat has median 1.0 and no zero pixels by construction.
func (c *Corrector) FlatCorrect(ctx context.Context, frame, flat *domain.Frame) error {
	if frame == nil || flat == nil {
		return errors.New("attempted to flat correct with a missing image")
	}
	c.log.Info().Str("image", frame.Path()).Str("flat", flat.Path()).Msg("flat correcting image")

	img, err := c.LoadData(ctx, frame)
	if err != nil {
		return err
	}
	div, err := c.LoadData(ctx, flat)
	if err != nil {
		return err
	}
	if err := checkShape(img, div); err != nil {
		return fmt.Errorf("flat correct %s: %w", frame.Path(), err)
	}
	for r := range img {
		for col := range img[r] {
			img[r][col] /= div[r][col]
		}
	}
	return nil
}

// LoadData returns the frame's pixel array, reading it from disk if it is
// not already resident.
func (c *Corrector) LoadData(ctx context.Context, frame *domain.Frame) (domain.Pixels, error) {
	if px, ok := frame.Data(); ok {
		return px, nil
	}
	px, err := c.codec.ReadPixels(ctx, frame.Path())
	if err != nil {
		return nil, fmt.Errorf("failed to load pixel data for %s: %w", frame.Path(), err)
	}
	frame.SetData(px)
	return px, nil
}

func checkShape(a, b domain.Pixels) error {
	ar, ac := a.Shape()
	br, bc := b.Shape()
	if ar != br || ac != bc {
		return fmt.Errorf("%w: %dx%d vs %dx%d", ErrShapeMismatch, ar, ac, br, bc)
	}
	return nil
}
