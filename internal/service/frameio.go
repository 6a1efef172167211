package service

import (
	"context"
	"fmt"

	"astroreduce/internal/core/domain"
	"astroreduce/internal/core/ports"
)

// saveFrame writes a frame's scalar metadata and pixel data through the
// container codec. The frame's pixel array must be loaded.
func saveFrame(ctx context.Context, codec ports.Codec, frame *domain.Frame) error {
	px, ok := frame.Data()
	if !ok {
		return fmt.Errorf("cannot save %s without pixel data", frame.Path())
	}
	h := domain.Header{}
	frame.FillHeader(h)
	if err := codec.Write(ctx, frame.Path(), h, px); err != nil {
		return fmt.Errorf("failed to save %s: %w", frame.Path(), err)
	}
	return nil
}
