package ports

import (
	"context"

	"astroreduce/internal/core/domain"
)

// Codec defines the contract for reading and writing image container files.
type Codec interface {
	// ReadHeader reads the metadata map of the container at path.
	ReadHeader(ctx context.Context, path string) (domain.Header, error)

	// ReadPixels reads the pixel grid of the container at path.
	ReadPixels(ctx context.Context, path string) (domain.Pixels, error)

	// Write persists header and pixels to path, overwriting any existing
	// file. Writes are atomic per file.
	Write(ctx context.Context, path string, h domain.Header, px domain.Pixels) error
}

// Finder defines the contract for discovering container files on disk.
type Finder interface {
	// Find returns all recognized image containers under dir as
	// metadata-parsed frames, optionally recursing into subdirectories.
	// An unreadable directory is reported as an empty result, not an
	// error; callers treat a nil slice as "no frames found".
	Find(ctx context.Context, dir string, recursive bool) ([]*domain.Frame, error)
}
