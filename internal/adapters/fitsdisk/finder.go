package fitsdisk

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"astroreduce/internal/core/domain"
)

// Find returns all FITS containers under dir as metadata-parsed frames.
// An unreadable directory is logged and reported as "no frames found".
// Files whose header cannot be parsed are skipped with a warning.
func (s *Store) Find(ctx context.Context, dir string, recursive bool) ([]*domain.Frame, error) {
	paths, err := s.listFitsFiles(dir, recursive)
	if err != nil {
		s.log.Error().Err(err).Str("dir", dir).Msg("failed to open directory")
		return nil, nil
	}

	var frames []*domain.Frame
	for _, path := range paths {
		h, err := s.ReadHeader(ctx, path)
		if err != nil {
			s.log.Warn().Err(err).Str("path", path).Msg("skipping unreadable fits image")
			continue
		}
		frame := domain.NewFrame(path)
		frame.ApplyHeader(h)
		s.log.Debug().Str("path", path).Str("kind", frame.Kind.String()).Msg("found fits image")
		frames = append(frames, frame)
	}
	return frames, nil
}

func (s *Store) listFitsFiles(dir string, recursive bool) ([]string, error) {
	var paths []string

	if !recursive {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !e.IsDir() && isFitsName(e.Name()) {
				paths = append(paths, filepath.Join(dir, e.Name()))
			}
		}
		return paths, nil
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isFitsName(d.Name()) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

func isFitsName(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".fits" || ext == ".fts"
}
