package service

import (
	"github.com/rs/zerolog"

	"astroreduce/internal/core/domain"
)

// Grouping partitions discovered frames into calibration-compatible sets.
// Every input frame lands in exactly one group and discovery order is kept
// inside each group. Empty input yields a nil map.

// FilterKind returns the frames of one kind, in discovery order.
func FilterKind(frames []*domain.Frame, kind domain.Kind) []*domain.Frame {
	var out []*domain.Frame
	for _, f := range frames {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

// GroupDarks partitions dark frames by rounded exposure time.
func GroupDarks(log zerolog.Logger, darks []*domain.Frame) map[int][]*domain.Frame {
	if len(darks) == 0 {
		return nil
	}
	log.Info().Msg("sorting dark images by exposure time")
	groups := make(map[int][]*domain.Frame)
	for _, dark := range darks {
		key := dark.ExposureKey()
		if _, ok := groups[key]; !ok {
			log.Info().Int("exp_time", key).Msg("found a dark with a new exposure time")
		}
		groups[key] = append(groups[key], dark)
	}
	return groups
}

// GroupFlats partitions flat frames by filter name.
func GroupFlats(log zerolog.Logger, flats []*domain.Frame) map[string][]*domain.Frame {
	if len(flats) == 0 {
		return nil
	}
	log.Info().Msg("sorting flat images by filter")
	groups := make(map[string][]*domain.Frame)
	for _, flat := range flats {
		key := flat.Filter
		if _, ok := groups[key]; !ok {
			log.Info().Str("filter", key).Msg("found a flat with a new filter")
		}
		groups[key] = append(groups[key], flat)
	}
	return groups
}

// GroupLights partitions light frames by object, exact exposure time and
// filter.
func GroupLights(log zerolog.Logger, lights []*domain.Frame) map[domain.LightKey][]*domain.Frame {
	if len(lights) == 0 {
		return nil
	}
	log.Info().Msg("sorting light images by object, exposure time and filter")
	groups := make(map[domain.LightKey][]*domain.Frame)
	for _, light := range lights {
		key := domain.LightKey{Object: light.Object, ExpTime: light.ExpTime, Filter: light.Filter}
		if _, ok := groups[key]; !ok {
			log.Info().
				Str("object", key.Object).
				Float64("exp_time", key.ExpTime).
				Str("filter", key.Filter).
				Msg("found a light of a new group")
		}
		groups[key] = append(groups[key], light)
	}
	return groups
}
