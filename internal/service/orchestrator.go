package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"astroreduce/internal/config"
	"astroreduce/internal/core/domain"
	"astroreduce/internal/core/ports"
	"astroreduce/internal/jobs"
)

// Orchestrator sequences the reduction pipeline: discover frames, group
// them, synthesize master darks and flats, then correct the science lights.
// Each phase dispatches one job per frame group through a bounded worker
// pool and waits for the drain before the next phase starts.
type Orchestrator struct {
	finder    ports.Finder
	codec     ports.Codec
	corrector *Corrector
	synth     *Synthesizer
	cfg       config.Config
	log       zerolog.Logger

	corrected atomic.Int64
	skipped   atomic.Int64
}

// Summary reports what one run produced.
type Summary struct {
	MasterDarkGroups int
	MasterFlatGroups int
	CorrectedImages  int64
	SkippedGroups    int64
	CompletedAt      time.Time
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(finder ports.Finder, codec ports.Codec, cfg config.Config, logger zerolog.Logger) *Orchestrator {
	corrector := NewCorrector(codec, logger)
	return &Orchestrator{
		finder:    finder,
		codec:     codec,
		corrector: corrector,
		synth:     NewSynthesizer(codec, corrector, logger),
		cfg:       cfg,
		log:       logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Run executes the pipeline at the configured level: 0 runs all three
// phases, 1 reuses existing master darks, 2 reuses existing master darks
// and flats. The light phase always runs.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{}

	if o.cfg.Level < 1 {
		fmt.Printf("Creating master darks in %s from %s\n", o.cfg.MasterDarkDir, o.cfg.DarkDir)
		summary.MasterDarkGroups = o.darkPhase(ctx)
	}
	mdarks := GroupDarks(o.log, o.discover(ctx, o.cfg.MasterDarkDir, domain.KindMasterDark))

	if o.cfg.Level < 2 {
		fmt.Printf("Creating master flats in %s from %s\n", o.cfg.MasterFlatDir, o.cfg.FlatDir)
		summary.MasterFlatGroups = o.flatPhase(ctx, mdarks)
	}
	mflats := GroupFlats(o.log, o.discover(ctx, o.cfg.MasterFlatDir, domain.KindMasterFlat))

	fmt.Printf("Correcting light images from %s\n", o.cfg.LightDir)
	fmt.Printf("             with darks from %s\n", o.cfg.MasterDarkDir)
	fmt.Printf("              and flats from %s\n", o.cfg.MasterFlatDir)
	o.lightPhase(ctx, mdarks, mflats)

	summary.CorrectedImages = o.corrected.Load()
	summary.SkippedGroups = o.skipped.Load()
	summary.CompletedAt = time.Now().UTC()
	o.log.Info().
		Int64("corrected", summary.CorrectedImages).
		Int64("skipped_groups", summary.SkippedGroups).
		Msg("reduction finished")
	return summary, nil
}

// darkPhase synthesizes one master dark per exposure group and returns the
// number of groups dispatched.
func (o *Orchestrator) darkPhase(ctx context.Context) int {
	groups := GroupDarks(o.log, o.discover(ctx, o.cfg.DarkDir, domain.KindDark))
	if len(groups) == 0 {
		o.log.Warn().Str("dir", o.cfg.DarkDir).Msg("no darks are available to median combine")
		return 0
	}

	queue := jobs.New(o.log)
	for key, group := range groups {
		darks := group
		queue.Push(fmt.Sprintf("master-dark exp=%d", key), func() error {
			_, err := o.synth.CreateMasterDark(ctx, darks, o.cfg.MasterDarkDir)
			return err
		})
	}
	queue.Start(o.cfg.Workers)
	queue.Wait()
	return len(groups)
}

// flatPhase synthesizes one master flat per filter group and returns the
// number of groups dispatched.
func (o *Orchestrator) flatPhase(ctx context.Context, mdarks map[int][]*domain.Frame) int {
	groups := GroupFlats(o.log, o.discover(ctx, o.cfg.FlatDir, domain.KindFlat))
	if len(groups) == 0 {
		o.log.Warn().Str("dir", o.cfg.FlatDir).Msg("no flats are available to median combine")
		return 0
	}

	o.preloadMasterDarks(ctx, mdarks)
	queue := jobs.New(o.log)
	for filter, group := range groups {
		flats := group
		queue.Push(fmt.Sprintf("master-flat filter=%s", filter), func() error {
			_, err := o.synth.CreateMasterFlat(ctx, flats, mdarks, o.cfg.MasterFlatDir)
			return err
		})
	}
	queue.Start(o.cfg.Workers)
	queue.Wait()
	unloadMasterGroups(mdarks)
	return len(groups)
}

// lightPhase corrects every science group against its matching masters.
func (o *Orchestrator) lightPhase(ctx context.Context, mdarks map[int][]*domain.Frame, mflats map[string][]*domain.Frame) {
	groups := GroupLights(o.log, o.discover(ctx, o.cfg.LightDir, domain.KindRaw))
	if len(groups) == 0 {
		o.log.Error().Str("dir", o.cfg.LightDir).Msg("no images available to correct")
		return
	}
	if len(mdarks) == 0 {
		o.log.Warn().Msg("no master darks available")
	}
	if len(mflats) == 0 {
		o.log.Warn().Msg("no master flats available")
	}
	if len(mdarks) == 0 && len(mflats) == 0 {
		o.log.Warn().Msg("no corrections possible, skipping all light images")
		return
	}

	o.preloadMasterDarks(ctx, mdarks)
	o.preloadMasterFlats(ctx, mflats)
	queue := jobs.New(o.log)
	for key, group := range groups {
		k, lights := key, group
		queue.Push(fmt.Sprintf("correct object=%s exp=%v filter=%s", k.Object, k.ExpTime, k.Filter), func() error {
			return o.correctGroup(ctx, k, lights, mdarks, mflats)
		})
	}
	queue.Start(o.cfg.Workers)
	queue.Wait()
	unloadMasterGroups(mdarks)
	for _, group := range mflats {
		unloadAll(group)
	}
}

// correctGroup resolves the group's masters and writes one corrected frame
// per light. Each group matches its own filter and exposure independently;
// with only one master resolvable that correction alone is applied, and with
// neither the group is skipped outright.
func (o *Orchestrator) correctGroup(ctx context.Context, key domain.LightKey, lights []*domain.Frame, mdarks map[int][]*domain.Frame, mflats map[string][]*domain.Frame) error {
	var mdark, mflat *domain.Frame
	if group := mdarks[domain.ExposureKey(key.ExpTime)]; len(group) > 0 {
		mdark = group[0]
	}
	if group := mflats[key.Filter]; len(group) > 0 {
		mflat = group[0]
	}

	if mdark == nil && mflat == nil {
		o.skipped.Add(1)
		o.log.Warn().
			Str("object", key.Object).
			Float64("exp_time", key.ExpTime).
			Str("filter", key.Filter).
			Msg("skipping group with no matching master dark or flat")
		return nil
	}

	for _, img := range lights {
		outPath := filepath.Join(o.cfg.OutputDir, domain.CorrectedName(img))

		if mdark != nil {
			if err := o.corrector.DarkCorrect(ctx, img, mdark); err != nil {
				o.log.Warn().Err(err).Str("path", img.Path()).Msg("skipping light that failed dark correction")
				img.UnloadData()
				continue
			}
		} else {
			o.log.Warn().Float64("exp_time", key.ExpTime).Str("path", img.Path()).Msg("no master dark found for light")
		}
		if mflat != nil {
			if err := o.corrector.FlatCorrect(ctx, img, mflat); err != nil {
				o.log.Warn().Err(err).Str("path", img.Path()).Msg("skipping light that failed flat correction")
				img.UnloadData()
				continue
			}
		} else {
			o.log.Warn().Str("filter", key.Filter).Str("path", img.Path()).Msg("no master flat found for light")
		}

		px, err := o.corrector.LoadData(ctx, img)
		if err != nil {
			o.log.Warn().Err(err).Str("path", img.Path()).Msg("skipping unreadable light")
			continue
		}

		out := domain.NewFrame(outPath)
		out.CopyValues(img)
		out.Kind = domain.KindCorrected
		out.SetData(px)
		if err := saveFrame(ctx, o.codec, out); err != nil {
			o.log.Error().Err(err).Str("path", outPath).Msg("failed to save corrected image")
			img.UnloadData()
			continue
		}
		out.UnloadData()
		img.UnloadData()
		o.corrected.Add(1)
		o.log.Info().Str("path", outPath).Float64("exp_time", key.ExpTime).Str("filter", key.Filter).Msg("corrected image")
	}
	return nil
}

// discover lists dir recursively and keeps frames of one kind. Discovery
// failures surface as an empty result.
func (o *Orchestrator) discover(ctx context.Context, dir string, kind domain.Kind) []*domain.Frame {
	frames, err := o.finder.Find(ctx, dir, true)
	if err != nil {
		o.log.Warn().Err(err).Str("dir", dir).Msg("treating unreadable directory as empty")
		return nil
	}
	return FilterKind(frames, kind)
}

// preloadMasterDarks loads the pixel data of each group's first master dark
// before jobs are dispatched, so concurrent workers only ever read the
// shared master frames. A master that cannot be read is pruned from the
// lookup and the affected groups fall back to partial correction.
func (o *Orchestrator) preloadMasterDarks(ctx context.Context, mdarks map[int][]*domain.Frame) {
	for key, group := range mdarks {
		if len(group) == 0 {
			delete(mdarks, key)
			continue
		}
		if _, err := o.corrector.LoadData(ctx, group[0]); err != nil {
			o.log.Warn().Err(err).Str("path", group[0].Path()).Msg("dropping unreadable master dark")
			delete(mdarks, key)
		}
	}
}

func (o *Orchestrator) preloadMasterFlats(ctx context.Context, mflats map[string][]*domain.Frame) {
	for key, group := range mflats {
		if len(group) == 0 {
			delete(mflats, key)
			continue
		}
		if _, err := o.corrector.LoadData(ctx, group[0]); err != nil {
			o.log.Warn().Err(err).Str("path", group[0].Path()).Msg("dropping unreadable master flat")
			delete(mflats, key)
		}
	}
}

func unloadMasterGroups(groups map[int][]*domain.Frame) {
	for _, group := range groups {
		unloadAll(group)
	}
}
