package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"astroreduce/internal/adapters/fitsdisk"
	"astroreduce/internal/config"
	"astroreduce/internal/service"
)

const version = "0.2.0"

func main() {
	// Environment (and .env file) provide the defaults; flags override.
	cfg := config.Load()

	lightDir := flag.String("light-dir", cfg.LightDir, "Uncorrected light images directory")
	darkDir := flag.String("dark-dir", cfg.DarkDir, "Raw dark images directory")
	mdarkDir := flag.String("mdark-dir", cfg.MasterDarkDir, "Master dark images directory")
	flatDir := flag.String("flat-dir", cfg.FlatDir, "Raw flat images directory")
	mflatDir := flag.String("mflat-dir", cfg.MasterFlatDir, "Master flat images directory")
	outputDir := flag.String("output-dir", cfg.OutputDir, "Corrected images output directory")
	level := flag.Int("level", cfg.Level,
		"Run level: 0 processes darks, flats and lights; 1 reuses existing master darks; 2 reuses existing master darks and flats")
	workers := flag.Int("workers", cfg.Workers, "Worker count (0 = one per CPU core)")
	verbose := flag.Bool("verbose", cfg.Verbose, "Print log messages for every processed frame")
	showVersion := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("astroreduce v%s\n", version)
		return
	}
	if *level < 0 || *level > 2 {
		fmt.Fprintf(os.Stderr, "invalid run level %d (must be 0, 1 or 2)\n", *level)
		flag.Usage()
		os.Exit(1)
	}

	cfg.LightDir = *lightDir
	cfg.DarkDir = *darkDir
	cfg.MasterDarkDir = *mdarkDir
	cfg.FlatDir = *flatDir
	cfg.MasterFlatDir = *mflatDir
	cfg.OutputDir = *outputDir
	cfg.Level = *level
	cfg.Workers = *workers
	cfg.Verbose = *verbose

	logger := config.NewLogger(cfg.Verbose)

	// Initialize the on-disk collaborator and the pipeline.
	store := fitsdisk.NewStore(logger)
	orchestrator := service.NewOrchestrator(store, store, cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := orchestrator.Run(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("reduction failed")
		os.Exit(1)
	}

	fmt.Println("\n=== Reduction Summary ===")
	fmt.Printf("Master dark groups: %d\n", summary.MasterDarkGroups)
	fmt.Printf("Master flat groups: %d\n", summary.MasterFlatGroups)
	fmt.Printf("Corrected images:   %d\n", summary.CorrectedImages)
	fmt.Printf("Skipped groups:     %d\n", summary.SkippedGroups)
	fmt.Printf("Completed At:       %s\n", summary.CompletedAt.Format("2006-01-02 15:04:05 UTC"))
}
