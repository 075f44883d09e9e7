// Command landshark extracts machine learning datasets from raster
// feature stores. The traintest subcommand cuts a patch around every
// target point and splits the records into cross-validation folds; the
// query subcommand sweeps an image strip and writes a patch record for
// every pixel.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dtpc/landshark/pkg/config"
	"github.com/dtpc/landshark/pkg/extract"
	"github.com/dtpc/landshark/pkg/kfold"
	"github.com/dtpc/landshark/pkg/source"
)

func main() {
	log.SetFlags(log.LstdFlags)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "traintest":
		err = runTrainTest(ctx, os.Args[2:])
	case "query":
		err = runQuery(ctx, os.Args[2:])
	case "init-config":
		err = runInitConfig(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", os.Args[1], err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: landshark <traintest|query|init-config> [flags]")
	fmt.Fprintln(os.Stderr, "run 'landshark <subcommand> -h' for subcommand flags")
}

// loadConfig reads the YAML config and applies flag overrides on top.
func loadConfig(path string, override func(cfg *config.Config)) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	override(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// baseName strips the directory and extension from a data file path,
// naming the run after its target or feature file.
func baseName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func runTrainTest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("traintest", flag.ExitOnError)
	featurePath := fs.String("features", "", "HDF5 feature file")
	targetPath := fs.String("targets", "", "HDF5 target file")
	configPath := fs.String("config", "landshark.yaml", "YAML configuration file")
	halfWidth := fs.Int("halfwidth", -1, "patch halfwidth in pixels (overrides config)")
	nWorkers := fs.Int("workers", -1, "number of extraction workers (overrides config)")
	folds := fs.Int("folds", 0, "number of cross-validation folds (overrides config)")
	testFold := fs.Int("testfold", 0, "fold held out for testing (overrides config)")
	seed := fs.Int64("seed", 0, "fold assignment seed (overrides config)")
	fs.Parse(args)

	if *featurePath == "" || *targetPath == "" {
		fs.Usage()
		return fmt.Errorf("both -features and -targets are required")
	}

	cfg, err := loadConfig(*configPath, func(cfg *config.Config) {
		if *halfWidth >= 0 {
			cfg.Extract.HalfWidth = *halfWidth
		}
		if *nWorkers >= 0 {
			cfg.Extract.NWorkers = *nWorkers
		}
		if *folds > 0 {
			cfg.Folds.K = *folds
		}
		if *testFold > 0 {
			cfg.Folds.TestFold = *testFold
		}
		if *seed != 0 {
			cfg.Folds.Seed = *seed
		}
	})
	if err != nil {
		return err
	}

	spec, err := source.ReadImageSpec(*featurePath)
	if err != nil {
		return err
	}
	targets, err := source.OpenTargets(*targetPath)
	if err != nil {
		return err
	}
	defer targets.Close()

	nCon, nCat, err := source.ReadChannelCounts(*featurePath)
	if err != nil {
		return err
	}
	batchSize := config.PointsPerBatch(cfg.Extract.BatchMB, nCon, nCat, cfg.Extract.HalfWidth)

	var folder kfold.Folder
	if cfg.Folds.BlockPixels > 0 {
		folder, err = kfold.NewBlockedKFolder(
			[2]int{spec.Width(), spec.Height()},
			cfg.Folds.BlockPixels, cfg.Folds.K, cfg.Folds.Seed)
	} else {
		folder, err = kfold.NewKFolder(cfg.Folds.K, cfg.Folds.Seed)
	}
	if err != nil {
		return err
	}

	name := baseName(*targetPath)
	dir := fmt.Sprintf("traintest_%s_fold%dof%d", name, cfg.Folds.TestFold, cfg.Folds.K)
	log.Printf("writing training data to %s", dir)

	return extract.WriteTrainingData(ctx, extract.TrainingArgs{
		Name:        name,
		FeaturePath: *featurePath,
		Targets:     targets,
		Spec:        spec,
		HalfWidth:   cfg.Extract.HalfWidth,
		Folds:       folder,
		TestFold:    cfg.Folds.TestFold,
		Dir:         dir,
		BatchSize:   batchSize,
		NWorkers:    cfg.Extract.NWorkers,
	})
}

func runQuery(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	featurePath := fs.String("features", "", "HDF5 feature file")
	configPath := fs.String("config", "landshark.yaml", "YAML configuration file")
	halfWidth := fs.Int("halfwidth", -1, "patch halfwidth in pixels (overrides config)")
	nWorkers := fs.Int("workers", -1, "number of extraction workers (overrides config)")
	strip := fs.Int("strip", 0, "1-based strip index to extract (overrides config)")
	strips := fs.Int("strips", 0, "number of horizontal strips (overrides config)")
	fs.Parse(args)

	if *featurePath == "" {
		fs.Usage()
		return fmt.Errorf("-features is required")
	}

	cfg, err := loadConfig(*configPath, func(cfg *config.Config) {
		if *halfWidth >= 0 {
			cfg.Extract.HalfWidth = *halfWidth
		}
		if *nWorkers >= 0 {
			cfg.Extract.NWorkers = *nWorkers
		}
		if *strips > 0 {
			cfg.Query.Strips = *strips
		}
		if *strip > 0 {
			cfg.Query.Strip = *strip
		}
	})
	if err != nil {
		return err
	}

	spec, err := source.ReadImageSpec(*featurePath)
	if err != nil {
		return err
	}
	nCon, nCat, err := source.ReadChannelCounts(*featurePath)
	if err != nil {
		return err
	}
	rows := config.RowsPerBatch(cfg.Extract.BatchMB, spec.Width(), nCon, nCat, cfg.Extract.HalfWidth)
	batchSize := rows * spec.Width()

	name := baseName(*featurePath)
	tag := fmt.Sprintf("query.%dof%d", cfg.Query.Strip, cfg.Query.Strips)
	dir := fmt.Sprintf("query_%s_strip%dof%d", name, cfg.Query.Strip, cfg.Query.Strips)
	log.Printf("writing query data to %s", dir)

	return extract.WriteQueryData(ctx, extract.QueryArgs{
		Name:        name,
		FeaturePath: *featurePath,
		Spec:        spec,
		StripIndex:  cfg.Query.Strip,
		TotalStrips: cfg.Query.Strips,
		HalfWidth:   cfg.Extract.HalfWidth,
		Dir:         dir,
		Tag:         tag,
		BatchSize:   batchSize,
		NWorkers:    cfg.Extract.NWorkers,
	})
}

func runInitConfig(args []string) error {
	fs := flag.NewFlagSet("init-config", flag.ExitOnError)
	configPath := fs.String("config", "landshark.yaml", "path for the new configuration file")
	fs.Parse(args)

	if err := config.CreateDefaultConfigFile(*configPath); err != nil {
		return err
	}
	log.Printf("wrote default configuration to %s", *configPath)
	return nil
}
