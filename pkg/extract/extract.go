package extract

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sort"

	"github.com/dtpc/landshark/internal/models"
	"github.com/dtpc/landshark/pkg/image"
	"github.com/dtpc/landshark/pkg/kfold"
	"github.com/dtpc/landshark/pkg/record"
	"github.com/dtpc/landshark/pkg/source"
)

// TrainingArgs configures one training extraction run.
type TrainingArgs struct {
	Name        string
	FeaturePath string
	Targets     source.Targets
	Spec        image.Spec
	HalfWidth   int
	Folds       kfold.Folder
	TestFold    int
	Dir         string
	BatchSize   int
	NWorkers    int
}

func (a *TrainingArgs) validate() error {
	if a.BatchSize < 1 {
		return fmt.Errorf("batch size must be positive, got %d", a.BatchSize)
	}
	if a.HalfWidth < 0 {
		return fmt.Errorf("patch halfwidth must be >= 0, got %d", a.HalfWidth)
	}
	if a.NWorkers < 0 {
		return fmt.Errorf("worker count must be >= 0, got %d", a.NWorkers)
	}
	if k := a.Folds.NumFolds(); a.TestFold < 1 || a.TestFold > k {
		return fmt.Errorf("test fold %d out of range [1, %d]", a.TestFold, k)
	}
	return nil
}

// WriteTrainingData extracts a patch for every target point, splits the
// records into training and test sets by fold, and writes both to rolling
// record files under args.Dir. Fold assignment happens in the sink, in
// submission order, so the labelling is deterministic for a fixed seed and
// batch size regardless of worker count.
func WriteTrainingData(ctx context.Context, args TrainingArgs) error {
	if err := args.validate(); err != nil {
		return err
	}
	n := args.Targets.Len()
	slices := batchSlices(args.BatchSize, n)
	log.Printf("extracting %d target points in %d batches", n, len(slices))

	trainWriter, err := record.NewMultiFileWriter(args.Dir, "train")
	if err != nil {
		return err
	}
	testWriter, err := record.NewMultiFileWriter(filepath.Join(args.Dir, "testing"), "test")
	if err != nil {
		return err
	}

	// The target handle stays confined to the producer; only plain batch
	// values cross into the pool.
	var readErr error
	cursor := 0
	next := func() (*models.TargetBatch, bool) {
		if readErr != nil || cursor >= len(slices) {
			return nil, false
		}
		batch, err := args.Targets.ReadRows(slices[cursor])
		if err != nil {
			readErr = fmt.Errorf("reading targets %d-%d: %w",
				slices[cursor].Start, slices[cursor].Stop, err)
			return nil, false
		}
		cursor++
		return batch, true
	}
	factory := func() Worker[*models.TargetBatch, TrainingResult] {
		return &TrainingProcessor{
			FeaturePath: args.FeaturePath,
			Spec:        args.Spec,
			HalfWidth:   args.HalfWidth,
		}
	}
	sink := func(res TrainingResult) error {
		folds := args.Folds.Assign(res.Indices)
		train, test := record.SplitByFold(res.Records, folds, args.TestFold)
		if err := trainWriter.Add(train); err != nil {
			return err
		}
		return testWriter.Add(test)
	}

	if err := RunOrdered(ctx, args.NWorkers, next, factory, sink); err != nil {
		trainWriter.Close()
		testWriter.Close()
		return err
	}
	if readErr != nil {
		trainWriter.Close()
		testWriter.Close()
		return readErr
	}
	if err := trainWriter.Close(); err != nil {
		return err
	}
	if err := testWriter.Close(); err != nil {
		return err
	}
	logFoldCounts(args.Folds, args.TestFold)
	log.Printf("wrote %d training and %d test records for %s",
		trainWriter.Records(), testWriter.Records(), args.Name)
	return nil
}

func logFoldCounts(folds kfold.Folder, testFold int) {
	counts := folds.Counts()
	props := folds.Proportions()
	labels := make([]int, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Ints(labels)
	for _, label := range labels {
		marker := ""
		if label == testFold {
			marker = " (test)"
		}
		log.Printf("fold %d: %d points (%.1f%%)%s", label, counts[label], 100*props[label-1], marker)
	}
}

// QueryArgs configures one query extraction run over a single image strip.
type QueryArgs struct {
	Name        string
	FeaturePath string
	Spec        image.Spec
	StripIndex  int
	TotalStrips int
	HalfWidth   int
	Dir         string
	Tag         string
	BatchSize   int
	NWorkers    int
}

// WriteQueryData extracts a patch for every pixel of one horizontal strip
// of the image, in row-major order, and writes the records to rolling
// record files under args.Dir.
func WriteQueryData(ctx context.Context, args QueryArgs) error {
	if args.HalfWidth < 0 {
		return fmt.Errorf("patch halfwidth must be >= 0, got %d", args.HalfWidth)
	}
	if args.NWorkers < 0 {
		return fmt.Errorf("worker count must be >= 0, got %d", args.NWorkers)
	}
	it, total, err := image.StripIndices(args.Spec, args.StripIndex, args.TotalStrips, args.BatchSize)
	if err != nil {
		return err
	}
	log.Printf("extracting strip %d of %d: %d pixels", args.StripIndex, args.TotalStrips, total)

	writer, err := record.NewMultiFileWriter(args.Dir, args.Tag)
	if err != nil {
		return err
	}

	next := func() ([2][]int, bool) {
		xs, ys, ok := it.Next()
		return [2][]int{xs, ys}, ok
	}
	factory := func() Worker[[2][]int, [][]byte] {
		return &QueryProcessor{
			FeaturePath: args.FeaturePath,
			Spec:        args.Spec,
			HalfWidth:   args.HalfWidth,
		}
	}

	if err := RunOrdered(ctx, args.NWorkers, next, factory, writer.Add); err != nil {
		writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}
	log.Printf("wrote %d query records for %s", writer.Records(), args.Name)
	return nil
}

// batchSlices partitions [0, n) into contiguous row ranges of at most
// batchSize rows.
func batchSlices(batchSize, n int) []models.FixedSlice {
	var slices []models.FixedSlice
	for start := 0; start < n; start += batchSize {
		slices = append(slices, models.FixedSlice{
			Start: start,
			Stop:  min(start+batchSize, n),
		})
	}
	return slices
}
