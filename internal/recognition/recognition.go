// Package recognition runs batches through normalization, monthly allocation
// and reconciliation.
package recognition

import (
	"context"
	"fmt"

	"github.com/iwvelando/revenue-recognition/internal/config"
	"github.com/iwvelando/revenue-recognition/internal/logging"
	"github.com/iwvelando/revenue-recognition/internal/revenue"
	"github.com/iwvelando/revenue-recognition/pkg/constants"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Result holds the recognized revenue of one batch.
type Result struct {
	Key        string
	Allocation revenue.Allocation
	Summary    Summary
}

// Summary counts what happened to the records of a batch.
type Summary struct {
	Records    int
	Allocated  int
	Flagged    int
	Skipped    int
	Unbalanced int
	// Empty is set for batches without any records.
	Empty  bool
	Issues []error
}

// Err combines every issue of the batch into one error, or nil.
func (s Summary) Err() error {
	return multierr.Combine(s.Issues...)
}

// Recognize processes every batch and returns one Result per batch, in input
// order. Record-level problems are reported in each Summary and never fail
// the run; an error is only returned for an unusable configuration or a
// cancelled context.
func Recognize(ctx context.Context, logger *zap.Logger, conf config.Configuration, batches []revenue.Batch) ([]Result, error) {
	logger = logging.OrNop(logger)

	if conf.TaxRate == nil {
		return nil, config.ErrMissingTaxRate
	}
	normalizer := revenue.NewNormalizer(conf.Rate(), conf.FieldNames(), conf.Location())

	results := make([]Result, len(batches))
	done := atomic.NewInt64(0)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(conf.WorkerCount())
	for i, batch := range batches {
		if gctx.Err() != nil {
			break
		}
		i, batch := i, batch
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = recognizeBatch(logger, normalizer, batch)
			logger.Info(fmt.Sprintf("processed %d / %d batches", done.Inc(), len(batches)),
				zap.String("op", "recognition.Recognize"),
				zap.String("batch", batch.Key),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

func recognizeBatch(logger *zap.Logger, normalizer *revenue.Normalizer, batch revenue.Batch) Result {
	result := Result{Key: batch.Key}
	summary := &result.Summary
	summary.Records = len(batch.Records)

	if len(batch.Records) == 0 {
		summary.Empty = true
		result.Allocation = revenue.Allocate(nil)
		logger.Warn(fmt.Sprintf("skipping batch %s: %v", batch.Key, revenue.ErrEmptyBatch),
			zap.String("op", "recognition.recognizeBatch"),
			zap.String("batch", batch.Key),
		)
		return result
	}

	records := normalizer.NormalizeAll(batch.Records)
	result.Allocation = revenue.Allocate(records)

	for _, rec := range result.Allocation.Records {
		switch {
		case rec.Skipped():
			summary.Skipped++
		case rec.Flagged():
			summary.Flagged++
			summary.Allocated++
		default:
			summary.Allocated++
		}
		for _, issue := range rec.Issues {
			summary.Issues = append(summary.Issues, issue)
			logger.Warn("record issue",
				zap.String("op", "recognition.recognizeBatch"),
				zap.String("batch", batch.Key),
				zap.Int("record", rec.Raw.Index),
				zap.Error(issue),
			)
		}
	}

	for _, i := range revenue.Reconcile(result.Allocation, constants.CurrencyTolerance) {
		rec := result.Allocation.Records[i]
		variance, _ := revenue.Variance(rec)
		issue := fmt.Errorf("record %d: %w: variance %s", rec.Raw.Index, revenue.ErrUnbalanced, variance.String())
		summary.Unbalanced++
		summary.Issues = append(summary.Issues, issue)
		logger.Warn("record does not reconcile",
			zap.String("op", "recognition.recognizeBatch"),
			zap.String("batch", batch.Key),
			zap.Int("record", rec.Raw.Index),
			zap.String("variance", variance.String()),
		)
	}

	if summary.Allocated == 0 {
		logger.Warn(fmt.Sprintf("batch %s has no allocatable records", batch.Key),
			zap.String("op", "recognition.recognizeBatch"),
			zap.String("batch", batch.Key),
		)
	}

	logger.Debug(fmt.Sprintf("batch %s spans %d months", batch.Key, len(result.Allocation.Months)),
		zap.String("op", "recognition.recognizeBatch"),
		zap.String("batch", batch.Key),
		zap.Int("records", summary.Records),
		zap.Int("skipped", summary.Skipped),
		zap.Int("flagged", summary.Flagged),
	)

	return result
}
