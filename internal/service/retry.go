package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/quocanhngo/edumsg/internal/config"
	"github.com/quocanhngo/edumsg/internal/metrics"
	"github.com/quocanhngo/edumsg/internal/model"
	"gorm.io/gorm"
)

// errVersionConflict is returned from inside a transaction when the
// participant row changed between the read and the compare-and-swap
var errVersionConflict = errors.New("participant version changed")

// SQLSTATE codes for a lost race detected by Postgres itself
const (
	pgDeadlockDetected     = "40P01"
	pgSerializationFailure = "40001"
)

func isRetryable(err error) bool {
	if errors.Is(err, errVersionConflict) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgDeadlockDetected || pgErr.Code == pgSerializationFailure
	}
	return false
}

func newReadBackOff(ctx context.Context, cfg config.ReadConfig) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.BackoffBase
	b.MaxInterval = cfg.BackoffMax
	b.RandomizationFactor = 0.5
	b.MaxElapsedTime = 0

	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
}

// withRetry runs fn until it succeeds, fails with a non-retryable error or the
// attempt budget is spent. Every call of fn must be a complete transaction so
// that a failed attempt leaves nothing behind.
func withRetry(ctx context.Context, cfg config.ReadConfig, logger *slog.Logger, op string, fn func() error) error {
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if isRetryable(err) {
			metrics.ReadConflicts.WithLabelValues(op).Inc()
			return err
		}
		return backoff.Permanent(err)
	}, newReadBackOff(ctx, cfg), func(err error, wait time.Duration) {
		logger.Debug("retrying after lost race",
			"op", op, "attempt", attempt, "wait", wait, "error", err)
	})
	if err != nil && isRetryable(err) {
		metrics.ReadExhausted.WithLabelValues(op).Inc()
		logger.Warn("retry budget exhausted", "op", op, "attempts", attempt)
		return fmt.Errorf("%w (%s after %d attempts)", model.ErrConcurrencyExhausted, op, attempt)
	}
	return err
}

// transact runs fn in a transaction under the read retry policy
func transact(ctx context.Context, db *gorm.DB, cfg config.ReadConfig, logger *slog.Logger, op string, fn func(tx *gorm.DB) error) error {
	return withRetry(ctx, cfg, logger, op, func() error {
		return db.WithContext(ctx).Transaction(fn)
	})
}

// notParticipant maps a missing row to the authorization error so that
// unknown conversations are never reported as such
func notParticipant(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.ErrNotParticipant
	}
	return err
}
