package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"SynthLedger/internal/observability"
)

const (
	// DefaultBatchSize caps how many rows one INSERT carries.
	DefaultBatchSize = 256
	// DefaultFlushTimeout bounds how long a partial batch waits.
	DefaultFlushTimeout = 250 * time.Millisecond

	retryBackoffStart = 100 * time.Millisecond
	retryBackoffMax   = 30 * time.Second
)

// Worker drains the operation-row channel and batch-writes to Postgres. A
// full batch flushes immediately; a partial batch flushes on the timeout. The
// worker never drops a batch: failed writes retry with exponential backoff
// until they succeed or shutdown forces a final attempt.
type Worker struct {
	db      *sql.DB
	writer  *OperationLogWriter
	input   <-chan OperationRow
	size    int
	timeout time.Duration
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func NewWorker(db *sql.DB, input <-chan OperationRow, batchSize int, flushTimeout time.Duration, logger zerolog.Logger, metrics *observability.Metrics) *Worker {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if flushTimeout <= 0 {
		flushTimeout = DefaultFlushTimeout
	}
	return &Worker{
		db:      db,
		writer:  NewOperationLogWriter(db),
		input:   input,
		size:    batchSize,
		timeout: flushTimeout,
		logger:  logger,
		metrics: metrics,
	}
}

// Run blocks until the context ends or the input channel closes. Remaining
// rows are flushed on the way out.
func (w *Worker) Run(ctx context.Context) error {
	batch := make([]OperationRow, 0, w.size)

	timer := time.NewTimer(w.timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				if err := w.flush(context.Background(), batch); err != nil {
					w.logger.Error().Err(err).Int("rows", len(batch)).Msg("final flush failed")
				}
			}
			return ctx.Err()

		case row, ok := <-w.input:
			if !ok {
				if len(batch) > 0 {
					if err := w.flush(context.Background(), batch); err != nil {
						w.logger.Error().Err(err).Int("rows", len(batch)).Msg("final flush failed")
					}
				}
				return nil
			}

			batch = append(batch, row)
			if len(batch) >= w.size {
				w.flushWithRetry(ctx, batch)
				batch = batch[:0]
				resetFlushTimer(timer, w.timeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				w.flushWithRetry(ctx, batch)
				batch = batch[:0]
			}
			timer.Reset(w.timeout)
		}
	}
}

// resetFlushTimer re-arms the timer, draining a tick that fired while a
// size-triggered flush was in progress so it cannot cause an immediate
// follow-up flush.
func resetFlushTimer(timer *time.Timer, d time.Duration) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(d)
}

func (w *Worker) flushWithRetry(ctx context.Context, rows []OperationRow) {
	backoff := retryBackoffStart

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			w.logger.Warn().Int("attempt", attempt).Dur("backoff", backoff).Int("rows", len(rows)).
				Msg("operation-log write retrying")
			select {
			case <-ctx.Done():
				if err := w.flush(context.Background(), rows); err != nil {
					w.logger.Error().Err(err).Int("rows", len(rows)).Msg("final flush on shutdown failed")
				}
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > retryBackoffMax {
				backoff = retryBackoffMax
			}
		}

		err := w.flush(ctx, rows)
		if err == nil {
			if attempt > 0 {
				w.logger.Info().Int("attempts", attempt+1).Msg("operation-log write recovered")
			}
			return
		}

		if w.metrics != nil {
			w.metrics.PersistErrors.Inc()
		}
		w.logger.Warn().Err(err).Msg("operation-log write failed")
	}
}

func (w *Worker) flush(ctx context.Context, rows []OperationRow) error {
	start := time.Now()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := w.writer.WriteBatch(ctx, tx, rows); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	if w.metrics != nil {
		w.metrics.PersistBatchDuration.Observe(time.Since(start).Seconds())
		w.metrics.PersistRecordsWritten.Add(float64(len(rows)))
	}
	return nil
}
