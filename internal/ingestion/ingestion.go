// Package ingestion implements the Ingestion Worker (spec §4.E): a
// durable, retrying consumer of the BulkUpload/Update/Delete queue that
// orchestrates the embedding client, collision index, metadata store, and
// vector store to turn incoming payloads into embedded, persisted,
// indexed chunks.
//
// The two historical entry points (a bulk-upload daemon and a
// single-chunk update daemon) are unified into one Worker with a single
// Run loop, dispatching on the message's Kind.
package ingestion

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"

	"github.com/devflowinc/trieve-sub001/internal/config"
	"github.com/devflowinc/trieve-sub001/internal/errs"
	"github.com/devflowinc/trieve-sub001/internal/metadatastore"
	"github.com/devflowinc/trieve-sub001/internal/queue"
	"github.com/devflowinc/trieve-sub001/internal/vectorstore"
)

// Worker consumes queue.Ingestion and runs the BulkUpload/Update/Delete
// pipelines against the metadata and vector stores (spec §4.E).
type Worker struct {
	Queue   queue.Queue
	Meta    metadatastore.Store
	Vectors vectorstore.Store
	Logger  *logrus.Logger

	PollTimeout time.Duration
	MaxBackoff  time.Duration
	MaxAttempts int
}

func NewWorker(q queue.Queue, meta metadatastore.Store, vectors vectorstore.Store, logger *logrus.Logger) *Worker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Worker{
		Queue:       q,
		Meta:        meta,
		Vectors:     vectors,
		Logger:      logger,
		PollTimeout: 5 * time.Second,
		MaxBackoff:  300 * time.Second,
		MaxAttempts: queue.MaxAttempts,
	}
}

// Run pops messages from the ingestion queue until ctx is cancelled,
// dispatching each to BulkUpload or Update and applying the retry/
// dead-letter policy to the outcome (spec §4.E "Scheduling & ordering",
// "Retry policy", "Backoff"). Multiple Workers may call Run concurrently
// against the same queue; BRPOPLPUSH's atomicity is what makes that safe.
func (w *Worker) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = w.MaxBackoff

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		raw, err := w.Queue.Pop(ctx, queue.Ingestion, queue.Processing, w.PollTimeout)
		if err != nil {
			d := bo.NextBackOff()
			w.Logger.WithError(err).Warn("ingestion queue pop failed, backing off")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
			}
			continue
		}
		bo.Reset()
		if raw == "" {
			continue
		}

		w.handle(ctx, raw)
	}
}

// handle processes one popped message and resolves it out of the
// processing list exactly once, per spec §4.E's "explicit LREM on
// success" pattern extended to cover non-retryable and dead-lettered
// outcomes as well (otherwise those messages would sit in processing
// forever).
func (w *Worker) handle(ctx context.Context, raw string) {
	msg, decodeErr := queue.DecodeIngestMessage(raw)
	if decodeErr != nil {
		w.Logger.WithError(decodeErr).Error("dropping unparseable ingestion message")
		w.ackProcessing(ctx, raw)
		return
	}

	err := w.process(ctx, msg)
	if err == nil {
		w.ackProcessing(ctx, raw)
		return
	}

	if errs.IsBadRequest(err) {
		w.finishBadRequest(ctx, raw, msg, err)
		return
	}

	if !errs.IsRetryable(err) {
		w.Logger.WithError(err).Error("non-retryable ingestion failure, dead-lettering")
		w.deadLetter(ctx, raw)
		w.ackProcessing(ctx, raw)
		return
	}

	msg.AttemptNumber++
	if msg.AttemptNumber >= w.MaxAttempts {
		w.Logger.WithError(err).WithField("attempt", msg.AttemptNumber).Error("ingestion message exhausted retries, dead-lettering")
		w.deadLetter(ctx, raw)
		w.ackProcessing(ctx, raw)
		return
	}

	next, encodeErr := msg.Encode()
	if encodeErr != nil {
		w.Logger.WithError(encodeErr).Error("failed to re-encode ingestion message for retry, dead-lettering")
		w.deadLetter(ctx, raw)
		w.ackProcessing(ctx, raw)
		return
	}
	w.Logger.WithError(err).WithField("attempt", msg.AttemptNumber).Warn("retrying ingestion message")
	if pushErr := w.Queue.Push(ctx, queue.Ingestion, next); pushErr != nil {
		w.Logger.WithError(pushErr).Error("failed to re-enqueue ingestion message")
	}
	w.ackProcessing(ctx, raw)
}

// finishBadRequest applies spec §4.E's "DuplicateTrackingId is
// non-retryable and consumed silently" rule to that one code, and
// dead-letters every other bad-request kind (malformed payload, locked
// dataset, unsupported dimension) so it is still visible for operator
// follow-up rather than vanishing without a trace.
func (w *Worker) finishBadRequest(ctx context.Context, raw string, msg queue.IngestMessage, err error) {
	if code, ok := badRequestCode(err); ok && code == errs.CodeDuplicateTrackingID {
		w.Logger.WithField("dataset_id", msg.DatasetID).Debug("discarding duplicate tracking id ingestion message")
		w.ackProcessing(ctx, raw)
		return
	}
	w.Logger.WithError(err).Warn("bad request ingestion failure, dead-lettering")
	w.deadLetter(ctx, raw)
	w.ackProcessing(ctx, raw)
}

func badRequestCode(err error) (string, bool) {
	e, ok := err.(*errs.Error)
	if !ok {
		return "", false
	}
	return e.Code, true
}

func (w *Worker) ackProcessing(ctx context.Context, raw string) {
	if err := w.Queue.Ack(ctx, queue.Processing, raw); err != nil {
		w.Logger.WithError(err).Error("failed to ack processed ingestion message")
	}
}

func (w *Worker) deadLetter(ctx context.Context, raw string) {
	if err := w.Queue.Push(ctx, queue.DeadLetters, raw); err != nil {
		w.Logger.WithError(err).Error("failed to dead-letter ingestion message")
	}
}

// process dispatches to the BulkUpload, Update, or Delete pipeline (spec
// §4.E).
func (w *Worker) process(ctx context.Context, msg queue.IngestMessage) error {
	switch msg.Kind {
	case queue.KindBulkUpload:
		return w.BulkUpload(ctx, msg)
	case queue.KindUpdate:
		return w.Update(ctx, msg)
	case queue.KindDelete:
		return w.Delete(ctx, msg)
	default:
		return errs.BadRequest("ingestion_unknown_kind", "unrecognized ingestion message kind", nil)
	}
}

func (w *Worker) datasetConfig(ctx context.Context, datasetID string) (config.DatasetConfig, error) {
	raw, err := w.Meta.GetDatasetConfig(ctx, datasetID)
	if err != nil {
		return config.DatasetConfig{}, err
	}
	cfg := config.MergeDatasetConfig(raw)
	if cfg.Locked {
		return config.DatasetConfig{}, errs.BadRequest(errs.CodeDatasetLocked, "dataset is locked", nil)
	}
	return cfg, nil
}
