// Package importer implements the CSV/JSONL Importer (spec §4.F): a
// durable consumer that streams an uploaded object from blob storage,
// maps its rows onto chunk fields via a user-supplied FieldMapping, and
// republishes the result as BulkUpload batches onto the ingestion queue.
//
// Structured the same way as internal/ingestion.Worker (BRPOPLPUSH
// consume loop, explicit ack-out-of-processing, dead-letter on
// exhaustion) but with its own retry rule: an object that has not
// finished uploading yet is re-enqueued against a wall-clock cap rather
// than an attempt count, since waiting on an upload is not a transient
// IO failure.
package importer

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"

	"github.com/devflowinc/trieve-sub001/internal/blobstore"
	"github.com/devflowinc/trieve-sub001/internal/config"
	"github.com/devflowinc/trieve-sub001/internal/errs"
	"github.com/devflowinc/trieve-sub001/internal/metadatastore"
	"github.com/devflowinc/trieve-sub001/internal/queue"
)

// BatchSize is the number of chunks batched into each BulkUpload message
// published to the ingestion queue (spec §4.F).
const BatchSize = 120

// MaxObjectWait is the hard cap on how long an import waits for its
// object to appear in blob storage before it is dead-lettered (spec §4.F:
// "hard cap ~8600s before dead-lettering").
const MaxObjectWait = 8600 * time.Second

// Worker consumes queue.CSVJSONLIngestion and turns each uploaded
// object into a stream of BulkUpload batches on queue.Ingestion.
type Worker struct {
	Queue  queue.Queue
	Meta   metadatastore.Store
	Blobs  blobstore.Store
	Logger *logrus.Logger

	PollTimeout   time.Duration
	MaxBackoff    time.Duration
	BatchSize     int
	MaxObjectWait time.Duration
}

func NewWorker(q queue.Queue, meta metadatastore.Store, blobs blobstore.Store, logger *logrus.Logger) *Worker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Worker{
		Queue:         q,
		Meta:          meta,
		Blobs:         blobs,
		Logger:        logger,
		PollTimeout:   5 * time.Second,
		MaxBackoff:    300 * time.Second,
		BatchSize:     BatchSize,
		MaxObjectWait: MaxObjectWait,
	}
}

// Run pops messages from the CSV/JSONL ingestion queue until ctx is
// cancelled, mirroring internal/ingestion.Worker.Run's backoff-guarded
// consume loop.
func (w *Worker) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = w.MaxBackoff

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		raw, err := w.Queue.Pop(ctx, queue.CSVJSONLIngestion, queue.CSVJSONLProcessing, w.PollTimeout)
		if err != nil {
			d := bo.NextBackOff()
			w.Logger.WithError(err).Warn("csv import queue pop failed, backing off")
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

func (w *Worker) handle(ctx context.Context, raw string) {
	msg, decodeErr := queue.DecodeCSVImportMessage(raw)
	if decodeErr != nil {
		w.Logger.WithError(decodeErr).Error("dropping unparseable csv import message")
		w.ackProcessing(ctx, raw)
		return
	}
	if msg.FirstEnqueuedUnix == 0 {
		msg.FirstEnqueuedUnix = time.Now().Unix()
	}

	err := w.process(ctx, msg)
	if err == nil {
		w.ackProcessing(ctx, raw)
		return
	}

	if errs.IsNotFound(err) {
		w.requeueWaitingForObject(ctx, raw, msg)
		return
	}

	if errs.IsBadRequest(err) || !errs.IsRetryable(err) {
		w.Logger.WithError(err).Error("non-retryable csv import failure, dead-lettering")
		w.deadLetter(ctx, raw)
		w.ackProcessing(ctx, raw)
		return
	}

	msg.AttemptNumber++
	if msg.AttemptNumber >= queue.MaxAttempts {
		w.Logger.WithError(err).WithField("attempt", msg.AttemptNumber).Error("csv import message exhausted retries, dead-lettering")
		w.deadLetter(ctx, raw)
		w.ackProcessing(ctx, raw)
		return
	}
	next, encodeErr := msg.Encode()
	if encodeErr != nil {
		w.Logger.WithError(encodeErr).Error("failed to re-encode csv import message for retry, dead-lettering")
		w.deadLetter(ctx, raw)
		w.ackProcessing(ctx, raw)
		return
	}
	w.Logger.WithError(err).WithField("attempt", msg.AttemptNumber).Warn("retrying csv import message")
	if pushErr := w.Queue.Push(ctx, queue.CSVJSONLIngestion, next); pushErr != nil {
		w.Logger.WithError(pushErr).Error("failed to re-enqueue csv import message")
	}
	w.ackProcessing(ctx, raw)
}

// requeueWaitingForObject implements the "object not yet present" retry
// rule: re-enqueue until MaxObjectWait has elapsed since the import was
// first queued, then dead-letter (spec §4.F).
func (w *Worker) requeueWaitingForObject(ctx context.Context, raw string, msg queue.CSVImportMessage) {
	if time.Since(time.Unix(msg.FirstEnqueuedUnix, 0)) > w.MaxObjectWait {
		w.Logger.WithField("object_key", msg.ObjectKey).Error("csv import object never appeared, dead-lettering")
		w.deadLetter(ctx, raw)
		w.ackProcessing(ctx, raw)
		return
	}
	next, err := msg.Encode()
	if err != nil {
		w.Logger.WithError(err).Error("failed to re-encode csv import message while waiting for object, dead-lettering")
		w.deadLetter(ctx, raw)
		w.ackProcessing(ctx, raw)
		return
	}
	if pushErr := w.Queue.Push(ctx, queue.CSVJSONLIngestion, next); pushErr != nil {
		w.Logger.WithError(pushErr).Error("failed to re-enqueue csv import message awaiting object")
	}
	w.ackProcessing(ctx, raw)
}

func (w *Worker) ackProcessing(ctx context.Context, raw string) {
	if err := w.Queue.Ack(ctx, queue.CSVJSONLProcessing, raw); err != nil {
		w.Logger.WithError(err).Error("failed to ack processed csv import message")
	}
}

func (w *Worker) deadLetter(ctx context.Context, raw string) {
	if err := w.Queue.Push(ctx, queue.DeadLettersCSVJSONL, raw); err != nil {
		w.Logger.WithError(err).Error("failed to dead-letter csv import message")
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
