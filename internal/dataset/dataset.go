// Package dataset implements the Dataset Lifecycle component (spec
// §4.K): soft-delete marks a dataset and enqueues a clear job; the
// worker then clears child entities in fixed-size batches, emitting a
// BulkChunksDeleted event per batch, before removing the dataset row
// itself.
//
// The consume-loop/ack/dead-letter shape mirrors internal/ingestion.Worker.
package dataset

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"

	"github.com/devflowinc/trieve-sub001/internal/analytics"
	"github.com/devflowinc/trieve-sub001/internal/errs"
	"github.com/devflowinc/trieve-sub001/internal/metadatastore"
	"github.com/devflowinc/trieve-sub001/internal/queue"
	"github.com/devflowinc/trieve-sub001/internal/vectorstore"
)

// ClearBatchSize bounds each delete round-trip (spec §5 backpressure:
// "delete/clear at 5,000").
const ClearBatchSize = 5000

// SoftDelete marks a dataset deleted and enqueues its clear job (spec
// §4.K: "marks the dataset and nullifies its tracking_id, enqueues a
// delete job, and returns immediately"). metadatastore.Store's own
// SoftDeleteDataset already rejects a locked dataset with a terminal
// bad-request error, so this function doesn't duplicate that check.
func SoftDelete(ctx context.Context, meta metadatastore.Store, q queue.Queue, datasetID string) error {
	if err := meta.SoftDeleteDataset(ctx, datasetID); err != nil {
		return err
	}
	msg := queue.DatasetDeleteMessage{DatasetID: datasetID}
	raw, err := msg.Encode()
	if err != nil {
		return errs.Internal("dataset_encode_failed", "failed to encode dataset delete message", err)
	}
	return q.Push(ctx, queue.DeleteDataset, raw)
}

// Worker consumes queue.DeleteDataset and clears a soft-deleted
// dataset's child entities (spec §4.K).
type Worker struct {
	Queue     queue.Queue
	Meta      metadatastore.Store
	Vectors   vectorstore.Store
	Analytics analytics.Store
	Logger    *logrus.Logger

	PollTimeout time.Duration
	MaxBackoff  time.Duration
	MaxAttempts int
	BatchSize   int
}

func NewWorker(q queue.Queue, meta metadatastore.Store, vectors vectorstore.Store, an analytics.Store, logger *logrus.Logger) *Worker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Worker{
		Queue:       q,
		Meta:        meta,
		Vectors:     vectors,
		Analytics:   an,
		Logger:      logger,
		PollTimeout: 5 * time.Second,
		MaxBackoff:  300 * time.Second,
		MaxAttempts: queue.MaxAttempts,
		BatchSize:   ClearBatchSize,
	}
}

// Run pops messages from the dataset-delete queue until ctx is
// cancelled (spec §4.K).
func (w *Worker) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = w.MaxBackoff

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		raw, err := w.Queue.Pop(ctx, queue.DeleteDataset, queue.Processing, w.PollTimeout)
		if err != nil {
			d := bo.NextBackOff()
			w.Logger.WithError(err).Warn("dataset delete queue pop failed, backing off")
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
	msg, decodeErr := queue.DecodeDatasetDeleteMessage(raw)
	if decodeErr != nil {
		w.Logger.WithError(decodeErr).Error("dropping unparseable dataset delete message")
		w.ackProcessing(ctx, raw)
		return
	}

	err := w.clear(ctx, msg)
	if err == nil {
		w.ackProcessing(ctx, raw)
		return
	}

	if errs.IsBadRequest(err) || errs.IsNotFound(err) {
		w.Logger.WithError(err).Error("non-retryable dataset delete failure, dead-lettering")
		w.deadLetter(ctx, raw)
		w.ackProcessing(ctx, raw)
		return
	}

	msg.AttemptNumber++
	if msg.AttemptNumber >= w.MaxAttempts {
		w.Logger.WithError(err).WithField("attempt", msg.AttemptNumber).Error("dataset delete exhausted retries, dead-lettering")
		w.deadLetter(ctx, raw)
		w.ackProcessing(ctx, raw)
		return
	}

	next, encodeErr := msg.Encode()
	if encodeErr != nil {
		w.Logger.WithError(encodeErr).Error("failed to re-encode dataset delete message for retry, dead-lettering")
		w.deadLetter(ctx, raw)
		w.ackProcessing(ctx, raw)
		return
	}
	w.Logger.WithError(err).WithField("attempt", msg.AttemptNumber).Warn("retrying dataset delete")
	if pushErr := w.Queue.Push(ctx, queue.DeleteDataset, next); pushErr != nil {
		w.Logger.WithError(pushErr).Error("failed to re-enqueue dataset delete message")
	}
	w.ackProcessing(ctx, raw)
}

// clear walks DeleteChunksBatch until the dataset has no chunks left,
// deleting each batch's vector points and emitting one
// BulkChunksDeletedEvent per batch, then cascades to bookmarks, groups,
// files, and analytics rows before the dataset row itself is removed.
//
// DeleteChunksBatch already combines "select a batch" and "delete it"
// into one atomic metadata-store call (so a concurrent ingestion can't
// resurrect a row the clear already counted); that rules out running the
// metadata delete and the vector delete truly concurrently for the same
// batch, since the vector delete needs the ids DeleteChunksBatch
// returns. The two steps run back to back per batch instead.
func (w *Worker) clear(ctx context.Context, msg queue.DatasetDeleteMessage) error {
	collection := vectorstore.CollectionName(msg.DatasetID)

	for {
		ids, err := w.Meta.DeleteChunksBatch(ctx, msg.DatasetID, w.batchSize())
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			break
		}
		if err := w.Vectors.Delete(ctx, collection, ids); err != nil {
			return err
		}
		w.emitBulkChunksDeleted(ctx, msg.DatasetID, len(ids))
		if len(ids) < w.batchSize() {
			break
		}
	}

	if err := w.Meta.DeleteBookmarksForDataset(ctx, msg.DatasetID); err != nil {
		return err
	}
	if err := w.Meta.DeleteGroupsForDataset(ctx, msg.DatasetID); err != nil {
		return err
	}
	if err := w.Meta.DeleteFilesForDataset(ctx, msg.DatasetID); err != nil {
		return err
	}
	if w.Analytics != nil {
		if err := w.Analytics.DeleteDatasetRows(ctx, msg.DatasetID); err != nil {
			return err
		}
	}

	return w.Meta.HardDeleteDataset(ctx, msg.DatasetID)
}

func (w *Worker) batchSize() int {
	if w.BatchSize <= 0 {
		return ClearBatchSize
	}
	return w.BatchSize
}

func (w *Worker) emitBulkChunksDeleted(ctx context.Context, datasetID string, count int) {
	event := queue.BulkChunksDeletedEvent{DatasetID: datasetID, Count: count}
	raw, err := event.Encode()
	if err != nil {
		w.Logger.WithError(err).Error("failed to encode bulk chunks deleted event")
		return
	}
	if err := w.Queue.Push(ctx, queue.BulkChunksDeletedEvents, raw); err != nil {
		w.Logger.WithError(err).Error("failed to publish bulk chunks deleted event")
	}
}

func (w *Worker) ackProcessing(ctx context.Context, raw string) {
	if err := w.Queue.Ack(ctx, queue.Processing, raw); err != nil {
		w.Logger.WithError(err).Error("failed to ack processed dataset delete message")
	}
}

func (w *Worker) deadLetter(ctx context.Context, raw string) {
	if err := w.Queue.Push(ctx, queue.DeadLetters, raw); err != nil {
		w.Logger.WithError(err).Error("failed to dead-letter dataset delete message")
	}
}
