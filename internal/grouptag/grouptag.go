// Package grouptag implements the Group/Tag Propagator (spec §4.J): when
// a group's tag set changes, every chunk that belongs to the group must
// have the diff applied to its own chunk_tags rows, and every vector
// point a member chunk owns must have its group_tag_sets contribution
// rewritten, without disturbing any other group's contribution to a
// point shared across groups.
//
// The consume-loop/ack/dead-letter shape mirrors internal/ingestion.Worker;
// what differs is the work done per message and the per-group advisory
// lock taken before it.
package grouptag

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"

	"github.com/devflowinc/trieve-sub001/internal/errs"
	"github.com/devflowinc/trieve-sub001/internal/metadatastore"
	"github.com/devflowinc/trieve-sub001/internal/queue"
	"github.com/devflowinc/trieve-sub001/internal/vectorstore"
)

// Worker consumes queue.GroupUpdate and applies the tag-set diff to a
// group's members (spec §4.J).
type Worker struct {
	Queue   queue.Queue
	Meta    metadatastore.Store
	Vectors vectorstore.Store
	Locker  Locker
	Logger  *logrus.Logger

	PollTimeout time.Duration
	MaxBackoff  time.Duration
	MaxAttempts int
}

func NewWorker(q queue.Queue, meta metadatastore.Store, vectors vectorstore.Store, locker Locker, logger *logrus.Logger) *Worker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Worker{
		Queue:       q,
		Meta:        meta,
		Vectors:     vectors,
		Locker:      locker,
		Logger:      logger,
		PollTimeout: 5 * time.Second,
		MaxBackoff:  300 * time.Second,
		MaxAttempts: queue.MaxAttempts,
	}
}

// Run pops messages from the group-update queue until ctx is cancelled
// (spec §4.J, §5). Multiple Workers may call Run concurrently; the
// per-group lock is what keeps two runs from interleaving on the same
// group.
func (w *Worker) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = w.MaxBackoff

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		raw, err := w.Queue.Pop(ctx, queue.GroupUpdate, queue.Processing, w.PollTimeout)
		if err != nil {
			d := bo.NextBackOff()
			w.Logger.WithError(err).Warn("group update queue pop failed, backing off")
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
	msg, decodeErr := queue.DecodeGroupUpdateMessage(raw)
	if decodeErr != nil {
		w.Logger.WithError(decodeErr).Error("dropping unparseable group update message")
		w.ackProcessing(ctx, raw)
		return
	}

	resumeFrom, err := w.propagate(ctx, msg)
	if err == nil {
		w.ackProcessing(ctx, raw)
		return
	}

	if errs.IsBadRequest(err) || errs.IsNotFound(err) {
		w.Logger.WithError(err).Error("non-retryable group update failure, dead-lettering")
		w.deadLetter(ctx, raw)
		w.ackProcessing(ctx, raw)
		return
	}

	msg.AfterChunkID = resumeFrom
	msg.AttemptNumber++
	if msg.AttemptNumber >= w.MaxAttempts {
		w.Logger.WithError(err).WithField("attempt", msg.AttemptNumber).Error("group update exhausted retries, dead-lettering")
		w.deadLetter(ctx, raw)
		w.ackProcessing(ctx, raw)
		return
	}

	next, encodeErr := msg.Encode()
	if encodeErr != nil {
		w.Logger.WithError(encodeErr).Error("failed to re-encode group update message for retry, dead-lettering")
		w.deadLetter(ctx, raw)
		w.ackProcessing(ctx, raw)
		return
	}
	w.Logger.WithError(err).WithField("attempt", msg.AttemptNumber).Warn("retrying group update from last completed page")
	if pushErr := w.Queue.Push(ctx, queue.GroupUpdate, next); pushErr != nil {
		w.Logger.WithError(pushErr).Error("failed to re-enqueue group update message")
	}
	w.ackProcessing(ctx, raw)
}

func (w *Worker) ackProcessing(ctx context.Context, raw string) {
	if err := w.Queue.Ack(ctx, queue.Processing, raw); err != nil {
		w.Logger.WithError(err).Error("failed to ack processed group update message")
	}
}

func (w *Worker) deadLetter(ctx context.Context, raw string) {
	if err := w.Queue.Push(ctx, queue.DeadLetters, raw); err != nil {
		w.Logger.WithError(err).Error("failed to dead-letter group update message")
	}
}
