package queue

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/usedby/pkg/cache"
	"github.com/matzehuels/usedby/pkg/ecosystems"
	"github.com/matzehuels/usedby/pkg/history"
	"github.com/matzehuels/usedby/pkg/observability"
	"github.com/matzehuels/usedby/pkg/pipeline"
)

// Worker drains a queue, running the pipeline for each message and writing
// results to the cache.
type Worker struct {
	Queue  Queue
	Store  cache.Store
	GitHub pipeline.GitHub
	Limits pipeline.Limits
	Logger *log.Logger
}

// Run consumes messages until the context ends. Handling errors are logged
// and the loop continues; only queue transport failures stop it.
func (w *Worker) Run(ctx context.Context) error {
	for {
		msg, err := w.Queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		start := time.Now()
		err = w.Handle(ctx, msg)
		observability.Queue().OnHandle(ctx, msg.Platform, msg.Name, time.Since(start), err)
		if err != nil {
			w.Logger.Error("refresh failed", "platform", msg.Platform, "name", msg.Name, "err", err)
		}
	}
}

// Handle processes one refresh message. A message for an unregistered
// platform is dropped with a log line: it cannot succeed on retry either.
//
// The enqueuer acquired the key's advisory lock before submitting the
// message; Handle releases it no matter how the refresh ends. Pipeline
// failures propagate so the queue's own retry policy applies.
func (w *Worker) Handle(ctx context.Context, msg *Message) error {
	strat, ok := ecosystems.Lookup(msg.Platform)
	if !ok {
		w.Logger.Warn("dropping message for unknown platform", "platform", msg.Platform, "name", msg.Name)
		return nil
	}

	key := cache.BuildKey(msg.Platform, msg.Name)
	defer func() {
		if rerr := cache.ReleaseLock(ctx, w.Store, key); rerr != nil {
			w.Logger.Warn("lock release failed", "key", key, "err", rerr)
		}
	}()

	entry, err := pipeline.RefreshDependents(ctx, w.GitHub, strat, msg.Name, w.Limits, time.Now().UTC())
	if err != nil {
		return err
	}
	if err := cache.Write(ctx, w.Store, key, entry); err != nil {
		return err
	}
	if err := history.Append(ctx, w.Store, key, entry, time.Now().UTC()); err != nil {
		w.Logger.Warn("history append failed", "key", key, "err", err)
	}

	w.Logger.Info("refreshed",
		"platform", msg.Platform,
		"name", msg.Name,
		"repos", len(entry.Repos),
		"partial", entry.Partial)
	return nil
}
