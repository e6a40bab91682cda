package main

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"crosslock/core/events"
	"crosslock/native/swap"
	"crosslock/observability"
	"crosslock/observability/logging"
	"crosslock/services/resolverd/storage"
)

// Watcher runs the resolver's background loops: funding progression, expiry
// sweeps and draining emitted events into the durable journal.
type Watcher struct {
	coord           *swap.Coordinator
	recorder        *events.Recorder
	store           *storage.Storage
	logger          *slog.Logger
	fundingInterval time.Duration
	expiryInterval  time.Duration
	drainInterval   time.Duration
	drainBatch      int
}

// NewWatcher constructs a watcher with sane defaults.
func NewWatcher(coord *swap.Coordinator, recorder *events.Recorder, store *storage.Storage, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		coord:           coord,
		recorder:        recorder,
		store:           store,
		logger:          logger,
		fundingInterval: 15 * time.Second,
		expiryInterval:  time.Minute,
		drainInterval:   5 * time.Second,
		drainBatch:      100,
	}
}

// Run starts all loops and blocks until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	if w.coord == nil || w.recorder == nil || w.store == nil {
		return
	}
	go w.runFundingLoop(ctx)
	go w.runExpiryLoop(ctx)
	w.runDrainLoop(ctx)
}

// runFundingLoop re-derives each live session's funding state so deposits that
// landed directly on a ledger, outside the fund endpoint, still advance the
// swap.
func (w *Watcher) runFundingLoop(ctx context.Context) {
	ticker := time.NewTicker(w.fundingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweepFunding()
		}
	}
}

func (w *Watcher) sweepFunding() {
	hashes, err := w.coord.Sessions()
	if err != nil {
		w.logger.Error("list sessions", "error", err)
		return
	}
	open := 0
	for _, hash := range hashes {
		status, err := w.coord.OrderStatus(hash)
		if err != nil || !status.Exists {
			continue
		}
		if status.Completed || status.Cancelled {
			continue
		}
		open++
		if err := w.coord.OnFundingProgress(hash); err != nil {
			w.logger.Error("funding progress", "orderHash", hex.EncodeToString(hash[:]), "error", err)
		}
	}
	observability.Resolver().SetOpenSessions(open)
}

// runExpiryLoop drives the permissionless timeout path so stuck swaps refund
// without anyone calling cancel by hand.
func (w *Watcher) runExpiryLoop(ctx context.Context) {
	ticker := time.NewTicker(w.expiryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweepExpiry(ctx)
		}
	}
}

func (w *Watcher) sweepExpiry(ctx context.Context) {
	hashes, err := w.coord.Sessions()
	if err != nil {
		w.logger.Error("list sessions", "error", err)
		return
	}
	for _, hash := range hashes {
		status, err := w.coord.OrderStatus(hash)
		if err != nil || !status.Exists || status.Completed || status.Cancelled {
			continue
		}
		session, err := w.coord.Cancel(ctx, hash)
		if err != nil {
			if errors.Is(err, swap.ErrTooEarly) || errors.Is(err, swap.ErrAlreadyFinalized) {
				continue
			}
			w.logger.Error("expiry sweep", "orderHash", hex.EncodeToString(hash[:]), "error", err)
			continue
		}
		if session.Status.Terminal() {
			observability.Resolver().RecordCancelled(session.Status.String())
			w.logger.Info("swap timed out", "orderHash", hex.EncodeToString(hash[:]), "outcome", session.Status.String())
		}
	}
}

// runDrainLoop copies events from the bounded in-memory recorder into the
// sqlite journal, resuming from the last persisted sequence.
func (w *Watcher) runDrainLoop(ctx context.Context) {
	cursor, err := w.store.LastSequence(ctx)
	if err != nil {
		w.logger.Error("load event cursor", "error", err)
	}
	ticker := time.NewTicker(w.drainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cursor = w.drain(ctx, cursor)
		}
	}
}

func (w *Watcher) drain(ctx context.Context, cursor int64) int64 {
	batch := w.recorder.After(cursor, w.drainBatch)
	for _, evt := range batch {
		if err := w.store.InsertEvent(ctx, evt); err != nil {
			w.logger.Error("persist event", "sequence", evt.Sequence, "error", err)
			return cursor
		}
		observability.Events().RecordEvent(evt.Type)
		if evt.Type == swap.EventTypeSwapCompleted {
			// The full preimage lives in the journal for relayers; the log line
			// only carries enough of it to correlate.
			w.logger.Info("swap completed",
				"orderHash", evt.Attributes["orderHash"],
				"secretPrefix", logging.MaskSecret(evt.Attributes["secret"]))
		}
		cursor = evt.Sequence
	}
	return cursor
}
