package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"ledger/internal/log"
	"ledger/internal/model"
	"ledger/internal/remote"
	"ledger/internal/storage"
	"ledger/internal/worker"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")

	errMigrationRaced = errors.New("record changed during migration")
)

// MigrationReport summarises one MigrateGuestData run.
type MigrationReport struct {
	Migrated  int
	Failed    int
	Remaining int
	Completed bool
}

// MigrateGuestData uploads every guest record under the authenticated
// actor and re-owns it locally once the remote acknowledged it. Records that
// fail stay guest-owned for the next run. When none remain, guest categories
// and profile settings move to the actor and the guest profile is removed.
// Concurrent calls are serialised; re-running is idempotent.
func (c *Coordinator) MigrateGuestData(ctx context.Context) (MigrationReport, error) {
	var report MigrationReport
	actor := c.identity.Current()
	if actor.IsGuest() {
		return report, ErrNotAuthenticated
	}
	to := actor.ID()

	c.migrateMu.Lock()
	defer c.migrateMu.Unlock()

	guests, err := c.store.QueryTransactions(ctx, storage.Filter{OwnerID: model.GuestID})
	if err != nil {
		return report, fmt.Errorf("migrate guest data: %w", err)
	}
	c.logger.InfoContext(ctx, "Migrating guest data", log.FieldOwnerID, to, "count", len(guests))

	var migrated, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.MigrationConcurrency)
	for _, t := range guests {
		g.Go(func() error {
			h := c.scheduler.Submit(worker.TransactionKey(t.ID), c.migrateOp(t.ID, to))
			res, err := h.Wait(gctx)
			if err != nil {
				return err
			}
			switch {
			case res.State == model.Synced:
				migrated.Add(1)
			case errors.Is(res.Err, model.ErrNotFound):
				// deleted locally before its turn
			default:
				failed.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, fmt.Errorf("migrate guest data: %w", err)
	}
	report.Migrated = int(migrated.Load())
	report.Failed = int(failed.Load())

	remaining, err := c.store.CountTransactions(ctx, model.GuestID)
	if err != nil {
		return report, fmt.Errorf("migrate guest data: %w", err)
	}
	report.Remaining = int(remaining)
	if remaining > 0 {
		c.logger.WarnContext(ctx, "Guest migration incomplete",
			log.FieldOwnerID, to, "remaining", remaining, "failed", report.Failed)
		return report, nil
	}

	done, err := c.store.FinalizeGuestMigration(ctx, to)
	if err != nil {
		return report, fmt.Errorf("migrate guest data: %w", err)
	}
	report.Completed = done
	if done {
		c.PushProfile(to)
	}
	return report, nil
}

// migrateOp uploads guest record id to users/{to}/expenses/{syncKey} and
// then rewrites the row under to as synced.
func (c *Coordinator) migrateOp(id int64, to string) worker.Op {
	return func(ctx context.Context) worker.Result {
		cur, err := c.store.GetTransaction(ctx, id)
		if err != nil {
			return worker.Result{State: model.LocalOnly, Err: err}
		}
		if !cur.IsGuestOwned() {
			return worker.Result{State: cur.SyncState, RemoteID: cur.RemoteID}
		}

		moved := cur
		moved.OwnerID = to
		remoteID, err := c.remote.Create(ctx, remote.Expenses(to), cur.SyncKey, remote.TransactionDocument(moved))
		if err != nil {
			c.logger.WarnContext(ctx, "Guest record upload failed",
				log.FieldTransactionID, id, log.FieldKind, kindOf(err), "error", err)
			if _, merr := c.store.MarkTransactionFailed(ctx, id, cur.Version, err, false); merr != nil {
				c.logger.WarnContext(ctx, "Failed to record upload failure", log.FieldTransactionID, id, "error", merr)
			}
			return worker.Result{State: model.LocalOnly, Err: err}
		}

		ok, err := c.store.ReassignTransaction(ctx, id, cur.Version, model.GuestID, to, remoteID)
		if errors.Is(err, model.ErrNotFound) {
			if derr := c.remote.Delete(ctx, remote.Expenses(to).Doc(remoteID)); derr != nil {
				c.logger.WarnContext(ctx, "Failed to remove orphaned document", log.FieldRemoteID, remoteID, "error", derr)
			}
			return worker.Result{State: model.LocalOnly, Err: err}
		}
		if err != nil {
			return worker.Result{State: model.LocalOnly, RemoteID: remoteID, Err: err}
		}
		if !ok {
			// the next run uploads the newer content under the same id
			return worker.Result{State: model.LocalOnly, RemoteID: remoteID, Err: errMigrationRaced}
		}

		c.logger.DebugContext(ctx, "Guest record migrated",
			log.FieldTransactionID, id, log.FieldOwnerID, to, log.FieldRemoteID, remoteID)
		return worker.Result{State: model.Synced, RemoteID: remoteID}
	}
}
