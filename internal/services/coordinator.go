package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"ledger/internal/identity"
	"ledger/internal/log"
	"ledger/internal/model"
	"ledger/internal/remote"
	"ledger/internal/storage"
	"ledger/internal/worker"
)

// CoordinatorConfig holds configuration for the sync coordinator
type CoordinatorConfig struct {
	// BatchSize is the page size used when SyncNow walks pending records (default: 100)
	BatchSize int

	// MigrationConcurrency bounds concurrent guest record uploads (default: 4)
	MigrationConcurrency int
}

// DefaultCoordinatorConfig returns sensible defaults
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		BatchSize:            100,
		MigrationConcurrency: 4,
	}
}

// SyncReport summarises one SyncNow run.
type SyncReport struct {
	Reason       string
	Transactions int
	Profile      bool
	Handles      []*worker.Handle
}

// Wait blocks until every submitted push resolved and returns how many ended
// in each state.
func (r SyncReport) Wait(ctx context.Context) (map[model.SyncState]int, error) {
	out := make(map[model.SyncState]int)
	for _, h := range r.Handles {
		res, err := h.Wait(ctx)
		if err != nil {
			return out, err
		}
		out[res.State]++
	}
	return out, nil
}

// Coordinator mirrors local writes of the authenticated actor to the remote
// store. Local commits never wait for it; pushes run on the scheduler with
// one lane per record and report back through handles.
type Coordinator struct {
	store     *storage.Store
	remote    remote.Store
	scheduler *worker.Scheduler
	identity  *identity.Context
	config    CoordinatorConfig
	logger    *log.Logger

	migrateMu sync.Mutex

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewCoordinator creates a new sync coordinator
func NewCoordinator(
	store *storage.Store,
	remoteStore remote.Store,
	scheduler *worker.Scheduler,
	ident *identity.Context,
	config CoordinatorConfig,
	logger *log.Logger,
) *Coordinator {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultCoordinatorConfig().BatchSize
	}
	if config.MigrationConcurrency <= 0 {
		config.MigrationConcurrency = DefaultCoordinatorConfig().MigrationConcurrency
	}
	if logger == nil {
		logger = log.Default(log.ComponentCoordinator)
	}
	return &Coordinator{
		store:     store,
		remote:    remoteStore,
		scheduler: scheduler,
		identity:  ident,
		config:    config,
		logger:    logger,
	}
}

// Start subscribes to identity changes. Every guest to authenticated
// transition migrates guest data and then syncs. Returns an error if already
// running.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("sync coordinator is already running")
	}
	c.running = true
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	c.mu.Unlock()

	changes, unsubscribe := c.identity.Subscribe()
	go c.runLoop(ctx, changes, unsubscribe)

	c.logger.InfoContext(ctx, "Sync coordinator started",
		"batch_size", c.config.BatchSize,
		"migration_concurrency", c.config.MigrationConcurrency)

	if !c.identity.Current().IsGuest() {
		if _, err := c.SyncNow(ctx, "startup"); err != nil {
			c.logger.WarnContext(ctx, "Startup sync failed", "error", err)
		}
	}
	return nil
}

// Stop ends the identity loop. In-flight pushes are left to the scheduler.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	close(c.stopCh)

	select {
	case <-c.doneCh:
		c.logger.InfoContext(ctx, "Sync coordinator stopped gracefully")
	case <-ctx.Done():
		c.logger.WarnContext(ctx, "Sync coordinator stop timed out")
		return ctx.Err()
	}

	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	return nil
}

// IsRunning returns whether the coordinator is currently running
func (c *Coordinator) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Coordinator) runLoop(ctx context.Context, changes <-chan identity.Change, unsubscribe func()) {
	defer close(c.doneCh)
	defer unsubscribe()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			c.handleChange(ctx, change)
		}
	}
}

func (c *Coordinator) handleChange(ctx context.Context, change identity.Change) {
	c.logger.InfoContext(ctx, "Identity changed", "from", change.From.String(), "to", change.To.String())
	if !change.SignedIn() {
		return
	}

	report, err := c.MigrateGuestData(ctx)
	if err != nil && !errors.Is(err, ErrNotAuthenticated) {
		c.logger.ErrorContext(ctx, "Guest migration failed", "error", err)
	} else if err == nil {
		c.logger.InfoContext(ctx, "Guest migration finished",
			"migrated", report.Migrated,
			"failed", report.Failed,
			"remaining", report.Remaining,
			"completed", report.Completed)
	}

	if _, err := c.SyncNow(ctx, "sign_in"); err != nil && !errors.Is(err, ErrNotAuthenticated) {
		c.logger.ErrorContext(ctx, "Sign-in sync failed", "error", err)
	}
}

// PushTransaction schedules a push of t's current row. Guest records are
// never pushed and yield a nil handle.
func (c *Coordinator) PushTransaction(t model.Transaction) *worker.Handle {
	if t.IsGuestOwned() || t.SyncState != model.Pending {
		return nil
	}
	return c.scheduler.Submit(worker.TransactionKey(t.ID), c.pushTransactionOp(t.ID))
}

// DeleteRemote schedules removal of a locally deleted record's remote
// document on the record's lane, after any push still running for it.
func (c *Coordinator) DeleteRemote(t model.Transaction) *worker.Handle {
	if t.IsGuestOwned() || t.SyncState == model.LocalOnly {
		return nil
	}
	docID := t.RemoteID
	if docID == "" {
		// a create that failed without a response may still have landed
		docID = t.SyncKey
	}
	ref := remote.Expenses(t.OwnerID).Doc(docID)
	return c.scheduler.Submit(worker.TransactionKey(t.ID), c.deleteOp(t.ID, ref))
}

// PushProfile schedules a push of ownerID's profile.
func (c *Coordinator) PushProfile(ownerID string) *worker.Handle {
	if ownerID == "" || ownerID == model.GuestID {
		return nil
	}
	return c.scheduler.Submit(worker.ProfileKey(ownerID), c.pushProfileOp(ownerID))
}

func (c *Coordinator) pushTransactionOp(id int64) worker.Op {
	return func(ctx context.Context) worker.Result {
		cur, err := c.store.GetTransaction(ctx, id)
		if err != nil {
			return worker.Result{State: model.Pending, Err: err}
		}
		if cur.IsGuestOwned() || cur.SyncState != model.Pending {
			return worker.Result{State: cur.SyncState, RemoteID: cur.RemoteID}
		}

		// Pending rows never carry a remote id; Create upserts under the
		// sync key, so a re-push after an edit overwrites the same document.
		col := remote.Expenses(cur.OwnerID)
		remoteID, err := c.remote.Create(ctx, col, cur.SyncKey, remote.TransactionDocument(cur))
		if err != nil {
			return c.recordFailure(ctx, cur, err)
		}

		applied, err := c.store.MarkTransactionSynced(ctx, id, cur.Version, remoteID)
		if errors.Is(err, model.ErrNotFound) {
			// deleted while the push was in flight
			c.logger.InfoContext(ctx, "Removing document of transaction deleted during push",
				log.FieldTransactionID, id, log.FieldRemoteID, remoteID)
			if derr := c.remote.Delete(ctx, col.Doc(remoteID)); derr != nil {
				c.logger.WarnContext(ctx, "Failed to remove orphaned document",
					log.FieldRemoteID, remoteID, "error", derr)
			}
			return worker.Result{State: model.Pending, RemoteID: remoteID, Err: err}
		}
		if err != nil {
			return worker.Result{State: model.Pending, RemoteID: remoteID, Err: err}
		}
		if !applied {
			c.logger.DebugContext(ctx, "Transaction changed during push",
				log.FieldTransactionID, id, log.FieldVersion, cur.Version)
			return worker.Result{State: model.Pending, RemoteID: remoteID}
		}

		c.logger.InfoContext(ctx, "Transaction synced",
			log.FieldTransactionID, id,
			log.FieldOwnerID, cur.OwnerID,
			log.FieldRemoteID, remoteID,
			log.FieldVersion, cur.Version)
		return worker.Result{State: model.Synced, RemoteID: remoteID}
	}
}

// recordFailure stores a failed push. Permanent failures reject the record;
// anything else leaves it pending for the next SyncNow.
func (c *Coordinator) recordFailure(ctx context.Context, cur model.Transaction, cause error) worker.Result {
	permanent := remote.IsPermanent(cause)
	log.NewStructuredLogger(c.logger).LogPush(ctx, cur.ID, cur.OwnerID, cur.SyncKey, cur.Version, cause)
	updated, err := c.store.MarkTransactionFailed(ctx, cur.ID, cur.Version, cause, permanent)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to record push failure",
			log.FieldTransactionID, cur.ID, "error", err)
		return worker.Result{State: model.Pending, RemoteID: cur.RemoteID, Err: cause}
	}
	return worker.Result{State: updated.SyncState, RemoteID: updated.RemoteID, Err: cause}
}

func (c *Coordinator) deleteOp(id int64, ref remote.DocumentRef) worker.Op {
	return func(ctx context.Context) worker.Result {
		if err := c.remote.Delete(ctx, ref); err != nil {
			c.logger.WarnContext(ctx, "Remote delete failed",
				log.FieldTransactionID, id,
				log.FieldRemoteID, ref.ID,
				log.FieldKind, kindOf(err),
				"error", err)
			return worker.Result{State: model.Pending, RemoteID: ref.ID, Err: err}
		}
		c.logger.InfoContext(ctx, "Remote document deleted", log.FieldTransactionID, id, log.FieldRemoteID, ref.ID)
		return worker.Result{State: model.Synced, RemoteID: ref.ID}
	}
}

func (c *Coordinator) pushProfileOp(ownerID string) worker.Op {
	return func(ctx context.Context) worker.Result {
		p, err := c.store.GetProfile(ctx, ownerID)
		if err != nil {
			return worker.Result{State: model.Pending, Err: err}
		}
		if p.IsGuest || p.SyncState != model.Pending {
			return worker.Result{State: p.SyncState}
		}

		ref := remote.ProfileRef(ownerID)
		if err := c.remote.Replace(ctx, ref, remote.ProfileDocument(p)); err != nil {
			permanent := remote.IsPermanent(err)
			if merr := c.store.MarkProfileFailed(ctx, ownerID, p.Version, err, permanent); merr != nil {
				c.logger.ErrorContext(ctx, "Failed to record profile push failure", log.FieldOwnerID, ownerID, "error", merr)
			}
			state := model.Pending
			if permanent {
				state = model.Rejected
			}
			return worker.Result{State: state, RemoteID: ref.ID, Err: err}
		}

		applied, err := c.store.MarkProfileSynced(ctx, ownerID, p.Version)
		if err != nil {
			return worker.Result{State: model.Pending, RemoteID: ref.ID, Err: err}
		}
		if !applied {
			return worker.Result{State: model.Pending, RemoteID: ref.ID}
		}
		c.logger.InfoContext(ctx, "Profile synced", log.FieldOwnerID, ownerID, log.FieldVersion, p.Version)
		return worker.Result{State: model.Synced, RemoteID: ref.ID}
	}
}

// SyncNow submits every pending record of the authenticated actor, plus its
// profile when unsynced. Rejected records are left alone.
func (c *Coordinator) SyncNow(ctx context.Context, reason string) (SyncReport, error) {
	actor := c.identity.Current()
	report := SyncReport{Reason: reason}
	if actor.IsGuest() {
		c.logger.DebugContext(ctx, "Sync skipped for guest", log.FieldReason, reason)
		return report, ErrNotAuthenticated
	}
	owner := actor.ID()

	var after int64
	for {
		batch, err := c.store.ListUnsyncedTransactions(ctx, owner, after, c.config.BatchSize)
		if err != nil {
			return report, fmt.Errorf("sync now: %w", err)
		}
		for _, t := range batch {
			report.Handles = append(report.Handles, c.PushTransaction(t))
			report.Transactions++
			after = t.ID
		}
		if len(batch) < c.config.BatchSize {
			break
		}
	}

	p, err := c.store.GetProfile(ctx, owner)
	switch {
	case err == nil && p.SyncState == model.Pending:
		report.Handles = append(report.Handles, c.PushProfile(owner))
		report.Profile = true
	case err != nil && !errors.Is(err, model.ErrNotFound):
		return report, fmt.Errorf("sync now: %w", err)
	}

	c.logger.InfoContext(ctx, "Sync triggered",
		log.FieldReason, reason,
		log.FieldOwnerID, owner,
		"transactions", report.Transactions,
		"profile", report.Profile)
	return report, nil
}

// RetryRejected moves the actor's rejected records back to pending and syncs.
func (c *Coordinator) RetryRejected(ctx context.Context) (SyncReport, error) {
	actor := c.identity.Current()
	if actor.IsGuest() {
		return SyncReport{Reason: "retry_rejected"}, ErrNotAuthenticated
	}
	n, err := c.store.ResetRejected(ctx, actor.ID())
	if err != nil {
		return SyncReport{Reason: "retry_rejected"}, fmt.Errorf("retry rejected: %w", err)
	}
	c.logger.InfoContext(ctx, "Retrying rejected records", log.FieldOwnerID, actor.ID(), "count", n)
	return c.SyncNow(ctx, "retry_rejected")
}

func kindOf(err error) string {
	if remote.IsPermanent(err) {
		return remote.Permanent.String()
	}
	return remote.Transient.String()
}
