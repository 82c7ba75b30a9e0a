package cart

import (
	"context"
	"fmt"
	"strings"
	"sync"

	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/angelmondragon/storefront-core/pkg/logger"
	"github.com/angelmondragon/storefront-core/pkg/metrics"
)

// EventSink is notified after a guest cart has been folded into the server cart.
type EventSink interface {
	CartMigrated(ctx context.Context, sessionID string, report MigrationReport)
}

// OrchestratorConfig wires one orchestrator to a storefront session.
type OrchestratorConfig struct {
	SessionID string
	Guest     GuestStore
	Preview   PreviewAPI
	Remote    RemoteCartAPI
	Logger    *logger.Logger
	Metrics   *metrics.CartMetrics
	Events    EventSink
}

// State is what callers render: the live cart plus loading and error bookkeeping.
type State struct {
	Cart          Cart
	Loading       bool
	Err           error
	Authenticated bool
	HasMigrated   bool
	LastMigration *MigrationReport
}

// Orchestrator owns the live cart of one session. It re-derives the repository when the
// authentication state changes and runs the migration once per unauthenticated to
// authenticated transition.
type Orchestrator struct {
	cfg OrchestratorConfig

	mu            sync.Mutex
	repo          Repository
	authenticated bool
	token         string
	epoch         uint64
	hasMigrated   bool
	migrating     bool
	cart          Cart
	inFlight      int
	err           error
	lastMigration *MigrationReport
}

// NewOrchestrator starts unauthenticated on the guest strategy.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if strings.TrimSpace(cfg.SessionID) == "" {
		return nil, fmt.Errorf("session id required")
	}
	if cfg.Remote == nil {
		return nil, fmt.Errorf("remote cart api required")
	}
	repo, err := NewRepository(false, cfg.deps(""))
	if err != nil {
		return nil, err
	}
	return &Orchestrator{cfg: cfg, repo: repo, cart: emptyCart(GuestCartID)}, nil
}

func (c OrchestratorConfig) deps(token string) Deps {
	return Deps{
		Guest:   c.Guest,
		Preview: c.Preview,
		Remote:  c.Remote,
		Token:   token,
		Logger:  c.Logger,
		Metrics: c.Metrics,
	}
}

// State returns a copy of the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stateLocked()
}

func (o *Orchestrator) stateLocked() State {
	items := make([]CartItem, len(o.cart.Items))
	copy(items, o.cart.Items)
	cart := o.cart
	cart.Items = items
	return State{
		Cart:          cart,
		Loading:       o.inFlight > 0,
		Err:           o.err,
		Authenticated: o.authenticated,
		HasMigrated:   o.hasMigrated,
		LastMigration: o.lastMigration,
	}
}

// SyncAuth aligns the orchestrator with the caller's authentication state. Becoming
// authenticated runs the migration if it has not run since the last logout; becoming
// unauthenticated resets the migration flag. Either transition refreshes the cart.
func (o *Orchestrator) SyncAuth(ctx context.Context, authenticated bool, token string) (State, error) {
	o.mu.Lock()
	changed := authenticated != o.authenticated || (authenticated && token != o.token)
	if changed {
		repo, err := NewRepository(authenticated, o.cfg.deps(token))
		if err != nil {
			o.mu.Unlock()
			return o.State(), pkgerrors.Wrap(pkgerrors.CodeInternal, err, "select cart repository")
		}
		wasAuthenticated := o.authenticated
		o.repo = repo
		o.authenticated = authenticated
		o.token = token
		o.epoch++
		if !authenticated {
			o.hasMigrated = false
			o.lastMigration = nil
		}
		if wasAuthenticated != authenticated {
			if authenticated {
				o.cart = emptyCart("")
			} else {
				o.cart = emptyCart(GuestCartID)
			}
		}
	}
	needsMigration := authenticated && !o.hasMigrated && !o.migrating
	if needsMigration {
		o.migrating = true
	}
	o.mu.Unlock()

	if needsMigration {
		return o.Migrate(ctx)
	}
	if changed {
		return o.Refresh(ctx)
	}
	return o.State(), nil
}

// Migrate folds the guest snapshot into the server cart. Failed lines are logged and skipped;
// the guest store is cleared and the migration marked done regardless, then the cart is
// refreshed from the server. Only a guest store read failure leaves the migration pending.
func (o *Orchestrator) Migrate(ctx context.Context) (State, error) {
	o.mu.Lock()
	if !o.authenticated {
		o.migrating = false
		o.mu.Unlock()
		return o.State(), pkgerrors.New(pkgerrors.CodeUnauthorized, "migration requires an authenticated session")
	}
	if o.hasMigrated {
		o.migrating = false
		o.mu.Unlock()
		return o.State(), nil
	}
	o.migrating = true
	server := o.repo
	epoch := o.epoch
	o.inFlight++
	o.mu.Unlock()

	finish := func(report *MigrationReport, migrated bool, err error) {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.inFlight--
		o.migrating = false
		if o.epoch != epoch {
			return
		}
		if migrated {
			o.hasMigrated = true
			o.lastMigration = report
		}
		o.err = err
	}

	ctx = o.logCtx(ctx)
	snapshot, err := o.loadGuest(ctx)
	if err != nil {
		finish(nil, false, err)
		if o.cfg.Logger != nil {
			o.cfg.Logger.Error(ctx, "cart.migration.load_failed", err)
		}
		return o.State(), err
	}
	if len(snapshot.Items) == 0 {
		finish(&MigrationReport{Succeeded: []int{}, Failed: []FailedItem{}}, true, nil)
		return o.Refresh(ctx)
	}

	report := migrateLines(ctx, server, snapshot.Items)
	o.logReport(ctx, report)

	if o.cfg.Guest != nil {
		if clearErr := o.cfg.Guest.Clear(ctx); clearErr != nil && o.cfg.Logger != nil {
			o.cfg.Logger.Error(ctx, "cart.migration.guest_clear_failed", clearErr)
		}
	}
	finish(&report, true, nil)

	o.cfg.Metrics.ObserveMigration(len(report.Succeeded), len(report.Failed))
	if o.cfg.Events != nil {
		o.cfg.Events.CartMigrated(ctx, o.cfg.SessionID, report)
	}
	return o.Refresh(ctx)
}

func (o *Orchestrator) loadGuest(ctx context.Context) (GuestCartSnapshot, error) {
	if o.cfg.Guest == nil {
		return GuestCartSnapshot{}, nil
	}
	return o.cfg.Guest.Load(ctx)
}

func (o *Orchestrator) logReport(ctx context.Context, report MigrationReport) {
	logg := o.cfg.Logger
	if logg == nil {
		return
	}
	for _, failed := range report.Failed {
		itemCtx := logg.WithFields(ctx, map[string]any{"sku_id": failed.SkuID, "stranded": failed.Stranded})
		logg.Error(itemCtx, "cart.migration.item_failed", failed.Err)
	}
	fields := map[string]any{
		"succeeded": len(report.Succeeded),
		"failed":    len(report.Failed),
	}
	if err := report.Err(); err != nil {
		logg.Error(logg.WithFields(ctx, fields), "cart.migration.partial", err)
		return
	}
	logg.Info(logg.WithFields(ctx, fields), "cart.migration.completed")
}

func (o *Orchestrator) logCtx(ctx context.Context) context.Context {
	if o.cfg.Logger == nil {
		return ctx
	}
	return o.cfg.Logger.WithSessionID(ctx, o.cfg.SessionID)
}

// Refresh reloads the cart through the current strategy.
func (o *Orchestrator) Refresh(ctx context.Context) (State, error) {
	return o.run(ctx, func(repo Repository) (Cart, error) { return repo.Get(ctx) })
}

// AddItem adds one unit of the SKU.
func (o *Orchestrator) AddItem(ctx context.Context, skuID int, productID *int) (State, error) {
	return o.run(ctx, func(repo Repository) (Cart, error) { return repo.AddItem(ctx, skuID, productID) })
}

// SetItemQuantity replaces the quantity; zero or less removes the line. Whether a removal
// needs the shopper's confirmation is decided by the caller before getting here.
func (o *Orchestrator) SetItemQuantity(ctx context.Context, skuID, quantity int) (State, error) {
	return o.run(ctx, func(repo Repository) (Cart, error) { return repo.SetItemQuantity(ctx, skuID, quantity) })
}

// RemoveItem deletes the line for the SKU.
func (o *Orchestrator) RemoveItem(ctx context.Context, skuID int) (State, error) {
	return o.run(ctx, func(repo Repository) (Cart, error) { return repo.RemoveItem(ctx, skuID) })
}

// Clear empties the cart.
func (o *Orchestrator) Clear(ctx context.Context) (State, error) {
	return o.run(ctx, func(repo Repository) (Cart, error) { return repo.Clear(ctx) })
}

// run executes one repository call with loading and error bookkeeping. Calls may interleave;
// the latest resolved snapshot wins, and results that resolve after an authentication
// change are dropped.
func (o *Orchestrator) run(ctx context.Context, call func(Repository) (Cart, error)) (State, error) {
	o.mu.Lock()
	repo := o.repo
	epoch := o.epoch
	o.inFlight++
	o.err = nil
	o.mu.Unlock()

	result, err := call(repo)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.inFlight--
	if o.epoch != epoch {
		return o.stateLocked(), nil
	}
	if err != nil {
		typed := pkgerrors.Classify(err, "cart operation failed")
		o.err = typed
		return o.stateLocked(), typed
	}
	o.cart = result
	return o.stateLocked(), nil
}
