package cart

import (
	"context"
	"sync"
	"testing"

	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/angelmondragon/storefront-core/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu      sync.Mutex
	reports []MigrationReport
}

func (r *recordingSink) CartMigrated(_ context.Context, _ string, report MigrationReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
}

func newOrchestrator(t *testing.T, guest *memGuestStore, remote *fakeRemote, sink EventSink) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(OrchestratorConfig{
		SessionID: "sess-1",
		Guest:     guest,
		Preview:   &stubPreview{},
		Remote:    remote,
		Metrics:   metrics.NewCartMetrics(prometheus.NewRegistry()),
		Events:    sink,
	})
	require.NoError(t, err)
	return o
}

func TestMigrationPartialFailureKeepsOtherItems(t *testing.T) {
	guest := &memGuestStore{snapshot: GuestCartSnapshot{Items: []GuestLine{
		{SkuID: 7, Quantity: 1},
		{SkuID: 9, Quantity: 2},
	}}}
	remote := newFakeRemote()
	remote.failing[9] = true
	sink := &recordingSink{}
	o := newOrchestrator(t, guest, remote, sink)

	state, err := o.SyncAuth(context.Background(), true, "tok")
	require.NoError(t, err)

	assert.True(t, state.HasMigrated)
	assert.Empty(t, guest.snapshot.Items)
	assert.Equal(t, map[int]int{7: 1}, remote.items)
	require.Len(t, state.Cart.Items, 1)
	assert.Equal(t, 7, state.Cart.Items[0].SkuID)

	require.NotNil(t, state.LastMigration)
	assert.Equal(t, []int{7}, state.LastMigration.Succeeded)
	require.Len(t, state.LastMigration.Failed, 1)
	assert.Equal(t, 9, state.LastMigration.Failed[0].SkuID)
	assert.True(t, state.LastMigration.Partial())
	assert.Error(t, state.LastMigration.Err())
	assert.NoError(t, state.Err, "partial migration is logged, not surfaced as a cart error")

	require.Len(t, sink.reports, 1)
}

func TestMigrationUndoesAddWhenTopUpFails(t *testing.T) {
	guest := &memGuestStore{snapshot: GuestCartSnapshot{Items: []GuestLine{
		{SkuID: 7, Quantity: 1},
		{SkuID: 9, Quantity: 2},
	}}}
	remote := newFakeRemote()
	remote.failingSet[9] = true
	o := newOrchestrator(t, guest, remote, nil)

	state, err := o.SyncAuth(context.Background(), true, "tok")
	require.NoError(t, err)

	assert.Equal(t, map[int]int{7: 1}, remote.itemsCopy())
	require.Len(t, state.Cart.Items, 1)
	assert.Equal(t, 7, state.Cart.Items[0].SkuID)
	require.NotNil(t, state.LastMigration)
	assert.Equal(t, []int{7}, state.LastMigration.Succeeded)
	require.Len(t, state.LastMigration.Failed, 1)
	assert.Equal(t, 9, state.LastMigration.Failed[0].SkuID)
	assert.False(t, state.LastMigration.Failed[0].Stranded)
}

func TestMigrationTopUpFailureOnExistingLineIsStranded(t *testing.T) {
	guest := &memGuestStore{snapshot: GuestCartSnapshot{Items: []GuestLine{{SkuID: 9, Quantity: 3}}}}
	remote := newFakeRemote()
	remote.items[9] = 2
	remote.failingSet[9] = true
	o := newOrchestrator(t, guest, remote, nil)

	state, err := o.SyncAuth(context.Background(), true, "tok")
	require.NoError(t, err)

	// the undo itself goes through SetCartItemQuantity, which keeps failing
	assert.Equal(t, 3, remote.itemsCopy()[9])
	require.NotNil(t, state.LastMigration)
	require.Len(t, state.LastMigration.Failed, 1)
	assert.True(t, state.LastMigration.Failed[0].Stranded)
	assert.Empty(t, state.LastMigration.Succeeded)
}

func TestMigrationReportsStrandedLineWhenUndoFails(t *testing.T) {
	guest := &memGuestStore{snapshot: GuestCartSnapshot{Items: []GuestLine{{SkuID: 9, Quantity: 2}}}}
	remote := newFakeRemote()
	remote.failingSet[9] = true
	remote.failingRemove[9] = true
	o := newOrchestrator(t, guest, remote, nil)

	state, err := o.SyncAuth(context.Background(), true, "tok")
	require.NoError(t, err)

	assert.Equal(t, map[int]int{9: 1}, remote.itemsCopy())
	require.NotNil(t, state.LastMigration)
	require.Len(t, state.LastMigration.Failed, 1)
	failed := state.LastMigration.Failed[0]
	assert.True(t, failed.Stranded)
	assert.ErrorContains(t, failed.Err, "undo add")
}

func TestMigrationPreservesGuestQuantities(t *testing.T) {
	guest := &memGuestStore{snapshot: GuestCartSnapshot{Items: []GuestLine{{SkuID: 4, Quantity: 3}}}}
	remote := newFakeRemote()
	remote.items[4] = 1
	o := newOrchestrator(t, guest, remote, nil)

	_, err := o.SyncAuth(context.Background(), true, "tok")
	require.NoError(t, err)
	assert.Equal(t, 4, remote.items[4])
}

func TestMigrationIsIdempotent(t *testing.T) {
	guest := &memGuestStore{snapshot: GuestCartSnapshot{Items: []GuestLine{{SkuID: 1, Quantity: 1}}}}
	remote := newFakeRemote()
	o := newOrchestrator(t, guest, remote, nil)

	_, err := o.SyncAuth(context.Background(), true, "tok")
	require.NoError(t, err)
	callsAfterFirst := remote.callCount()
	itemsAfterFirst := map[int]int{}
	for k, v := range remote.items {
		itemsAfterFirst[k] = v
	}

	_, err = o.Migrate(context.Background())
	require.NoError(t, err)
	_, err = o.SyncAuth(context.Background(), true, "tok")
	require.NoError(t, err)

	assert.Equal(t, callsAfterFirst, remote.callCount())
	assert.Equal(t, itemsAfterFirst, remote.items)
}

func TestMigrationWithEmptyGuestStoreMakesNoWrites(t *testing.T) {
	guest := &memGuestStore{}
	remote := newFakeRemote()
	o := newOrchestrator(t, guest, remote, nil)

	state, err := o.SyncAuth(context.Background(), true, "tok")
	require.NoError(t, err)
	assert.True(t, state.HasMigrated)
	assert.Equal(t, []string{"get"}, remote.calls)
}

func TestLogoutResetsMigrationFlag(t *testing.T) {
	guest := &memGuestStore{}
	remote := newFakeRemote()
	o := newOrchestrator(t, guest, remote, nil)

	_, err := o.SyncAuth(context.Background(), true, "tok")
	require.NoError(t, err)

	state, err := o.SyncAuth(context.Background(), false, "")
	require.NoError(t, err)
	assert.False(t, state.HasMigrated)
	assert.False(t, state.Authenticated)
	assert.Equal(t, GuestCartID, state.Cart.ID)

	_, err = o.AddItem(context.Background(), 33, nil)
	require.NoError(t, err)

	state, err = o.SyncAuth(context.Background(), true, "tok-2")
	require.NoError(t, err)
	assert.True(t, state.HasMigrated)
	assert.Equal(t, 1, remote.items[33])
	assert.Equal(t, "tok-2", remote.tokens[len(remote.tokens)-1])
}

func TestGuestStoreLoadFailureLeavesMigrationPending(t *testing.T) {
	guest := &memGuestStore{loadErr: pkgerrors.New(pkgerrors.CodeDependency, "redis down")}
	remote := newFakeRemote()
	o := newOrchestrator(t, guest, remote, nil)

	state, err := o.SyncAuth(context.Background(), true, "tok")
	require.Error(t, err)
	assert.False(t, state.HasMigrated)

	guest.loadErr = nil
	guest.snapshot = GuestCartSnapshot{Items: []GuestLine{{SkuID: 2, Quantity: 1}}}
	state, err = o.SyncAuth(context.Background(), true, "tok")
	require.NoError(t, err)
	assert.True(t, state.HasMigrated)
	assert.Equal(t, 1, remote.items[2])
}

func TestOrchestratorRecordsErrors(t *testing.T) {
	o := newOrchestrator(t, &memGuestStore{}, newFakeRemote(), nil)

	state, err := o.AddItem(context.Background(), -1, nil)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(state.Err).Code())
	assert.False(t, state.Loading)

	state, err = o.AddItem(context.Background(), 5, nil)
	require.NoError(t, err)
	assert.Nil(t, state.Err)
	assert.Len(t, state.Cart.Items, 1)
}

func TestMigrateRequiresAuthentication(t *testing.T) {
	o := newOrchestrator(t, &memGuestStore{}, newFakeRemote(), nil)
	_, err := o.Migrate(context.Background())
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeUnauthorized, typed.Code())
}

func TestLateRefreshDoesNotOverwriteGuestCartAfterLogout(t *testing.T) {
	guest := &memGuestStore{}
	remote := newFakeRemote()
	remote.items[5] = 2
	o := newOrchestrator(t, guest, remote, nil)

	_, err := o.SyncAuth(context.Background(), true, "tok")
	require.NoError(t, err)

	entered, release := remote.hold()
	done := make(chan State, 1)
	go func() {
		state, _ := o.Refresh(context.Background())
		done <- state
	}()
	assert.Equal(t, "get", <-entered)
	assert.True(t, o.State().Loading)

	state, err := o.SyncAuth(context.Background(), false, "")
	require.NoError(t, err)
	assert.Equal(t, GuestCartID, state.Cart.ID)

	release()
	<-done

	state = o.State()
	assert.False(t, state.Authenticated)
	assert.False(t, state.Loading)
	assert.Equal(t, GuestCartID, state.Cart.ID)
	assert.Empty(t, state.Cart.Items)
}

func TestLateMigrationDoesNotMarkLoggedOutSessionMigrated(t *testing.T) {
	guest := &memGuestStore{snapshot: GuestCartSnapshot{Items: []GuestLine{{SkuID: 3, Quantity: 1}}}}
	remote := newFakeRemote()
	sink := &recordingSink{}
	o := newOrchestrator(t, guest, remote, sink)

	entered, release := remote.hold()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = o.SyncAuth(context.Background(), true, "tok")
	}()
	assert.Equal(t, "add", <-entered)

	_, err := o.SyncAuth(context.Background(), false, "")
	require.NoError(t, err)

	release()
	<-done

	state := o.State()
	assert.False(t, state.Authenticated)
	assert.False(t, state.HasMigrated)
	assert.Nil(t, state.LastMigration)
	assert.Equal(t, GuestCartID, state.Cart.ID)
	assert.False(t, state.Loading)
}

func TestInterleavedMutationsAcrossLogoutKeepGuestResult(t *testing.T) {
	guest := &memGuestStore{}
	remote := newFakeRemote()
	o := newOrchestrator(t, guest, remote, nil)

	_, err := o.SyncAuth(context.Background(), true, "tok")
	require.NoError(t, err)

	entered, release := remote.hold()
	done := make(chan error, 1)
	go func() {
		_, addErr := o.AddItem(context.Background(), 11, nil)
		done <- addErr
	}()
	assert.Equal(t, "add", <-entered)

	_, err = o.SyncAuth(context.Background(), false, "")
	require.NoError(t, err)
	state, err := o.AddItem(context.Background(), 8, nil)
	require.NoError(t, err)
	require.Len(t, state.Cart.Items, 1)
	assert.True(t, state.Loading, "the server add is still in flight")

	release()
	require.NoError(t, <-done)

	state = o.State()
	assert.False(t, state.Loading)
	assert.Equal(t, GuestCartID, state.Cart.ID)
	require.Len(t, state.Cart.Items, 1)
	assert.Equal(t, 8, state.Cart.Items[0].SkuID)
	assert.Equal(t, 1, remote.itemsCopy()[11], "the server call still lands server-side")
	assert.Equal(t, []GuestLine{{SkuID: 8, Quantity: 1}}, guest.snapshot.Items)
}
