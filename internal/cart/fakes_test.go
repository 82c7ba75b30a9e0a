package cart

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/angelmondragon/storefront-core/pkg/commerce"
	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/shopspring/decimal"
)

type memGuestStore struct {
	mu       sync.Mutex
	snapshot GuestCartSnapshot
	saves    []GuestCartSnapshot
	clears   int
	loadErr  error
}

func (m *memGuestStore) Load(context.Context) (GuestCartSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return GuestCartSnapshot{}, m.loadErr
	}
	items := make([]GuestLine, len(m.snapshot.Items))
	copy(items, m.snapshot.Items)
	return GuestCartSnapshot{Items: items}, nil
}

func (m *memGuestStore) Save(_ context.Context, snapshot GuestCartSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]GuestLine, len(snapshot.Items))
	copy(items, snapshot.Items)
	m.snapshot = GuestCartSnapshot{Items: items}
	m.saves = append(m.saves, m.snapshot)
	return nil
}

func (m *memGuestStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = GuestCartSnapshot{}
	m.clears++
	return nil
}

type stubPreview struct {
	calls int
	err   error
	price decimal.Decimal
	// unavailable SKUs are returned but excluded from the subtotal
	unavailable map[int]bool
}

func (s *stubPreview) PreviewCart(_ context.Context, lines []commerce.PreviewLine) (*commerce.Preview, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	price := s.price
	if price.IsZero() {
		price = decimal.NewFromInt(10)
	}
	out := &commerce.Preview{Subtotal: decimal.Zero}
	for _, line := range lines {
		available := !s.unavailable[line.SkuID]
		out.Items = append(out.Items, commerce.CartLine{
			SkuID:     line.SkuID,
			Quantity:  line.Quantity,
			Available: &available,
			Product:   &commerce.ProductSnapshot{Title: "Item", Price: price, PartnerCode: "P"},
		})
		if available {
			out.Subtotal = out.Subtotal.Add(price.Mul(decimal.NewFromInt(int64(line.Quantity))))
		}
	}
	return out, nil
}

type fakeRemote struct {
	mu      sync.Mutex
	id      int64
	items   map[int]int
	failing map[int]bool
	// quantity updates for these SKUs fail; removes for failingRemove SKUs fail
	failingSet    map[int]bool
	failingRemove map[int]bool
	calls         []string
	tokens        []string
	// gate, when set, blocks GetCart and AddCartItem until it is closed
	gate    chan struct{}
	entered chan string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		id:            77,
		items:         map[int]int{},
		failing:       map[int]bool{},
		failingSet:    map[int]bool{},
		failingRemove: map[int]bool{},
	}
}

func (f *fakeRemote) wait(call string) {
	f.mu.Lock()
	gate, entered := f.gate, f.entered
	f.mu.Unlock()
	if gate == nil {
		return
	}
	if entered != nil {
		entered <- call
	}
	<-gate
}

func (f *fakeRemote) snapshot() *commerce.RemoteCart {
	out := &commerce.RemoteCart{ID: f.id, Subtotal: decimal.Zero}
	skus := make([]int, 0, len(f.items))
	for sku := range f.items {
		skus = append(skus, sku)
	}
	sort.Ints(skus)
	for _, sku := range skus {
		out.Items = append(out.Items, commerce.CartLine{SkuID: sku, Quantity: f.items[sku]})
		out.Subtotal = out.Subtotal.Add(decimal.NewFromInt(int64(10 * f.items[sku])))
	}
	return out
}

func (f *fakeRemote) record(call, token string) {
	f.calls = append(f.calls, call)
	f.tokens = append(f.tokens, token)
}

func (f *fakeRemote) GetCart(_ context.Context, token string) (*commerce.RemoteCart, error) {
	f.wait("get")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("get", token)
	return f.snapshot(), nil
}

func (f *fakeRemote) AddCartItem(_ context.Context, token string, skuID int, _ *int) (*commerce.RemoteCart, error) {
	f.wait("add")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("add", token)
	if f.failing[skuID] {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "sku unavailable")
	}
	f.items[skuID]++
	return f.snapshot(), nil
}

func (f *fakeRemote) SetCartItemQuantity(_ context.Context, token string, skuID, quantity int) (*commerce.RemoteCart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("set", token)
	if f.failingSet[skuID] {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "quantity update failed")
	}
	if _, ok := f.items[skuID]; !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "line not found")
	}
	f.items[skuID] = quantity
	return f.snapshot(), nil
}

func (f *fakeRemote) RemoveCartItem(_ context.Context, token string, skuID int) (*commerce.RemoteCart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("remove", token)
	if f.failingRemove[skuID] {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "remove failed")
	}
	delete(f.items, skuID)
	return f.snapshot(), nil
}

func (f *fakeRemote) ClearCart(_ context.Context, token string) (*commerce.RemoteCart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("clear", token)
	f.items = map[int]int{}
	return f.snapshot(), nil
}

// hold makes the next GetCart and AddCartItem calls block until the returned release is called.
func (f *fakeRemote) hold() (entered <-chan string, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	f.entered = make(chan string, 16)
	gate := f.gate
	return f.entered, func() { close(gate) }
}

func (f *fakeRemote) itemsCopy() map[int]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int]int, len(f.items))
	for k, v := range f.items {
		out[k] = v
	}
	return out
}

func (f *fakeRemote) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

var errPreviewDown = errors.New("preview unavailable")
