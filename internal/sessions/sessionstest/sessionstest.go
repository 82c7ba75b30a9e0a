// Package sessionstest builds an in-memory session registry for handler tests.
package sessionstest

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-core/internal/cart"
	"github.com/angelmondragon/storefront-core/internal/checkout"
	"github.com/angelmondragon/storefront-core/internal/sessions"
	"github.com/angelmondragon/storefront-core/pkg/commerce"
	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/angelmondragon/storefront-core/pkg/gateway"
)

// UnitPrice is charged for every SKU.
var UnitPrice = decimal.NewFromInt(50)

// MemGuest keeps a guest snapshot in memory.
type MemGuest struct {
	mu       sync.Mutex
	snapshot cart.GuestCartSnapshot
}

func (m *MemGuest) Load(context.Context) (cart.GuestCartSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot, nil
}

func (m *MemGuest) Save(_ context.Context, s cart.GuestCartSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = s
	return nil
}

func (m *MemGuest) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = cart.GuestCartSnapshot{}
	return nil
}

// Backend plays the commerce backend and the card gateway. Remote carts are keyed by token.
type Backend struct {
	mu       sync.Mutex
	carts    map[string]map[int]int
	Taken    map[string]bool
	Decline  string
	payments int
}

// NewBackend returns a backend that approves every payment.
func NewBackend() *Backend {
	return &Backend{carts: map[string]map[int]int{}, Taken: map[string]bool{}}
}

// Payments reports how many payment calls were made.
func (b *Backend) Payments() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.payments
}

func (b *Backend) PreviewCart(_ context.Context, lines []commerce.PreviewLine) (*commerce.Preview, error) {
	out := &commerce.Preview{Subtotal: decimal.Zero}
	for _, line := range lines {
		out.Items = append(out.Items, pricedLine(line.SkuID, line.Quantity))
		out.Subtotal = out.Subtotal.Add(UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return out, nil
}

func pricedLine(skuID, quantity int) commerce.CartLine {
	available := true
	return commerce.CartLine{
		SkuID:     skuID,
		Quantity:  quantity,
		Available: &available,
		Product:   &commerce.ProductSnapshot{Title: "Item", Price: UnitPrice, PartnerCode: "P"},
	}
}

func (b *Backend) remote(token string) *commerce.RemoteCart {
	items := b.carts[token]
	skus := make([]int, 0, len(items))
	for sku := range items {
		skus = append(skus, sku)
	}
	sort.Ints(skus)
	out := &commerce.RemoteCart{ID: 1, Subtotal: decimal.Zero}
	for _, sku := range skus {
		out.Items = append(out.Items, pricedLine(sku, items[sku]))
		out.Subtotal = out.Subtotal.Add(UnitPrice.Mul(decimal.NewFromInt(int64(items[sku]))))
	}
	return out
}

func (b *Backend) mutate(token string, apply func(map[int]int)) (*commerce.RemoteCart, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "token required")
	}
	if b.carts[token] == nil {
		b.carts[token] = map[int]int{}
	}
	apply(b.carts[token])
	return b.remote(token), nil
}

func (b *Backend) GetCart(_ context.Context, token string) (*commerce.RemoteCart, error) {
	return b.mutate(token, func(map[int]int) {})
}

func (b *Backend) AddCartItem(_ context.Context, token string, skuID int, _ *int) (*commerce.RemoteCart, error) {
	return b.mutate(token, func(items map[int]int) { items[skuID]++ })
}

func (b *Backend) SetCartItemQuantity(_ context.Context, token string, skuID, quantity int) (*commerce.RemoteCart, error) {
	return b.mutate(token, func(items map[int]int) {
		if quantity <= 0 {
			delete(items, skuID)
			return
		}
		items[skuID] = quantity
	})
}

func (b *Backend) RemoveCartItem(_ context.Context, token string, skuID int) (*commerce.RemoteCart, error) {
	return b.mutate(token, func(items map[int]int) { delete(items, skuID) })
}

func (b *Backend) ClearCart(_ context.Context, token string) (*commerce.RemoteCart, error) {
	return b.mutate(token, func(items map[int]int) {
		for sku := range items {
			delete(items, sku)
		}
	})
}

func (b *Backend) QuoteShipping(context.Context, string, []commerce.ShippingItem) ([]commerce.ShippingQuote, error) {
	return []commerce.ShippingQuote{
		{ServiceName: "express", Price: decimal.NewFromInt(30), DeliveryDays: 1},
		{ServiceName: "standard", Price: decimal.NewFromInt(10), DeliveryDays: 5},
	}, nil
}

func (b *Backend) CheckAvailability(_ context.Context, _ commerce.AvailabilityField, value string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.Taken[value], nil
}

func (b *Backend) Tokenize(context.Context, gateway.CardData) (string, error) {
	return "card-tok", nil
}

func (b *Backend) Register(context.Context, string, commerce.RegistrationRequest) (*commerce.RegistrationResponse, error) {
	return &commerce.RegistrationResponse{CustomerID: 9, OrderID: "ord-1"}, nil
}

func (b *Backend) PayCredit(_ context.Context, _ string, _ commerce.CardPaymentRequest) (*commerce.PaymentResponse, error) {
	return b.pay()
}

func (b *Backend) PayDebit(_ context.Context, _ string, _ commerce.CardPaymentRequest) (*commerce.PaymentResponse, error) {
	return b.pay()
}

func (b *Backend) PayPix(_ context.Context, _ string, _ commerce.PixPaymentRequest) (*commerce.PaymentResponse, error) {
	return b.pay()
}

func (b *Backend) pay() (*commerce.PaymentResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payments++
	if b.Decline != "" {
		return &commerce.PaymentResponse{Success: false, Message: b.Decline}, nil
	}
	return &commerce.PaymentResponse{Success: true, TransactionID: "tx-1", OrderID: "ord-1"}, nil
}

// NewRegistry wires a registry whose sessions talk to a fresh Backend.
func NewRegistry(t testing.TB) (*sessions.Registry, *Backend) {
	t.Helper()
	backend := NewBackend()
	validator := checkout.NewValidator(8)
	pipeline, err := checkout.NewPipeline(checkout.PipelineConfig{
		Validator: validator,
		Tokenizer: backend,
		Registrar: backend,
		Payments:  backend,
	})
	require.NoError(t, err)

	registry, err := sessions.NewRegistry(sessions.Config{
		NewCart: func(sessionID string) (*cart.Orchestrator, error) {
			return cart.NewOrchestrator(cart.OrchestratorConfig{
				SessionID: sessionID,
				Guest:     &MemGuest{},
				Preview:   backend,
				Remote:    backend,
			})
		},
		NewFlow: func(sessionID string, source checkout.CartSource) (*checkout.Flow, error) {
			return checkout.NewFlow(sessionID, source, checkout.FlowDeps{
				Validator:    validator,
				Quotes:       backend,
				Availability: backend,
				Pipeline:     pipeline,
			})
		},
	})
	require.NoError(t, err)
	return registry, backend
}
