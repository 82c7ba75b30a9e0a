package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/storefront-core/pkg/commerce"
	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/angelmondragon/storefront-core/pkg/logger"
	"github.com/angelmondragon/storefront-core/pkg/metrics"
)

// QuoteAPI prices delivery for a postal code and a set of lines.
type QuoteAPI interface {
	QuoteShipping(ctx context.Context, postalCode string, items []commerce.ShippingItem) ([]commerce.ShippingQuote, error)
}

// ErrLookupSuperseded is returned to a lookup that a newer one cancelled.
var ErrLookupSuperseded = errors.New("shipping lookup superseded")

// ShippingState is the quote currently shown to the shopper.
type ShippingState struct {
	PostalCode string                   `json:"postal_code,omitempty"`
	Quotes     []commerce.ShippingQuote `json:"quotes"`
	Selected   *commerce.ShippingQuote  `json:"selected,omitempty"`
	Loading    bool                     `json:"loading"`
	Err        error                    `json:"-"`
}

// ShippingAdapter runs debounced, cancellable quote lookups. A new lookup cancels the one in
// flight; an incomplete postal code clears the quote without calling out.
type ShippingAdapter struct {
	api         QuoteAPI
	requiredLen int
	debounce    time.Duration
	logg        *logger.Logger
	metrics     *metrics.CheckoutMetrics

	mu       sync.Mutex
	seq      uint64
	cancel   context.CancelFunc
	state    ShippingState
	selected string
}

// NewShippingAdapter builds an adapter for postal codes of requiredLen digits.
func NewShippingAdapter(api QuoteAPI, requiredLen int, debounce time.Duration, logg *logger.Logger, m *metrics.CheckoutMetrics) (*ShippingAdapter, error) {
	if api == nil {
		return nil, fmt.Errorf("quote api required")
	}
	if requiredLen <= 0 {
		return nil, fmt.Errorf("postal code length must be positive")
	}
	if debounce < 0 {
		debounce = 0
	}
	return &ShippingAdapter{
		api:         api,
		requiredLen: requiredLen,
		debounce:    debounce,
		logg:        logg,
		metrics:     m,
		state:       ShippingState{Quotes: []commerce.ShippingQuote{}},
	}, nil
}

// Current returns a copy of the shipping state.
func (a *ShippingAdapter) Current() ShippingState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.copyLocked()
}

// Lookup quotes the postal code. The result of a lookup that a newer one superseded is
// dropped and ErrLookupSuperseded returned. Failures clear the quote; callers surface the
// error without blocking the form.
func (a *ShippingAdapter) Lookup(ctx context.Context, postalCode string, items []commerce.ShippingItem) (ShippingState, error) {
	digits := onlyDigits(postalCode)

	a.mu.Lock()
	a.seq++
	seq := a.seq
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if len(digits) != a.requiredLen || len(items) == 0 {
		a.state = ShippingState{Quotes: []commerce.ShippingQuote{}}
		a.selected = ""
		a.mu.Unlock()
		a.metrics.IncShippingLookup("skipped")
		return a.Current(), nil
	}
	lookupCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.state.Loading = true
	a.mu.Unlock()
	defer cancel()

	if a.debounce > 0 {
		timer := time.NewTimer(a.debounce)
		select {
		case <-lookupCtx.Done():
			timer.Stop()
			return a.superseded(seq, lookupCtx.Err())
		case <-timer.C:
		}
	}

	quotes, err := a.api.QuoteShipping(lookupCtx, digits, items)

	a.mu.Lock()
	defer a.mu.Unlock()
	if seq != a.seq {
		a.metrics.IncShippingLookup("superseded")
		return a.copyLocked(), ErrLookupSuperseded
	}
	a.cancel = nil
	if err != nil {
		err = pkgerrors.Classify(err, "quote shipping")
		a.state = ShippingState{Quotes: []commerce.ShippingQuote{}, Err: err}
		a.selected = ""
		a.metrics.IncShippingLookup("failed")
		if a.logg != nil {
			a.logg.Warn(a.logg.WithField(ctx, "error", err.Error()), "checkout.shipping.lookup_failed")
		}
		return a.copyLocked(), err
	}
	if quotes == nil {
		quotes = []commerce.ShippingQuote{}
	}
	a.state = ShippingState{PostalCode: digits, Quotes: quotes}
	a.applySelectionLocked()
	a.metrics.IncShippingLookup("quoted")
	return a.copyLocked(), nil
}

func (a *ShippingAdapter) superseded(seq uint64, cause error) (ShippingState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if seq == a.seq {
		// The caller's own context ended; nothing newer replaced this lookup.
		a.state.Loading = false
		a.cancel = nil
		return a.copyLocked(), cause
	}
	a.metrics.IncShippingLookup("superseded")
	return a.copyLocked(), ErrLookupSuperseded
}

// Select picks the quote the shopper chose by service name.
func (a *ShippingAdapter) Select(serviceName string) (ShippingState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, q := range a.state.Quotes {
		if q.ServiceName == serviceName {
			a.selected = serviceName
			a.applySelectionLocked()
			return a.copyLocked(), nil
		}
	}
	return a.copyLocked(), pkgerrors.New(pkgerrors.CodeValidation, "unknown shipping option").
		WithDetails(map[string]any{"service_name": serviceName})
}

// Clear cancels any lookup in flight and drops the quote.
func (a *ShippingAdapter) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.state = ShippingState{Quotes: []commerce.ShippingQuote{}}
	a.selected = ""
}

// applySelectionLocked keeps the shopper's choice when it is still offered, falling back to
// the cheapest option.
func (a *ShippingAdapter) applySelectionLocked() {
	a.state.Selected = nil
	var cheapest *commerce.ShippingQuote
	for i := range a.state.Quotes {
		q := a.state.Quotes[i]
		if a.selected != "" && q.ServiceName == a.selected {
			a.state.Selected = &q
			return
		}
		if cheapest == nil || q.Price.LessThan(cheapest.Price) {
			cheapest = &q
		}
	}
	a.state.Selected = cheapest
	if cheapest != nil {
		a.selected = cheapest.ServiceName
	}
}

func (a *ShippingAdapter) copyLocked() ShippingState {
	out := a.state
	out.Quotes = append([]commerce.ShippingQuote(nil), a.state.Quotes...)
	if out.Quotes == nil {
		out.Quotes = []commerce.ShippingQuote{}
	}
	if a.state.Selected != nil {
		selected := *a.state.Selected
		out.Selected = &selected
	}
	return out
}
