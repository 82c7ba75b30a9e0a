package cart

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-core/pkg/commerce"
	"github.com/angelmondragon/storefront-core/pkg/logger"
	"github.com/angelmondragon/storefront-core/pkg/metrics"
	"github.com/shopspring/decimal"
)

// GuestRepository mutates the guest snapshot and enriches it through the preview call.
type GuestRepository struct {
	store   GuestStore
	preview PreviewAPI
	logg    *logger.Logger
	metrics *metrics.CartMetrics
}

// NewGuestRepository builds the unauthenticated strategy.
func NewGuestRepository(store GuestStore, preview PreviewAPI, logg *logger.Logger, m *metrics.CartMetrics) (*GuestRepository, error) {
	if store == nil {
		return nil, fmt.Errorf("guest store required")
	}
	if preview == nil {
		return nil, fmt.Errorf("preview api required")
	}
	return &GuestRepository{store: store, preview: preview, logg: logg, metrics: m}, nil
}

func (r *GuestRepository) Get(ctx context.Context) (Cart, error) {
	snapshot, err := r.store.Load(ctx)
	if err != nil {
		return Cart{}, err
	}
	return r.enrich(ctx, snapshot), nil
}

func (r *GuestRepository) AddItem(ctx context.Context, skuID int, productID *int) (Cart, error) {
	if err := validateSku(skuID); err != nil {
		return Cart{}, err
	}
	return r.mutate(ctx, func(lines []GuestLine) []GuestLine {
		for i := range lines {
			if lines[i].SkuID == skuID {
				lines[i].Quantity++
				if lines[i].ProductID == nil {
					lines[i].ProductID = productID
				}
				return lines
			}
		}
		return append(lines, GuestLine{SkuID: skuID, ProductID: productID, Quantity: 1})
	})
}

// SetItemQuantity replaces the quantity; zero or less removes the line.
func (r *GuestRepository) SetItemQuantity(ctx context.Context, skuID, quantity int) (Cart, error) {
	if err := validateSku(skuID); err != nil {
		return Cart{}, err
	}
	if quantity <= 0 {
		return r.RemoveItem(ctx, skuID)
	}
	return r.mutate(ctx, func(lines []GuestLine) []GuestLine {
		for i := range lines {
			if lines[i].SkuID == skuID {
				lines[i].Quantity = quantity
				return lines
			}
		}
		return append(lines, GuestLine{SkuID: skuID, Quantity: quantity})
	})
}

func (r *GuestRepository) RemoveItem(ctx context.Context, skuID int) (Cart, error) {
	if err := validateSku(skuID); err != nil {
		return Cart{}, err
	}
	return r.mutate(ctx, func(lines []GuestLine) []GuestLine {
		out := lines[:0]
		for _, line := range lines {
			if line.SkuID != skuID {
				out = append(out, line)
			}
		}
		return out
	})
}

func (r *GuestRepository) Clear(ctx context.Context) (Cart, error) {
	if err := r.store.Clear(ctx); err != nil {
		return Cart{}, err
	}
	return emptyCart(GuestCartID), nil
}

func (r *GuestRepository) mutate(ctx context.Context, apply func([]GuestLine) []GuestLine) (Cart, error) {
	snapshot, err := r.store.Load(ctx)
	if err != nil {
		return Cart{}, err
	}
	snapshot.Items = apply(snapshot.Items)
	snapshot = sanitize(snapshot)
	if err := r.store.Save(ctx, snapshot); err != nil {
		return Cart{}, err
	}
	return r.enrich(ctx, snapshot), nil
}

// enrich never fails: an empty snapshot skips the call and a failed preview degrades
// to identifiers and quantities with a zero subtotal.
func (r *GuestRepository) enrich(ctx context.Context, snapshot GuestCartSnapshot) Cart {
	if len(snapshot.Items) == 0 {
		return emptyCart(GuestCartID)
	}

	lines := make([]commerce.PreviewLine, 0, len(snapshot.Items))
	for _, line := range snapshot.Items {
		lines = append(lines, commerce.PreviewLine{SkuID: line.SkuID, Quantity: line.Quantity})
	}

	preview, err := r.preview.PreviewCart(ctx, lines)
	if err != nil || preview == nil {
		if r.logg != nil {
			r.logg.Error(r.logg.WithField(ctx, "items", len(lines)), "cart.guest.preview_degraded", err)
		}
		r.metrics.IncDegradedPreview()
		return degraded(snapshot)
	}

	enriched := make(map[int]commerce.CartLine, len(preview.Items))
	for _, line := range preview.Items {
		enriched[line.SkuID] = line
	}

	out := Cart{ID: GuestCartID, Items: make([]CartItem, 0, len(snapshot.Items)), Subtotal: preview.Subtotal}
	for _, line := range snapshot.Items {
		item := CartItem{SkuID: line.SkuID, ProductID: line.ProductID, Quantity: line.Quantity}
		if match, ok := enriched[line.SkuID]; ok {
			item = fromLine(match)
			item.ProductID = firstNonNil(line.ProductID, match.ProductID)
			item.Quantity = line.Quantity
			item.ID = nil
		}
		out.Items = append(out.Items, item)
	}
	return out
}

func degraded(snapshot GuestCartSnapshot) Cart {
	out := Cart{ID: GuestCartID, Items: make([]CartItem, 0, len(snapshot.Items)), Subtotal: decimal.Zero}
	for _, line := range snapshot.Items {
		out.Items = append(out.Items, CartItem{SkuID: line.SkuID, ProductID: line.ProductID, Quantity: line.Quantity})
	}
	return out
}

func firstNonNil(values ...*int) *int {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
