package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/storefront-core/internal/cart"
	"github.com/angelmondragon/storefront-core/pkg/commerce"
	"github.com/angelmondragon/storefront-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/angelmondragon/storefront-core/pkg/logger"
	"github.com/angelmondragon/storefront-core/pkg/metrics"
	"github.com/angelmondragon/storefront-core/pkg/postalcode"
	"github.com/shopspring/decimal"
)

// CartSource is the slice of the cart orchestrator the checkout needs.
type CartSource interface {
	State() cart.State
	Clear(ctx context.Context) (cart.State, error)
}

// AddressLookup resolves a postal code into street, neighborhood, city and state.
type AddressLookup interface {
	Lookup(ctx context.Context, postalCode string) (*postalcode.Address, error)
}

// CompletionSink is told about confirmed orders.
type CompletionSink interface {
	CheckoutCompleted(ctx context.Context, sessionID string, completed Completed)
}

// Completed describes a confirmed order.
type Completed struct {
	CustomerID    string
	OrderID       string
	TransactionID string
	PaymentMethod string
	Amount        decimal.Decimal
	Items         int
}

// Auth is the caller's authentication state for one request.
type Auth struct {
	Authenticated bool
	Token         string
	CustomerID    string
}

// FlowDeps are shared by every flow of the process.
type FlowDeps struct {
	Validator        *Validator
	Profiles         ProfileSource
	Addresses        AddressLookup
	Quotes           QuoteAPI
	Availability     AvailabilityAPI
	Pipeline         *Pipeline
	Events           CompletionSink
	Logger           *logger.Logger
	Metrics          *metrics.CheckoutMetrics
	ShippingDebounce time.Duration
}

// View is what the caller renders after each interaction.
type View struct {
	Form          FormSnapshot     `json:"form"`
	Step          Step             `json:"step"`
	AllowedStep   Step             `json:"allowed_step"`
	Errors        ValidationErrors `json:"errors"`
	Shipping      ShippingState    `json:"shipping"`
	ShippingError string           `json:"shipping_error,omitempty"`
	Completed     bool             `json:"completed"`
}

// Flow is one checkout wizard of one storefront session. It owns the form, the gate and
// the shipping adapter and dies with the session.
type Flow struct {
	sessionID    string
	deps         FlowDeps
	cart         CartSource
	form         *Form
	gate         *Gate
	shipping     *ShippingAdapter
	availability *AvailabilityChecker

	submitMu  sync.Mutex
	mu        sync.Mutex
	completed bool
}

// NewFlow starts a flow bound to the session's cart.
func NewFlow(sessionID string, source CartSource, deps FlowDeps) (*Flow, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("session id required")
	}
	if source == nil {
		return nil, fmt.Errorf("cart source required")
	}
	if deps.Validator == nil {
		return nil, fmt.Errorf("validator required")
	}
	if deps.Pipeline == nil {
		return nil, fmt.Errorf("pipeline required")
	}
	shipping, err := NewShippingAdapter(deps.Quotes, deps.Validator.PostalCodeLength(), deps.ShippingDebounce, deps.Logger, deps.Metrics)
	if err != nil {
		return nil, err
	}
	var availability *AvailabilityChecker
	if deps.Availability != nil {
		if availability, err = NewAvailabilityChecker(deps.Availability, deps.Validator); err != nil {
			return nil, err
		}
	}
	return &Flow{
		sessionID:    sessionID,
		deps:         deps,
		cart:         source,
		form:         NewForm(),
		gate:         NewGate(),
		shipping:     shipping,
		availability: availability,
	}, nil
}

// Start prefills the form for an authenticated customer and quotes the prefilled postal
// code. Prefill failures are logged; the shopper can still type everything.
func (f *Flow) Start(ctx context.Context, auth Auth) View {
	ctx = f.logCtx(ctx)
	if !auth.Authenticated {
		return f.View()
	}
	outcome, err := f.form.Prefill(ctx, f.deps.Profiles, auth.CustomerID, auth.Token)
	if err != nil && f.deps.Logger != nil {
		f.deps.Logger.Warn(f.deps.Logger.WithField(ctx, "error", err.Error()), "checkout.prefill.failed")
	}
	view := f.View()
	if outcome == PrefillApplied && view.Form.Data.PostalCode != "" {
		return f.quote(ctx, view.Form.Data.PostalCode)
	}
	return view
}

// View returns the current state. The gate is pulled back first when edits invalidated an
// earlier step.
func (f *Flow) View() View {
	snapshot := f.form.Snapshot()
	errs := f.deps.Validator.ValidateForm(snapshot.Data)
	f.mu.Lock()
	completed := f.completed
	f.mu.Unlock()
	shipping := f.shipping.Current()
	view := View{
		Form:        snapshot,
		Step:        f.gate.Reconcile(snapshot.Data, errs),
		AllowedStep: DeriveAllowedStep(snapshot.Data, errs),
		Errors:      errs,
		Shipping:    shipping,
		Completed:   completed,
	}
	if shipping.Err != nil {
		view.ShippingError = publicMessage(shipping.Err)
	}
	return view
}

// ApplyFields merges edited fields. A postal code edit autofills the address when the code
// is complete and re-quotes shipping; an incomplete code clears the quote.
func (f *Flow) ApplyFields(ctx context.Context, patch FieldPatch) (View, error) {
	if f.isCompleted() {
		return f.View(), errCompleted()
	}
	ctx = f.logCtx(ctx)
	changes := f.form.Apply(patch)
	if !changes.PostalCode {
		return f.View(), nil
	}
	postal := f.form.Snapshot().Data.PostalCode
	if len(onlyDigits(postal)) == f.deps.Validator.PostalCodeLength() {
		f.autofill(ctx, postal)
	}
	return f.quote(ctx, postal), nil
}

func (f *Flow) autofill(ctx context.Context, postal string) {
	if f.deps.Addresses == nil {
		return
	}
	addr, err := f.deps.Addresses.Lookup(ctx, postal)
	if err != nil || addr == nil {
		if err != nil && f.deps.Logger != nil {
			f.deps.Logger.Warn(f.deps.Logger.WithField(ctx, "error", err.Error()), "checkout.address.autofill_failed")
		}
		return
	}
	f.form.setAddress(addr.Street, addr.Complement, addr.Neighborhood, addr.City, addr.State)
}

func (f *Flow) quote(ctx context.Context, postal string) View {
	_, err := f.shipping.Lookup(ctx, postal, shippingItems(f.cart.State().Cart))
	view := f.View()
	if err != nil && !errors.Is(err, ErrLookupSuperseded) && !errors.Is(err, context.Canceled) {
		view.ShippingError = publicMessage(err)
	}
	return view
}

// RefreshShipping re-quotes the current postal code, for example after the cart changed.
func (f *Flow) RefreshShipping(ctx context.Context) View {
	return f.quote(f.logCtx(ctx), f.form.Snapshot().Data.PostalCode)
}

// SelectShipping picks a quoted option.
func (f *Flow) SelectShipping(serviceName string) (View, error) {
	_, err := f.shipping.Select(serviceName)
	return f.View(), err
}

// RequestStep asks the gate to move.
func (f *Flow) RequestStep(step Step) (View, error) {
	snapshot := f.form.Snapshot()
	_, err := f.gate.Request(step, snapshot.Data, f.deps.Validator.ValidateForm(snapshot.Data))
	return f.View(), err
}

// CheckAvailability runs the asynchronous uniqueness check. A customer's own prefilled
// value is always available to them.
func (f *Flow) CheckAvailability(ctx context.Context, auth Auth, field commerce.AvailabilityField, value string) (Availability, error) {
	if f.availability == nil {
		return Availability{Field: field}, pkgerrors.New(pkgerrors.CodeDependency, "availability check not configured")
	}
	if auth.Authenticated {
		data := f.form.Snapshot().Data
		current := data.Email
		if field == commerce.AvailabilityDocument {
			current = data.Document
			if data.ProfileType == enums.ProfileTypeBusiness {
				current = data.CompanyDocument
			}
		}
		if current != "" && strings.EqualFold(strings.TrimSpace(value), current) {
			return Availability{Field: field, Available: true}, nil
		}
	}
	return f.availability.Check(f.logCtx(ctx), field, value)
}

// Submit runs the pipeline once. The cart is cleared only after a confirmed success.
func (f *Flow) Submit(ctx context.Context, auth Auth, secrets CardSecrets) Result {
	if !f.submitMu.TryLock() {
		return failure(pkgerrors.New(pkgerrors.CodeConflict, "a submission is already in progress"), nil)
	}
	defer f.submitMu.Unlock()
	if f.isCompleted() {
		return failure(errCompleted(), nil)
	}
	ctx = f.logCtx(ctx)

	snapshot := f.form.Snapshot()
	formErrs := f.deps.Validator.ValidateForm(snapshot.Data)
	f.gate.Reconcile(snapshot.Data, formErrs)

	current := f.cart.State().Cart
	if current.IsEmpty() {
		return failure(pkgerrors.New(pkgerrors.CodeValidation, "cart is empty"), nil)
	}
	shipping := f.shipping.Current()
	if formErrs.Empty() && shipping.Selected == nil {
		return failure(pkgerrors.New(pkgerrors.CodeValidation, "select a shipping option").
			WithDetails(map[string]string{"shipping": "is required"}), nil)
	}
	amount := current.Subtotal
	if shipping.Selected != nil {
		amount = amount.Add(shipping.Selected.Price)
	}

	result := f.deps.Pipeline.Submit(ctx, Submission{
		SessionID:     f.sessionID,
		CustomerID:    auth.CustomerID,
		Authenticated: auth.Authenticated,
		Token:         auth.Token,
		Form:          snapshot,
		Secrets:       secrets,
		Amount:        amount,
	})
	if !result.Success {
		if result.Errors != nil {
			f.gate.Reconcile(snapshot.Data, *result.Errors)
		}
		return result
	}

	f.mu.Lock()
	f.completed = true
	f.mu.Unlock()
	f.shipping.Clear()
	if _, err := f.cart.Clear(ctx); err != nil && f.deps.Logger != nil {
		f.deps.Logger.Error(ctx, "checkout.cart_clear_failed", err)
	}
	if f.deps.Events != nil {
		f.deps.Events.CheckoutCompleted(ctx, f.sessionID, Completed{
			CustomerID:    auth.CustomerID,
			OrderID:       result.OrderID,
			TransactionID: result.TransactionID,
			PaymentMethod: string(snapshot.Data.PaymentMethod),
			Amount:        amount,
			Items:         len(current.Items),
		})
	}
	return result
}

// Close ends the flow: in-flight lookups are cancelled and late prefill responses dropped.
func (f *Flow) Close() {
	f.form.Close()
	f.shipping.Clear()
}

func (f *Flow) isCompleted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

func (f *Flow) logCtx(ctx context.Context) context.Context {
	if f.deps.Logger == nil {
		return ctx
	}
	return f.deps.Logger.WithSessionID(ctx, f.sessionID)
}

func errCompleted() error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "checkout already completed")
}

func shippingItems(c cart.Cart) []commerce.ShippingItem {
	out := make([]commerce.ShippingItem, 0, len(c.Items))
	for _, item := range c.Items {
		if item.Available != nil && !*item.Available {
			continue
		}
		line := commerce.ShippingItem{SkuID: item.SkuID, Quantity: item.Quantity}
		if item.Unit != nil {
			line.PartnerCode = item.Unit.PartnerCode
		}
		out = append(out, line)
	}
	return out
}

func publicMessage(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil {
		return pkgerrors.MetadataFor(pkgerrors.CodeDependency).PublicMessage
	}
	if typed.Code() == pkgerrors.CodeValidation || typed.Code() == pkgerrors.CodeNotFound {
		return typed.Message()
	}
	return pkgerrors.MetadataFor(typed.Code()).PublicMessage
}
