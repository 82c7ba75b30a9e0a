package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/angelmondragon/storefront-core/internal/cart"
	"github.com/angelmondragon/storefront-core/pkg/commerce"
	"github.com/angelmondragon/storefront-core/pkg/db/models"
	"github.com/angelmondragon/storefront-core/pkg/gateway"
	"github.com/shopspring/decimal"
)

var fixedNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func testValidator() *Validator {
	return NewValidator(8, WithClock(func() time.Time { return fixedNow }))
}

func validForm() FormData {
	d := DefaultFormData()
	d.Email = "ana@example.com"
	d.Phone = "(11) 98765-4321"
	d.FullName = "Ana Souza"
	d.Document = "529.982.247-25"
	d.BirthDate = "1990-05-10"
	d.PostalCode = "01310-100"
	d.Street = "Avenida Paulista"
	d.Number = "1000"
	d.Neighborhood = "Bela Vista"
	d.City = "Sao Paulo"
	d.State = "SP"
	d.CardHolder = "ANA SOUZA"
	d.CardExpiry = "12/30"
	return d
}

var visaSecrets = CardSecrets{Number: "4111 1111 1111 1111", CVV: "123"}

type fakeTokenizer struct {
	mu    sync.Mutex
	calls []gateway.CardData
	token string
	err   error
}

func (f *fakeTokenizer) Tokenize(_ context.Context, card gateway.CardData) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, card)
	if f.err != nil {
		return "", f.err
	}
	if f.token == "" {
		return "tok_card_1", nil
	}
	return f.token, nil
}

type fakeRegistrar struct {
	mu       sync.Mutex
	requests []commerce.RegistrationRequest
	tokens   []string
	resp     *commerce.RegistrationResponse
	err      error
}

func (f *fakeRegistrar) Register(_ context.Context, token string, req commerce.RegistrationRequest) (*commerce.RegistrationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	f.tokens = append(f.tokens, token)
	if f.err != nil {
		return nil, f.err
	}
	if f.resp == nil {
		return &commerce.RegistrationResponse{CustomerID: 1, OrderID: "ord-1"}, nil
	}
	return f.resp, nil
}

type paymentCall struct {
	method string
	token  string
	card   commerce.CardPaymentRequest
	pix    commerce.PixPaymentRequest
}

type fakePayments struct {
	mu    sync.Mutex
	calls []paymentCall
	resp  *commerce.PaymentResponse
	err   error
}

func (f *fakePayments) reply() (*commerce.PaymentResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.resp == nil {
		return &commerce.PaymentResponse{Success: true, TransactionID: "tx-1", OrderID: "ord-1"}, nil
	}
	return f.resp, nil
}

func (f *fakePayments) PayCredit(_ context.Context, token string, req commerce.CardPaymentRequest) (*commerce.PaymentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, paymentCall{method: "credit", token: token, card: req})
	return f.reply()
}

func (f *fakePayments) PayDebit(_ context.Context, token string, req commerce.CardPaymentRequest) (*commerce.PaymentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, paymentCall{method: "debit", token: token, card: req})
	return f.reply()
}

func (f *fakePayments) PayPix(_ context.Context, token string, req commerce.PixPaymentRequest) (*commerce.PaymentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, paymentCall{method: "pix", token: token, pix: req})
	return f.reply()
}

type fakeTokenSink struct {
	mu     sync.Mutex
	stored map[string]string
}

func (f *fakeTokenSink) Persist(_ context.Context, sessionID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stored == nil {
		f.stored = map[string]string{}
	}
	f.stored[sessionID] = token
	return nil
}

type fakeAttempts struct {
	mu       sync.Mutex
	attempts []models.CheckoutAttempt
}

func (f *fakeAttempts) Record(_ context.Context, attempt *models.CheckoutAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, *attempt)
	return nil
}

type pipelineFakes struct {
	tokenizer *fakeTokenizer
	registrar *fakeRegistrar
	payments  *fakePayments
	tokens    *fakeTokenSink
	attempts  *fakeAttempts
}

func (f pipelineFakes) networkCalls() int {
	return len(f.tokenizer.calls) + len(f.registrar.requests) + len(f.payments.calls)
}

func newTestPipeline() (*Pipeline, pipelineFakes) {
	fakes := pipelineFakes{
		tokenizer: &fakeTokenizer{},
		registrar: &fakeRegistrar{},
		payments:  &fakePayments{},
		tokens:    &fakeTokenSink{},
		attempts:  &fakeAttempts{},
	}
	p, err := NewPipeline(PipelineConfig{
		Validator: testValidator(),
		Tokenizer: fakes.tokenizer,
		Registrar: fakes.registrar,
		Payments:  fakes.payments,
		Tokens:    fakes.tokens,
		Attempts:  fakes.attempts,
	})
	if err != nil {
		panic(err)
	}
	return p, fakes
}

type stubQuotes struct {
	mu      sync.Mutex
	calls   []string
	quotes  []commerce.ShippingQuote
	err     error
	blockOn string
	release chan struct{}
	started chan struct{}
}

func (s *stubQuotes) QuoteShipping(ctx context.Context, postalCode string, _ []commerce.ShippingItem) ([]commerce.ShippingQuote, error) {
	s.mu.Lock()
	s.calls = append(s.calls, postalCode)
	block := s.blockOn == postalCode
	s.mu.Unlock()
	if block {
		if s.started != nil {
			close(s.started)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.release:
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.quotes != nil {
		return s.quotes, nil
	}
	return []commerce.ShippingQuote{
		{ServiceName: "express", Price: decimal.NewFromInt(30), DeliveryDays: 1},
		{ServiceName: "standard", Price: decimal.NewFromInt(12), DeliveryDays: 5},
	}, nil
}

func (s *stubQuotes) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type fakeCartSource struct {
	mu      sync.Mutex
	cart    cart.Cart
	cleared int
}

func newFakeCart() *fakeCartSource {
	return &fakeCartSource{cart: cart.Cart{
		ID:       "77",
		Items:    []cart.CartItem{{SkuID: 7, Quantity: 2, Unit: &cart.UnitSnapshot{PartnerCode: "P1"}}},
		Subtotal: decimal.NewFromInt(100),
	}}
}

func (f *fakeCartSource) State() cart.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cart.State{Cart: f.cart}
}

func (f *fakeCartSource) Clear(context.Context) (cart.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	f.cart = cart.Cart{ID: f.cart.ID, Items: []cart.CartItem{}, Subtotal: decimal.Zero}
	return cart.State{Cart: f.cart}, nil
}

type recordingCompletions struct {
	mu        sync.Mutex
	completed []Completed
}

func (r *recordingCompletions) CheckoutCompleted(_ context.Context, _ string, c Completed) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, c)
}
