package checkout

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-core/pkg/commerce"
	"github.com/angelmondragon/storefront-core/pkg/db/models"
	"github.com/angelmondragon/storefront-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/angelmondragon/storefront-core/pkg/gateway"
	"github.com/angelmondragon/storefront-core/pkg/logger"
	"github.com/angelmondragon/storefront-core/pkg/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Tokenizer exchanges raw card data for a gateway token.
type Tokenizer interface {
	Tokenize(ctx context.Context, card gateway.CardData) (string, error)
}

// Registrar sends the checkout/registration payload.
type Registrar interface {
	Register(ctx context.Context, token string, req commerce.RegistrationRequest) (*commerce.RegistrationResponse, error)
}

// Payments are the three method-specific payment endpoints.
type Payments interface {
	PayCredit(ctx context.Context, token string, req commerce.CardPaymentRequest) (*commerce.PaymentResponse, error)
	PayDebit(ctx context.Context, token string, req commerce.CardPaymentRequest) (*commerce.PaymentResponse, error)
	PayPix(ctx context.Context, token string, req commerce.PixPaymentRequest) (*commerce.PaymentResponse, error)
}

// TokenSink persists a session token returned by registration.
type TokenSink interface {
	Persist(ctx context.Context, sessionID, token string) error
}

// AttemptRecorder writes the attempt ledger.
type AttemptRecorder interface {
	Record(ctx context.Context, attempt *models.CheckoutAttempt) error
}

// PipelineConfig wires the submission pipeline.
type PipelineConfig struct {
	Validator      *Validator
	Tokenizer      Tokenizer
	Registrar      Registrar
	Payments       Payments
	Tokens         TokenSink
	Attempts       AttemptRecorder
	Logger         *logger.Logger
	Metrics        *metrics.CheckoutMetrics
	SuccessPath    string
	PixDescription string
}

// Submission is one run of the pipeline. Secrets are dropped when Submit returns.
type Submission struct {
	SessionID     string
	CustomerID    string
	Authenticated bool
	Token         string
	Form          FormSnapshot
	Secrets       CardSecrets
	Amount        decimal.Decimal
}

// Result is the single outcome of a submission.
type Result struct {
	Success       bool              `json:"success"`
	Code          string            `json:"code,omitempty"`
	Message       string            `json:"message,omitempty"`
	OrderID       string            `json:"order_id,omitempty"`
	TransactionID string            `json:"transaction_id,omitempty"`
	RedirectTo    string            `json:"redirect_to,omitempty"`
	PixQRCode     string            `json:"pix_qr_code,omitempty"`
	PixCopyPaste  string            `json:"pix_copy_paste,omitempty"`
	Retryable     bool              `json:"retryable"`
	Errors        *ValidationErrors `json:"errors,omitempty"`

	Err          error  `json:"-"`
	SessionToken string `json:"-"`
}

// Pipeline validates, tokenizes, registers and pays. It is not partially idempotent: a
// retry runs every step again.
type Pipeline struct {
	cfg PipelineConfig
}

// NewPipeline checks the collaborators.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Validator == nil {
		return nil, fmt.Errorf("validator required")
	}
	if cfg.Tokenizer == nil {
		return nil, fmt.Errorf("tokenizer required")
	}
	if cfg.Registrar == nil {
		return nil, fmt.Errorf("registrar required")
	}
	if cfg.Payments == nil {
		return nil, fmt.Errorf("payments api required")
	}
	if strings.TrimSpace(cfg.SuccessPath) == "" {
		cfg.SuccessPath = "/checkout/success"
	}
	if strings.TrimSpace(cfg.PixDescription) == "" {
		cfg.PixDescription = "Storefront order"
	}
	return &Pipeline{cfg: cfg}, nil
}

// Submit runs every step in order and stops at the first failure.
func (p *Pipeline) Submit(ctx context.Context, sub Submission) Result {
	started := time.Now()
	method := sub.Form.Data.PaymentMethod
	if p.cfg.Logger != nil {
		ctx = p.cfg.Logger.WithFields(ctx, map[string]any{"payment_method": string(method)})
	}

	result := p.run(ctx, sub)

	code := ""
	if !result.Success {
		code = result.Code
	}
	p.cfg.Metrics.ObserveSubmission(string(method), code, time.Since(started))
	p.record(ctx, sub, result)
	p.log(ctx, result)
	return result
}

func (p *Pipeline) run(ctx context.Context, sub Submission) Result {
	data := sub.Form.Data
	masked := sub.Form.Masked
	if !sub.Authenticated {
		masked = MaskedCard{}
	}

	errs := p.cfg.Validator.ValidateAll(Input{Data: data, Masked: masked, Secrets: sub.Secrets})
	if !errs.Empty() {
		return failure(errs.Err(), &errs)
	}
	if !sub.Amount.IsPositive() {
		return failure(pkgerrors.New(pkgerrors.CodeValidation, "order amount must be positive"), nil)
	}

	useSavedCard := data.PaymentMethod.IsCard() && masked.IsMasked
	cardToken := ""
	if data.PaymentMethod.IsCard() && !useSavedCard {
		token, err := p.tokenize(ctx, data, sub.Secrets)
		if err != nil {
			return failure(err, nil)
		}
		cardToken = token
	}

	sessionToken := sub.Token
	registration, err := p.cfg.Registrar.Register(ctx, sessionToken, BuildRegistration(RegistrationInput{
		Data:          data,
		Saved:         sub.Form.Saved,
		Authenticated: sub.Authenticated,
		CardToken:     cardToken,
		CardNumber:    sub.Secrets.Number,
	}))
	if err != nil {
		return failure(registrationError(err), nil)
	}
	freshToken := ""
	if registration != nil && strings.TrimSpace(registration.Token) != "" {
		freshToken = registration.Token
		sessionToken = freshToken
		p.persistToken(ctx, sub.SessionID, freshToken)
	}

	payment, err := p.pay(ctx, sessionToken, sub, cardToken, masked, registration)
	if err != nil {
		res := failure(err, nil)
		res.SessionToken = freshToken
		return res
	}

	res := p.normalize(payment, registration)
	res.SessionToken = freshToken
	return res
}

func (p *Pipeline) tokenize(ctx context.Context, data FormData, secrets CardSecrets) (string, error) {
	month, year, _ := parseExpiry(data.CardExpiry)
	document := data.Document
	if data.ProfileType == enums.ProfileTypeBusiness {
		document = data.CompanyDocument
	}
	token, err := p.cfg.Tokenizer.Tokenize(ctx, gateway.CardData{
		Number:   onlyDigits(secrets.Number),
		Holder:   data.CardHolder,
		Month:    month,
		Year:     year,
		CVV:      strings.TrimSpace(secrets.CVV),
		Document: onlyDigits(document),
	})
	if err != nil {
		return "", tokenizationError(err)
	}
	if strings.TrimSpace(token) == "" {
		return "", pkgerrors.New(pkgerrors.CodeTokenization, "card could not be verified")
	}
	return token, nil
}

// pay makes exactly one payment call. A card the registration step just stored is paid by
// id since the gateway token is single use.
func (p *Pipeline) pay(ctx context.Context, token string, sub Submission, cardToken string, masked MaskedCard, reg *commerce.RegistrationResponse) (*commerce.PaymentResponse, error) {
	data := sub.Form.Data
	var (
		resp *commerce.PaymentResponse
		err  error
	)
	switch data.PaymentMethod {
	case enums.PaymentMethodPix:
		resp, err = p.cfg.Payments.PayPix(ctx, token, commerce.PixPaymentRequest{
			Amount:      sub.Amount,
			Description: p.cfg.PixDescription,
		})
	case enums.PaymentMethodCredit, enums.PaymentMethodDebit:
		req := commerce.CardPaymentRequest{Amount: sub.Amount, Installments: data.Installments}
		switch {
		case masked.IsMasked:
			id := masked.CardID
			req.SavedCardID = &id
			req.CVV = strings.TrimSpace(sub.Secrets.CVV)
		case reg != nil && reg.SavedCard != nil:
			req.SavedCardID = reg.SavedCard
			req.CVV = strings.TrimSpace(sub.Secrets.CVV)
		default:
			req.CardToken = cardToken
		}
		if data.PaymentMethod == enums.PaymentMethodCredit {
			resp, err = p.cfg.Payments.PayCredit(ctx, token, req)
		} else {
			resp, err = p.cfg.Payments.PayDebit(ctx, token, req)
		}
	default:
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown payment method %q", data.PaymentMethod)
	}
	if err != nil {
		return nil, paymentError(err)
	}
	if resp == nil || !resp.Success {
		message := "payment declined"
		if resp != nil && strings.TrimSpace(resp.Message) != "" {
			message = resp.Message
		}
		return nil, pkgerrors.New(pkgerrors.CodePayment, message)
	}
	return resp, nil
}

func (p *Pipeline) normalize(payment *commerce.PaymentResponse, reg *commerce.RegistrationResponse) Result {
	orderID := payment.OrderID
	if orderID == "" && reg != nil {
		orderID = reg.OrderID
	}
	query := url.Values{}
	if orderID != "" {
		query.Set("order", orderID)
	} else if payment.TransactionID != "" {
		query.Set("transaction", payment.TransactionID)
	}
	redirect := p.cfg.SuccessPath
	if encoded := query.Encode(); encoded != "" {
		redirect += "?" + encoded
	}
	return Result{
		Success:       true,
		OrderID:       orderID,
		TransactionID: payment.TransactionID,
		RedirectTo:    redirect,
		PixQRCode:     payment.PixQRCode,
		PixCopyPaste:  payment.PixCopyPaste,
		Message:       payment.Message,
	}
}

func (p *Pipeline) persistToken(ctx context.Context, sessionID, token string) {
	if p.cfg.Tokens == nil {
		return
	}
	if err := p.cfg.Tokens.Persist(ctx, sessionID, token); err != nil && p.cfg.Logger != nil {
		p.cfg.Logger.Error(ctx, "checkout.submit.token_persist_failed", err)
	}
}

func (p *Pipeline) record(ctx context.Context, sub Submission, res Result) {
	if p.cfg.Attempts == nil {
		return
	}
	data := sub.Form.Data
	attempt := &models.CheckoutAttempt{
		ID:            uuid.New(),
		SessionID:     sub.SessionID,
		CustomerID:    optional(sub.CustomerID),
		PaymentMethod: data.PaymentMethod,
		Outcome:       enums.CheckoutOutcomeFailed,
		OrderID:       optional(res.OrderID),
		TransactionID: optional(res.TransactionID),
		Amount:        sub.Amount,
		Installments:  1,
	}
	if data.PaymentMethod == enums.PaymentMethodCredit && data.Installments > 0 {
		attempt.Installments = data.Installments
	}
	if res.Success {
		attempt.Outcome = enums.CheckoutOutcomeSucceeded
	} else {
		attempt.ErrorCode = optional(res.Code)
	}
	if !attempt.PaymentMethod.IsValid() {
		return
	}
	if err := p.cfg.Attempts.Record(ctx, attempt); err != nil && p.cfg.Logger != nil {
		p.cfg.Logger.Error(ctx, "checkout.attempt.record_failed", err)
	}
}

func (p *Pipeline) log(ctx context.Context, res Result) {
	logg := p.cfg.Logger
	if logg == nil {
		return
	}
	if res.Success {
		logg.Info(logg.WithField(ctx, "order_id", res.OrderID), "checkout.submit.completed")
		return
	}
	ctx = logg.WithField(ctx, "code", res.Code)
	if pkgerrors.IsRetryable(res.Err) {
		logg.Error(ctx, "checkout.submit.failed", res.Err)
		return
	}
	logg.Warn(ctx, "checkout.submit.rejected")
}

// rejectedCodes are answers in which the remote side refused the request itself. They are
// reported as the failing step's own code; transient codes pass through unchanged.
var rejectedCodes = []pkgerrors.Code{
	pkgerrors.CodeValidation,
	pkgerrors.CodeConflict,
	pkgerrors.CodeStateConflict,
	pkgerrors.CodeNotFound,
	pkgerrors.CodeForbidden,
}

func recode(err error, to pkgerrors.Code, op string) error {
	typed := pkgerrors.As(err)
	if typed == nil {
		return pkgerrors.Classify(err, op)
	}
	for _, code := range rejectedCodes {
		if pkgerrors.HasCode(err, code) {
			return pkgerrors.Wrap(to, err, typed.Message()).WithDetails(typed.Details())
		}
	}
	return err
}

// registrationError maps identity conflicts to REGISTRATION_ERROR and keeps transient codes.
func registrationError(err error) error {
	return recode(err, pkgerrors.CodeRegistration, "checkout registration")
}

// paymentError reports a refused payment call as a decline.
func paymentError(err error) error {
	return recode(err, pkgerrors.CodePayment, "submit payment")
}

// tokenizationError keeps network failures retryable. Any other untyped tokenizer error is
// a rejection of the card data and carries its message.
func tokenizationError(err error) error {
	if pkgerrors.As(err) == nil && !pkgerrors.IsTransport(err) {
		return pkgerrors.Wrap(pkgerrors.CodeTokenization, err, err.Error())
	}
	return recode(err, pkgerrors.CodeTokenization, "tokenize card")
}

func failure(err error, errs *ValidationErrors) Result {
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checkout failed")
	}
	meta := pkgerrors.MetadataFor(typed.Code())
	message := meta.PublicMessage
	switch typed.Code() {
	case pkgerrors.CodeValidation, pkgerrors.CodeTokenization, pkgerrors.CodeRegistration, pkgerrors.CodePayment:
		if typed.Message() != "" {
			message = typed.Message()
		}
	}
	return Result{
		Success:   false,
		Code:      string(typed.Code()),
		Message:   message,
		Retryable: meta.Retryable,
		Errors:    errs,
		Err:       err,
	}
}

func optional(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}
