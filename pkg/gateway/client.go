package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/sony/gobreaker/v2"
)

const (
	defaultTimeout        = 15 * time.Second
	defaultFailures       = 5
	defaultOpenDelay      = 30 * time.Second
	responseBodyReadLimit = 1024
)

var (
	errBaseURLRequired   = errors.New("gateway base url is required")
	errPublicKeyRequired = errors.New("gateway public key is required")
)

// CardData is the raw card material exchanged for a token. It is never logged or stored.
type CardData struct {
	Number   string
	Holder   string
	Month    int
	Year     int
	CVV      string
	Document string
}

// Client exchanges raw card data for an opaque single-use token.
type Client struct {
	httpClient *http.Client
	baseURL    string
	publicKey  string
	breaker    *gobreaker.CircuitBreaker[string]

	failures  uint32
	openDelay time.Duration
	onState   func(from, to gobreaker.State)
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBreaker overrides the consecutive-failure threshold and the open-state delay.
func WithBreaker(failures uint32, openDelay time.Duration) Option {
	return func(c *Client) {
		if failures > 0 {
			c.failures = failures
		}
		if openDelay > 0 {
			c.openDelay = openDelay
		}
	}
}

// WithStateListener registers a callback for breaker state changes.
func WithStateListener(fn func(from, to gobreaker.State)) Option {
	return func(c *Client) {
		c.onState = fn
	}
}

// NewClient builds a tokenization client.
func NewClient(baseURL, publicKey string, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, errBaseURLRequired
	}
	key := strings.TrimSpace(publicKey)
	if key == "" {
		return nil, errPublicKeyRequired
	}

	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    base,
		publicKey:  key,
		failures:   defaultFailures,
		openDelay:  defaultOpenDelay,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	failures := c.failures
	onState := c.onState
	c.breaker = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:    "card-tokenization",
		Timeout: c.openDelay,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// a rejected card is a healthy gateway answering; only outages count against it
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			typed := pkgerrors.As(err)
			return typed != nil && typed.Code() == pkgerrors.CodeTokenization
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			if onState != nil {
				onState(from, to)
			}
		},
	})
	return c, nil
}

// State reports the breaker state for readiness reporting.
func (c *Client) State() gobreaker.State {
	if c == nil || c.breaker == nil {
		return gobreaker.StateClosed
	}
	return c.breaker.State()
}

// Tokenize returns a gateway token for the card. Rejections surface as TOKENIZATION_ERROR;
// outages surface as DEPENDENCY_ERROR or TIMEOUT.
func (c *Client) Tokenize(ctx context.Context, card CardData) (string, error) {
	if c == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "tokenization gateway not configured")
	}
	token, err := c.breaker.Execute(func() (string, error) {
		return c.tokenize(ctx, card)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "card tokenization temporarily unavailable")
		}
		return "", err
	}
	return token, nil
}

type tokenRequest struct {
	CardNumber      string `json:"card_number"`
	HolderName      string `json:"holder_name"`
	ExpirationMonth int    `json:"expiration_month"`
	ExpirationYear  int    `json:"expiration_year"`
	CVV             string `json:"cvv"`
	Document        string `json:"document,omitempty"`
}

func (c *Client) tokenize(ctx context.Context, card CardData) (string, error) {
	payload, err := json.Marshal(tokenRequest{
		CardNumber:      card.Number,
		HolderName:      card.Holder,
		ExpirationMonth: card.Month,
		ExpirationYear:  card.Year,
		CVV:             card.CVV,
		Document:        card.Document,
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal tokenization request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/tokens", bytes.NewReader(payload))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build tokenization request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Public-Key", c.publicKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", pkgerrors.FromTransport(err, "execute tokenization request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return "", rejection(resp)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "tokenization request failed")
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode tokenization response")
	}
	if strings.TrimSpace(out.Token) == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "tokenization response carried no token")
	}
	return out.Token, nil
}

func rejection(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	var body struct {
		Message string `json:"message"`
		Field   string `json:"field"`
	}
	_ = json.Unmarshal(raw, &body)

	message := strings.TrimSpace(body.Message)
	if message == "" {
		message = "card data was rejected"
	}
	err := pkgerrors.Wrap(pkgerrors.CodeTokenization, fmt.Errorf("status %d", resp.StatusCode), message)
	if body.Field != "" {
		err = err.WithDetails(map[string]string{"field": body.Field})
	}
	return err
}
