package postalcode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"

	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
)

const (
	defaultBaseURL        = "https://viacep.com.br/ws"
	requiredDigits        = 8
	requestBodyReadLimit  = 1024
	defaultRequestTimeout = 5 * time.Second
)

// Client resolves Brazilian postal codes (CEP) to street-level addresses.
type Client struct {
	httpClient *http.Client
	baseURL    string
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

// WithBaseURL overrides the directory base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds the postal code directory client.
func NewClient(opts ...Option) *Client {
	client := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	return client
}

// Address is the directory's answer for a postal code.
type Address struct {
	PostalCode   string
	Street       string
	Complement   string
	Neighborhood string
	City         string
	State        string
}

// Normalize strips everything but digits.
func Normalize(postalCode string) string {
	var b strings.Builder
	for _, r := range postalCode {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Lookup resolves a postal code. Unknown codes return NOT_FOUND.
func (c *Client) Lookup(ctx context.Context, postalCode string) (*Address, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "postal code client not configured")
	}
	digits := Normalize(postalCode)
	if len(digits) != requiredDigits {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "postal code must have 8 digits")
	}

	url := fmt.Sprintf("%s/%s/json/", strings.TrimRight(c.baseURL, "/"), digits)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build postal code request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.FromTransport(err, "execute postal code request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusBadRequest {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "postal code rejected by directory")
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, requestBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "postal code request failed")
	}

	var apiResp struct {
		CEP          string `json:"cep"`
		Street       string `json:"logradouro"`
		Complement   string `json:"complemento"`
		Neighborhood string `json:"bairro"`
		City         string `json:"localidade"`
		State        string `json:"uf"`
		NotFound     any    `json:"erro"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode postal code response")
	}
	// the directory answers 200 with {"erro": true} (or "true") for unknown codes
	if apiResp.NotFound != nil && fmt.Sprint(apiResp.NotFound) == "true" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "postal code not found")
	}

	return &Address{
		PostalCode:   digits,
		Street:       apiResp.Street,
		Complement:   apiResp.Complement,
		Neighborhood: apiResp.Neighborhood,
		City:         apiResp.City,
		State:        apiResp.State,
	}, nil
}
