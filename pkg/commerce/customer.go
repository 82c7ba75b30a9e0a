package commerce

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Profile is the stored identity of an authenticated customer.
type Profile struct {
	ID              int64  `json:"id"`
	ProfileType     string `json:"profile_type"`
	FullName        string `json:"full_name,omitempty"`
	Document        string `json:"document,omitempty"`
	BirthDate       string `json:"birth_date,omitempty"`
	CompanyName     string `json:"company_name,omitempty"`
	CompanyDocument string `json:"company_document,omitempty"`
	TradingName     string `json:"trading_name,omitempty"`
	Email           string `json:"email"`
}

// Address is a stored delivery address.
type Address struct {
	ID           int64  `json:"id,omitempty"`
	PostalCode   string `json:"postal_code"`
	Street       string `json:"street"`
	Number       string `json:"number"`
	Complement   string `json:"complement,omitempty"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	State        string `json:"state"`
	IsDefault    bool   `json:"is_default,omitempty"`
}

// Phone is a stored contact number.
type Phone struct {
	ID        int64  `json:"id,omitempty"`
	Number    string `json:"number"`
	IsDefault bool   `json:"is_default,omitempty"`
}

// SavedCard is a stored card; the backend never returns its full number.
type SavedCard struct {
	ID          int64  `json:"id"`
	FinalDigits string `json:"final_digits"`
	HolderName  string `json:"holder_name"`
	Expiration  string `json:"expiration"`
	Brand       string `json:"brand"`
	IsDefault   bool   `json:"is_default,omitempty"`
}

// Resource names the customer sub-resources that support a default entry.
type Resource string

const (
	ResourceAddresses Resource = "addresses"
	ResourcePhones    Resource = "phones"
	ResourceCards     Resource = "cards"
)

// IsValid reports whether the value is a known Resource.
func (r Resource) IsValid() bool {
	switch r {
	case ResourceAddresses, ResourcePhones, ResourceCards:
		return true
	}
	return false
}

// GetProfile returns the authenticated customer's profile.
func (c *Client) GetProfile(ctx context.Context, token string) (*Profile, error) {
	var out Profile
	if err := c.do(ctx, http.MethodGet, "customers/me", token, nil, &out, "get profile"); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListAddresses returns the customer's stored addresses.
func (c *Client) ListAddresses(ctx context.Context, token string) ([]Address, error) {
	var out []Address
	if err := c.do(ctx, http.MethodGet, "customers/me/addresses", token, nil, &out, "list addresses"); err != nil {
		return nil, err
	}
	return out, nil
}

// ListPhones returns the customer's stored phones.
func (c *Client) ListPhones(ctx context.Context, token string) ([]Phone, error) {
	var out []Phone
	if err := c.do(ctx, http.MethodGet, "customers/me/phones", token, nil, &out, "list phones"); err != nil {
		return nil, err
	}
	return out, nil
}

// ListCards returns the customer's stored cards.
func (c *Client) ListCards(ctx context.Context, token string) ([]SavedCard, error) {
	var out []SavedCard
	if err := c.do(ctx, http.MethodGet, "customers/me/cards", token, nil, &out, "list cards"); err != nil {
		return nil, err
	}
	return out, nil
}

// SetDefault marks the sub-resource as the customer's default.
func (c *Client) SetDefault(ctx context.Context, token string, resource Resource, id int64) error {
	if !resource.IsValid() {
		return fmt.Errorf("unknown customer resource %q", resource)
	}
	path := fmt.Sprintf("customers/me/%s/%d/default", resource, id)
	return c.do(ctx, http.MethodPost, path, token, nil, nil, "set default "+strings.TrimSuffix(string(resource), "s"))
}

// AvailabilityField names the identity fields the backend can check for uniqueness.
type AvailabilityField string

const (
	AvailabilityEmail    AvailabilityField = "email"
	AvailabilityDocument AvailabilityField = "document"
)

// CheckAvailability reports whether no existing customer already uses the value.
func (c *Client) CheckAvailability(ctx context.Context, field AvailabilityField, value string) (bool, error) {
	var out struct {
		Available bool `json:"available"`
	}
	req := struct {
		Field string `json:"field"`
		Value string `json:"value"`
	}{Field: string(field), Value: value}
	if err := c.do(ctx, http.MethodPost, "customers/availability", "", req, &out, "check availability"); err != nil {
		return false, err
	}
	return out.Available, nil
}
