package commerce

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"
)

// ShippingItem is one line submitted for a shipping quote.
type ShippingItem struct {
	SkuID       int    `json:"sku_id"`
	PartnerCode string `json:"partner_code,omitempty"`
	Quantity    int    `json:"quantity"`
}

// ShippingQuote is one carrier option.
type ShippingQuote struct {
	ServiceName  string          `json:"service_name"`
	Price        decimal.Decimal `json:"price"`
	DeliveryDays int             `json:"delivery_days"`
}

// QuoteShipping returns carrier options for the postal code and items.
func (c *Client) QuoteShipping(ctx context.Context, postalCode string, items []ShippingItem) ([]ShippingQuote, error) {
	var out struct {
		Quotes []ShippingQuote `json:"quotes"`
	}
	req := struct {
		PostalCode string         `json:"postal_code"`
		Items      []ShippingItem `json:"items"`
	}{PostalCode: postalCode, Items: items}
	if err := c.do(ctx, http.MethodPost, "shipping/quotes", "", req, &out, "quote shipping"); err != nil {
		return nil, err
	}
	return out.Quotes, nil
}

// ProfileBlock is discriminated by Type: individual fields or business fields are set, never both.
type ProfileBlock struct {
	Type            string `json:"type"`
	Email           string `json:"email"`
	FullName        string `json:"full_name,omitempty"`
	Document        string `json:"document,omitempty"`
	BirthDate       string `json:"birth_date,omitempty"`
	CompanyName     string `json:"company_name,omitempty"`
	CompanyDocument string `json:"company_document,omitempty"`
	TradingName     string `json:"trading_name,omitempty"`
}

// AddressBlock references a stored address by ID or carries a full literal address.
type AddressBlock struct {
	ID      *int64   `json:"id,omitempty"`
	Literal *Address `json:"literal,omitempty"`
}

// PhoneBlock references a stored phone by ID or carries the number.
type PhoneBlock struct {
	ID     *int64 `json:"id,omitempty"`
	Number string `json:"number,omitempty"`
}

// CardBlock asks the backend to store a freshly tokenized card.
type CardBlock struct {
	Token       string `json:"token"`
	Brand       string `json:"brand"`
	HolderName  string `json:"holder_name"`
	FinalDigits string `json:"final_digits"`
	Expiration  string `json:"expiration"`
}

// RegistrationRequest is the checkout/registration payload.
type RegistrationRequest struct {
	Profile ProfileBlock `json:"profile"`
	Address AddressBlock `json:"address"`
	Phone   PhoneBlock   `json:"phone"`
	Card    *CardBlock   `json:"card,omitempty"`
}

// RegistrationResponse may carry a fresh session token for a guest who just registered.
type RegistrationResponse struct {
	CustomerID int64  `json:"customer_id"`
	Token      string `json:"token,omitempty"`
	OrderID    string `json:"order_id,omitempty"`
	SavedCard  *int64 `json:"saved_card_id,omitempty"`
}

// Register sends the checkout/registration payload.
func (c *Client) Register(ctx context.Context, token string, req RegistrationRequest) (*RegistrationResponse, error) {
	var out RegistrationResponse
	if err := c.do(ctx, http.MethodPost, "checkout", token, req, &out, "checkout registration"); err != nil {
		return nil, err
	}
	return &out, nil
}

// CardPaymentRequest pays with either a fresh gateway token or a saved card plus CVV.
type CardPaymentRequest struct {
	CardToken    string          `json:"card_token,omitempty"`
	SavedCardID  *int64          `json:"saved_card_id,omitempty"`
	CVV          string          `json:"cvv,omitempty"`
	Installments int             `json:"installments,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
}

// PixPaymentRequest requests an instant payment charge.
type PixPaymentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// PaymentResponse is shared by the three payment endpoints.
type PaymentResponse struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id,omitempty"`
	OrderID       string `json:"order_id,omitempty"`
	Message       string `json:"message,omitempty"`
	PixQRCode     string `json:"pix_qr_code,omitempty"`
	PixCopyPaste  string `json:"pix_copy_paste,omitempty"`
}

// PayCredit submits a credit card payment.
func (c *Client) PayCredit(ctx context.Context, token string, req CardPaymentRequest) (*PaymentResponse, error) {
	return c.pay(ctx, "payments/credit", token, req, "credit payment")
}

// PayDebit submits a debit card payment.
func (c *Client) PayDebit(ctx context.Context, token string, req CardPaymentRequest) (*PaymentResponse, error) {
	req.Installments = 0
	return c.pay(ctx, "payments/debit", token, req, "debit payment")
}

// PayPix requests a PIX charge.
func (c *Client) PayPix(ctx context.Context, token string, req PixPaymentRequest) (*PaymentResponse, error) {
	return c.pay(ctx, "payments/pix", token, req, "pix payment")
}

func (c *Client) pay(ctx context.Context, path, token string, req any, op string) (*PaymentResponse, error) {
	var out PaymentResponse
	if err := c.do(ctx, http.MethodPost, path, token, req, &out, op); err != nil {
		return nil, err
	}
	return &out, nil
}
