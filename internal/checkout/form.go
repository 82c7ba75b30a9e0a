package checkout

import (
	"strings"
	"sync"

	"github.com/angelmondragon/storefront-core/pkg/enums"
)

// FormData is the flat wizard record. Card number and CVV are not part of it: they only
// travel inside the request that needs them.
type FormData struct {
	ProfileType     enums.ProfileType `json:"profile_type"`
	Email           string            `json:"email"`
	Phone           string            `json:"phone"`
	FullName        string            `json:"full_name"`
	Document        string            `json:"document"`
	BirthDate       string            `json:"birth_date"`
	CompanyName     string            `json:"company_name"`
	CompanyDocument string            `json:"company_document"`
	TradingName     string            `json:"trading_name"`

	PostalCode   string `json:"postal_code"`
	Street       string `json:"street"`
	Number       string `json:"number"`
	Complement   string `json:"complement"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	State        string `json:"state"`

	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	CardHolder    string              `json:"card_holder"`
	CardExpiry    string              `json:"card_expiry"`
	CardBrand     enums.CardBrand     `json:"card_brand"`
	Installments  int                 `json:"installments"`
	SaveCard      bool                `json:"save_card"`
}

// DefaultFormData is the record a new flow starts from.
func DefaultFormData() FormData {
	return FormData{
		ProfileType:   enums.ProfileTypeIndividual,
		PaymentMethod: enums.PaymentMethodCredit,
		Installments:  1,
	}
}

// SavedIDs reference sub-resources the authenticated customer already has.
type SavedIDs struct {
	AddressID *int64 `json:"address_id,omitempty"`
	PhoneID   *int64 `json:"phone_id,omitempty"`
	CardID    *int64 `json:"card_id,omitempty"`
}

// MaskedCard is a saved card whose full number is never retrieved. IsMasked switches the
// payment step to the fresh-CVV-only mode.
type MaskedCard struct {
	IsMasked    bool            `json:"is_masked"`
	CardID      int64           `json:"card_id,omitempty"`
	FinalDigits string          `json:"final_digits,omitempty"`
	HolderName  string          `json:"holder_name,omitempty"`
	Expiration  string          `json:"expiration,omitempty"`
	Brand       enums.CardBrand `json:"brand,omitempty"`
}

// FieldPatch carries the fields the caller edited. Nil fields are left untouched.
type FieldPatch struct {
	ProfileType     *enums.ProfileType `json:"profile_type,omitempty"`
	Email           *string            `json:"email,omitempty"`
	Phone           *string            `json:"phone,omitempty"`
	FullName        *string            `json:"full_name,omitempty"`
	Document        *string            `json:"document,omitempty"`
	BirthDate       *string            `json:"birth_date,omitempty"`
	CompanyName     *string            `json:"company_name,omitempty"`
	CompanyDocument *string            `json:"company_document,omitempty"`
	TradingName     *string            `json:"trading_name,omitempty"`

	PostalCode   *string `json:"postal_code,omitempty"`
	Street       *string `json:"street,omitempty"`
	Number       *string `json:"number,omitempty"`
	Complement   *string `json:"complement,omitempty"`
	Neighborhood *string `json:"neighborhood,omitempty"`
	City         *string `json:"city,omitempty"`
	State        *string `json:"state,omitempty"`

	PaymentMethod *enums.PaymentMethod `json:"payment_method,omitempty"`
	CardNumber    *string              `json:"card_number,omitempty"`
	CardHolder    *string              `json:"card_holder,omitempty"`
	CardExpiry    *string              `json:"card_expiry,omitempty"`
	Installments  *int                 `json:"installments,omitempty"`
	SaveCard      *bool                `json:"save_card,omitempty"`
	UseSavedCard  *bool                `json:"use_saved_card,omitempty"`
}

// Changes lists which side-effect-bearing fields a patch touched.
type Changes struct {
	PostalCode bool
	CardNumber bool
	Address    bool
	Phone      bool
}

// Form owns the wizard record of one checkout flow. It lives as long as the flow and is
// never persisted.
type Form struct {
	mu     sync.Mutex
	data   FormData
	saved  SavedIDs
	masked MaskedCard

	prefillSeq   uint64
	prefilledFor string
	closed       bool
}

// NewForm starts a form from the defaults.
func NewForm() *Form {
	return &Form{data: DefaultFormData()}
}

// FormSnapshot is a consistent copy of the form.
type FormSnapshot struct {
	Data   FormData   `json:"data"`
	Saved  SavedIDs   `json:"saved_ids"`
	Masked MaskedCard `json:"masked_card"`
}

// Snapshot returns a copy of the current record.
func (f *Form) Snapshot() FormSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return FormSnapshot{Data: f.data, Saved: f.saved, Masked: f.masked}
}

// Apply merges the patch into the record. The only cross-field effects are brand detection
// from a typed card number and dropping saved ids whose literal values were edited.
func (f *Form) Apply(patch FieldPatch) Changes {
	f.mu.Lock()
	defer f.mu.Unlock()

	var changes Changes
	d := &f.data
	setEnum(&d.ProfileType, patch.ProfileType)
	setString(&d.Email, patch.Email)
	setString(&d.FullName, patch.FullName)
	setString(&d.Document, patch.Document)
	setString(&d.BirthDate, patch.BirthDate)
	setString(&d.CompanyName, patch.CompanyName)
	setString(&d.CompanyDocument, patch.CompanyDocument)
	setString(&d.TradingName, patch.TradingName)

	if setString(&d.Phone, patch.Phone) {
		changes.Phone = true
		f.saved.PhoneID = nil
	}
	if setString(&d.PostalCode, patch.PostalCode) {
		changes.PostalCode = true
	}
	addressEdited := false
	for _, edited := range []bool{
		changes.PostalCode,
		setString(&d.Street, patch.Street),
		setString(&d.Number, patch.Number),
		setString(&d.Complement, patch.Complement),
		setString(&d.Neighborhood, patch.Neighborhood),
		setString(&d.City, patch.City),
		setString(&d.State, patch.State),
	} {
		addressEdited = addressEdited || edited
	}
	if addressEdited {
		changes.Address = true
		f.saved.AddressID = nil
	}

	setEnum(&d.PaymentMethod, patch.PaymentMethod)
	setString(&d.CardHolder, patch.CardHolder)
	setString(&d.CardExpiry, patch.CardExpiry)
	if patch.Installments != nil {
		d.Installments = *patch.Installments
	}
	if patch.SaveCard != nil {
		d.SaveCard = *patch.SaveCard
	}
	if patch.CardNumber != nil {
		changes.CardNumber = true
		d.CardBrand = DetectBrand(*patch.CardNumber)
	}
	if patch.UseSavedCard != nil {
		f.masked.IsMasked = *patch.UseSavedCard && f.masked.CardID != 0
	}
	return changes
}

// Close marks the form as gone; late prefill responses are dropped afterwards.
func (f *Form) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

// setAddress applies a resolved postal code. City-wide codes come back without a street, so
// blank values never overwrite what the shopper typed; a typed complement always wins.
func (f *Form) setAddress(street, complement, neighborhood, city, state string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	replaceIfSet(&f.data.Street, street)
	if strings.TrimSpace(f.data.Complement) == "" {
		f.data.Complement = strings.TrimSpace(complement)
	}
	replaceIfSet(&f.data.Neighborhood, neighborhood)
	replaceIfSet(&f.data.City, city)
	replaceIfSet(&f.data.State, state)
}

func replaceIfSet(dst *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*dst = value
	}
}

func setString(dst *string, value *string) bool {
	if value == nil {
		return false
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == *dst {
		return false
	}
	*dst = trimmed
	return true
}

func setEnum[T ~string](dst *T, value *T) {
	if value != nil {
		*dst = *value
	}
}
