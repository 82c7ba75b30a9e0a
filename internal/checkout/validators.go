package checkout

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/go-playground/validator/v10"
)

// CardSecrets are the card fields that exist for a single request only.
type CardSecrets struct {
	Number string `json:"card_number"`
	CVV    string `json:"cvv"`
}

// Input is everything the validators look at.
type Input struct {
	Data    FormData
	Masked  MaskedCard
	Secrets CardSecrets
}

// FieldErrors maps a field name to its message.
type FieldErrors map[string]string

// ValidationErrors partitions field errors by wizard step.
type ValidationErrors struct {
	Personal FieldErrors `json:"personal,omitempty"`
	Address  FieldErrors `json:"address,omitempty"`
	Card     FieldErrors `json:"card,omitempty"`
}

// Empty reports whether no step has errors.
func (e ValidationErrors) Empty() bool {
	return len(e.Personal) == 0 && len(e.Address) == 0 && len(e.Card) == 0
}

// ForStep returns the errors of one step.
func (e ValidationErrors) ForStep(step Step) FieldErrors {
	switch step {
	case StepPersonal:
		return e.Personal
	case StepDelivery:
		return e.Address
	case StepPayment:
		return e.Card
	}
	return nil
}

// Err converts the errors into a VALIDATION_ERROR carrying them as details.
func (e ValidationErrors) Err() error {
	if e.Empty() {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "review the highlighted fields").WithDetails(e)
}

type contactFields struct {
	ProfileType string `json:"profile_type" validate:"required,oneof=individual business"`
	Email       string `json:"email" validate:"required,email,max=254"`
	Phone       string `json:"phone" validate:"required,brphone"`
}

type individualFields struct {
	FullName  string `json:"full_name" validate:"required,min=3,max=120"`
	Document  string `json:"document" validate:"required,cpf"`
	BirthDate string `json:"birth_date" validate:"required,birthdate"`
}

type businessFields struct {
	CompanyName     string `json:"company_name" validate:"required,min=2,max=120"`
	CompanyDocument string `json:"company_document" validate:"required,cnpj"`
	TradingName     string `json:"trading_name" validate:"omitempty,max=120"`
}

type addressFields struct {
	PostalCode   string `json:"postal_code" validate:"required,cep"`
	Street       string `json:"street" validate:"required,max=120"`
	Number       string `json:"number" validate:"required,max=10"`
	Complement   string `json:"complement" validate:"omitempty,max=80"`
	Neighborhood string `json:"neighborhood" validate:"required,max=80"`
	City         string `json:"city" validate:"required,max=80"`
	State        string `json:"state" validate:"required,uf"`
}

type paymentFields struct {
	PaymentMethod string `json:"payment_method" validate:"required,oneof=credit debit pix"`
}

type newCardFields struct {
	Number string `json:"card_number" validate:"required,luhn"`
	Holder string `json:"card_holder" validate:"required,min=3,max=26"`
	Expiry string `json:"card_expiry" validate:"required,cardexpiry"`
	CVV    string `json:"cvv" validate:"required,cvv"`
}

type savedCardFields struct {
	CVV string `json:"cvv" validate:"required,cvv"`
}

type installmentFields struct {
	Installments int `json:"installments" validate:"min=1,max=12"`
}

// Validator runs the synchronous format checks of every step.
type Validator struct {
	v                *validator.Validate
	postalCodeLength int
	now              func() time.Time
}

// ValidatorOption customizes a Validator.
type ValidatorOption func(*Validator)

// WithClock overrides the clock used for expiry and birth date checks.
func WithClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

// NewValidator registers the storefront tags on a fresh validator instance.
func NewValidator(postalCodeLength int, opts ...ValidatorOption) *Validator {
	if postalCodeLength <= 0 {
		postalCodeLength = 8
	}
	out := &Validator{v: validator.New(), postalCodeLength: postalCodeLength, now: time.Now}
	for _, opt := range opts {
		opt(out)
	}
	out.v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	register := func(tag string, fn func(string) bool) {
		_ = out.v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return fn(fl.Field().String())
		})
	}
	register("cpf", ValidCPF)
	register("cnpj", ValidCNPJ)
	register("luhn", ValidLuhn)
	register("brphone", validPhone)
	register("uf", validUF)
	register("cvv", func(s string) bool {
		return (len(s) == 3 || len(s) == 4) && len(onlyDigits(s)) == len(s)
	})
	register("cep", func(s string) bool {
		return len(onlyDigits(s)) == out.postalCodeLength
	})
	register("cardexpiry", func(s string) bool {
		return validExpiry(s, out.now())
	})
	register("birthdate", func(s string) bool {
		return validBirthDate(s, out.now())
	})
	return out
}

// PostalCodeLength is the number of digits a complete postal code has.
func (v *Validator) PostalCodeLength() int {
	return v.postalCodeLength
}

// ValidateStep checks the fields that belong to one step.
func (v *Validator) ValidateStep(step Step, in Input) FieldErrors {
	d := in.Data
	errs := FieldErrors{}
	switch step {
	case StepPersonal:
		v.collect(errs, contactFields{ProfileType: string(d.ProfileType), Email: d.Email, Phone: d.Phone})
		if d.ProfileType == enums.ProfileTypeBusiness {
			v.collect(errs, businessFields{CompanyName: d.CompanyName, CompanyDocument: d.CompanyDocument, TradingName: d.TradingName})
		} else {
			v.collect(errs, individualFields{FullName: d.FullName, Document: d.Document, BirthDate: d.BirthDate})
		}
	case StepDelivery:
		v.collect(errs, addressFields{
			PostalCode:   d.PostalCode,
			Street:       d.Street,
			Number:       d.Number,
			Complement:   d.Complement,
			Neighborhood: d.Neighborhood,
			City:         d.City,
			State:        d.State,
		})
	case StepPayment:
		v.validatePayment(errs, in)
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ValidateForm checks the steps whose data lives in the form, leaving the card step out.
func (v *Validator) ValidateForm(data FormData) ValidationErrors {
	in := Input{Data: data}
	return ValidationErrors{
		Personal: v.ValidateStep(StepPersonal, in),
		Address:  v.ValidateStep(StepDelivery, in),
	}
}

// ValidateAll checks every step, including the request-scoped card secrets.
func (v *Validator) ValidateAll(in Input) ValidationErrors {
	return ValidationErrors{
		Personal: v.ValidateStep(StepPersonal, in),
		Address:  v.ValidateStep(StepDelivery, in),
		Card:     v.ValidateStep(StepPayment, in),
	}
}

func (v *Validator) validatePayment(errs FieldErrors, in Input) {
	d := in.Data
	v.collect(errs, paymentFields{PaymentMethod: string(d.PaymentMethod)})
	if !d.PaymentMethod.IsCard() {
		return
	}
	if d.PaymentMethod == enums.PaymentMethodCredit {
		v.collect(errs, installmentFields{Installments: d.Installments})
	}

	brand := in.Masked.Brand
	if in.Masked.IsMasked {
		v.collect(errs, savedCardFields{CVV: strings.TrimSpace(in.Secrets.CVV)})
	} else {
		v.collect(errs, newCardFields{
			Number: onlyDigits(in.Secrets.Number),
			Holder: d.CardHolder,
			Expiry: d.CardExpiry,
			CVV:    strings.TrimSpace(in.Secrets.CVV),
		})
		brand = DetectBrand(in.Secrets.Number)
	}
	if _, failed := errs["cvv"]; !failed && brand != enums.CardBrandUnknown {
		if len(strings.TrimSpace(in.Secrets.CVV)) != brand.CVVLength() {
			errs["cvv"] = fmt.Sprintf("must have %d digits", brand.CVVLength())
		}
	}
}

func (v *Validator) collect(errs FieldErrors, fields any) {
	err := v.v.Struct(fields)
	if err == nil {
		return
	}
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			errs[fe.Field()] = validationMessage(fe)
		}
		return
	}
	errs["_"] = "is invalid"
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "email":
		return "must be a valid email"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "cpf":
		return "must be a valid CPF"
	case "cnpj":
		return "must be a valid CNPJ"
	case "luhn":
		return "must be a valid card number"
	case "cardexpiry":
		return "must be a future MM/YY date"
	case "cvv":
		return "must have 3 or 4 digits"
	case "cep":
		return "must be a complete postal code"
	case "brphone":
		return "must include area code and number"
	case "birthdate":
		return "must be a valid YYYY-MM-DD date"
	case "uf":
		return "must be a state abbreviation"
	}
	return "is invalid"
}

func onlyDigits(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func allSame(digits string) bool {
	for i := 1; i < len(digits); i++ {
		if digits[i] != digits[0] {
			return false
		}
	}
	return true
}

// ValidCPF checks an individual taxpayer number and its two check digits.
func ValidCPF(value string) bool {
	d := onlyDigits(value)
	if len(d) != 11 || allSame(d) {
		return false
	}
	for check := 9; check <= 10; check++ {
		sum := 0
		for i := 0; i < check; i++ {
			sum += int(d[i]-'0') * (check + 1 - i)
		}
		digit := (sum * 10) % 11
		if digit == 10 {
			digit = 0
		}
		if digit != int(d[check]-'0') {
			return false
		}
	}
	return true
}

var cnpjWeights = []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}

// ValidCNPJ checks a company taxpayer number and its two check digits.
func ValidCNPJ(value string) bool {
	d := onlyDigits(value)
	if len(d) != 14 || allSame(d) {
		return false
	}
	for check := 12; check <= 13; check++ {
		weights := cnpjWeights[13-check:]
		sum := 0
		for i := 0; i < check; i++ {
			sum += int(d[i]-'0') * weights[i]
		}
		digit := sum % 11
		if digit < 2 {
			digit = 0
		} else {
			digit = 11 - digit
		}
		if digit != int(d[check]-'0') {
			return false
		}
	}
	return true
}

// ValidLuhn checks a 13 to 19 digit card number against the mod 10 checksum.
func ValidLuhn(value string) bool {
	d := onlyDigits(value)
	if len(d) < 13 || len(d) > 19 {
		return false
	}
	sum := 0
	double := false
	for i := len(d) - 1; i >= 0; i-- {
		n := int(d[i] - '0')
		if double {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		sum += n
		double = !double
	}
	return sum%10 == 0
}

func validPhone(value string) bool {
	d := onlyDigits(value)
	if strings.HasPrefix(d, "55") && len(d) > 11 {
		d = d[2:]
	}
	switch len(d) {
	case 10:
		return d[0] != '0'
	case 11:
		return d[0] != '0' && d[2] == '9'
	}
	return false
}

var federativeUnits = map[string]struct{}{
	"AC": {}, "AL": {}, "AP": {}, "AM": {}, "BA": {}, "CE": {}, "DF": {}, "ES": {}, "GO": {},
	"MA": {}, "MT": {}, "MS": {}, "MG": {}, "PA": {}, "PB": {}, "PR": {}, "PE": {}, "PI": {},
	"RJ": {}, "RN": {}, "RS": {}, "RO": {}, "RR": {}, "SC": {}, "SP": {}, "SE": {}, "TO": {},
}

func validUF(value string) bool {
	_, ok := federativeUnits[strings.ToUpper(strings.TrimSpace(value))]
	return ok
}

// parseExpiry accepts MM/YY and MM/YYYY.
func parseExpiry(value string) (month, year int, ok bool) {
	parts := strings.Split(strings.TrimSpace(value), "/")
	if len(parts) != 2 || len(parts[0]) == 0 || len(parts[0]) > 2 {
		return 0, 0, false
	}
	month, err := strconv.Atoi(parts[0])
	if err != nil || month < 1 || month > 12 {
		return 0, 0, false
	}
	if len(parts[1]) != 2 && len(parts[1]) != 4 {
		return 0, 0, false
	}
	year, err = strconv.Atoi(parts[1])
	if err != nil || year < 0 {
		return 0, 0, false
	}
	if len(parts[1]) == 2 {
		year += 2000
	}
	return month, year, true
}

func validExpiry(value string, now time.Time) bool {
	month, year, ok := parseExpiry(value)
	if !ok {
		return false
	}
	// Cards stay valid through the last day of the printed month.
	endOfMonth := time.Date(year, time.Month(month)+1, 1, 0, 0, 0, 0, time.UTC)
	return now.UTC().Before(endOfMonth) && year <= now.Year()+20
}

func validBirthDate(value string, now time.Time) bool {
	born, err := time.Parse("2006-01-02", strings.TrimSpace(value))
	if err != nil {
		return false
	}
	return born.Before(now) && born.After(now.AddDate(-130, 0, 0))
}
