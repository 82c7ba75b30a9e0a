package checkout

import (
	"context"
	"testing"

	"github.com/angelmondragon/storefront-core/pkg/commerce"
	"github.com/angelmondragon/storefront-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
)

func TestDocumentChecksums(t *testing.T) {
	cases := []struct {
		name  string
		check func(string) bool
		value string
		want  bool
	}{
		{"cpf formatted", ValidCPF, "529.982.247-25", true},
		{"cpf wrong digit", ValidCPF, "529.982.247-26", false},
		{"cpf repeated", ValidCPF, "111.111.111-11", false},
		{"cpf short", ValidCPF, "5299822472", false},
		{"cnpj formatted", ValidCNPJ, "11.222.333/0001-81", true},
		{"cnpj wrong digit", ValidCNPJ, "11.222.333/0001-80", false},
		{"cnpj repeated", ValidCNPJ, "00000000000000", false},
		{"luhn visa", ValidLuhn, "4111 1111 1111 1111", true},
		{"luhn amex", ValidLuhn, "378282246310005", true},
		{"luhn broken", ValidLuhn, "4111 1111 1111 1112", false},
		{"luhn too short", ValidLuhn, "42", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.check(tc.value); got != tc.want {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestValidateStepPersonalIndividual(t *testing.T) {
	v := testValidator()
	if errs := v.ValidateStep(StepPersonal, Input{Data: validForm()}); errs != nil {
		t.Fatalf("expected valid personal step, got %v", errs)
	}

	d := validForm()
	d.Email = "not-an-email"
	d.Document = "123"
	d.BirthDate = "2030-01-01"
	errs := v.ValidateStep(StepPersonal, Input{Data: d})
	for _, field := range []string{"email", "document", "birth_date"} {
		if _, ok := errs[field]; !ok {
			t.Fatalf("expected error on %s, got %v", field, errs)
		}
	}
}

func TestValidateStepPersonalBusiness(t *testing.T) {
	v := testValidator()
	d := validForm()
	d.ProfileType = enums.ProfileTypeBusiness
	d.FullName = ""
	d.Document = ""
	d.CompanyName = "Acme Ltda"
	d.CompanyDocument = "11.222.333/0001-81"

	if errs := v.ValidateStep(StepPersonal, Input{Data: d}); errs != nil {
		t.Fatalf("business profile should not need individual fields, got %v", errs)
	}
	d.CompanyDocument = "11.222.333/0001-00"
	errs := v.ValidateStep(StepPersonal, Input{Data: d})
	if errs["company_document"] != "must be a valid CNPJ" {
		t.Fatalf("expected cnpj error, got %v", errs)
	}
}

func TestValidateStepAddress(t *testing.T) {
	v := testValidator()
	d := validForm()
	d.PostalCode = "0131"
	d.State = "XX"
	errs := v.ValidateStep(StepDelivery, Input{Data: d})
	if _, ok := errs["postal_code"]; !ok {
		t.Fatalf("expected postal code error, got %v", errs)
	}
	if _, ok := errs["state"]; !ok {
		t.Fatalf("expected state error, got %v", errs)
	}
}

func TestValidatePaymentModes(t *testing.T) {
	v := testValidator()
	d := validForm()

	cases := []struct {
		name    string
		in      Input
		wantErr []string
	}{
		{"new card ok", Input{Data: d, Secrets: visaSecrets}, nil},
		{"new card expired", Input{Data: withExpiry(d, "01/20"), Secrets: visaSecrets}, []string{"card_expiry"}},
		{"new card bad number", Input{Data: d, Secrets: CardSecrets{Number: "4111111111111112", CVV: "123"}}, []string{"card_number"}},
		{"amex needs four digit cvv", Input{Data: d, Secrets: CardSecrets{Number: "378282246310005", CVV: "123"}}, []string{"cvv"}},
		{"saved card needs cvv", Input{Data: d, Masked: MaskedCard{IsMasked: true, CardID: 1, Brand: enums.CardBrandVisa}}, []string{"cvv"}},
		{"saved card ignores number", Input{Data: d, Masked: MaskedCard{IsMasked: true, CardID: 1}, Secrets: CardSecrets{CVV: "999"}}, nil},
		{"pix needs nothing", Input{Data: withMethod(d, enums.PaymentMethodPix)}, nil},
		{"installments bounded", Input{Data: withInstallments(d, 13), Secrets: visaSecrets}, []string{"installments"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			errs := v.ValidateStep(StepPayment, tc.in)
			if len(tc.wantErr) == 0 && errs != nil {
				t.Fatalf("expected no errors, got %v", errs)
			}
			for _, field := range tc.wantErr {
				if _, ok := errs[field]; !ok {
					t.Fatalf("expected error on %s, got %v", field, errs)
				}
			}
		})
	}
}

func TestValidationErrorsErr(t *testing.T) {
	if (ValidationErrors{}).Err() != nil {
		t.Fatal("empty errors should convert to nil")
	}
	err := ValidationErrors{Card: FieldErrors{"cvv": "is required"}}.Err()
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDetectBrand(t *testing.T) {
	cases := map[string]enums.CardBrand{
		"4111111111111111": enums.CardBrandVisa,
		"5555555555554444": enums.CardBrandMastercard,
		"2221000000000009": enums.CardBrandMastercard,
		"378282246310005":  enums.CardBrandAmex,
		"6362970000457013": enums.CardBrandElo,
		"6062825624254001": enums.CardBrandHipercard,
		"36227206271667":   enums.CardBrandDiners,
		"6011111111111117": enums.CardBrandDiscover,
		"9999":             enums.CardBrandUnknown,
	}
	for number, want := range cases {
		if got := DetectBrand(number); got != want {
			t.Fatalf("%s: got %q want %q", number, got, want)
		}
	}
}

func TestDigitHelpersIgnoreNonASCIIDigits(t *testing.T) {
	arabicIndic := "\u0664\u0661\u0661\u0661"
	if got := onlyDigits(arabicIndic + "-12"); got != "12" {
		t.Fatalf("expected only ASCII digits, got %q", got)
	}
	if got := lastDigits("4111 1111 1111 1111"+arabicIndic, 4); got != "1111" {
		t.Fatalf("unexpected last digits %q", got)
	}
	if got := len(lastDigits(arabicIndic+arabicIndic, 4)); got != 0 {
		t.Fatalf("expected no digits, got %d bytes", got)
	}
	if got := DetectBrand(arabicIndic + "111111111111"); got != enums.CardBrandUnknown {
		t.Fatalf("expected unknown brand, got %q", got)
	}
}

type stubAvailability struct {
	calls int
	free  bool
}

func (s *stubAvailability) CheckAvailability(context.Context, commerce.AvailabilityField, string) (bool, error) {
	s.calls++
	return s.free, nil
}

func TestAvailabilityRejectsBadFormatWithoutCalling(t *testing.T) {
	api := &stubAvailability{free: true}
	checker, err := NewAvailabilityChecker(api, testValidator())
	if err != nil {
		t.Fatalf("new checker: %v", err)
	}

	if _, err := checker.Check(context.Background(), commerce.AvailabilityDocument, "123"); err == nil {
		t.Fatal("expected format error")
	}
	if api.calls != 0 {
		t.Fatalf("expected no network call, got %d", api.calls)
	}

	res, err := checker.Check(context.Background(), commerce.AvailabilityEmail, "Ana@Example.com")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !res.Available || res.Stale || api.calls != 1 {
		t.Fatalf("unexpected result %+v calls=%d", res, api.calls)
	}
}

func withExpiry(d FormData, expiry string) FormData {
	d.CardExpiry = expiry
	return d
}

func withMethod(d FormData, method enums.PaymentMethod) FormData {
	d.PaymentMethod = method
	return d
}

func withInstallments(d FormData, n int) FormData {
	d.Installments = n
	return d
}
