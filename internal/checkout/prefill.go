package checkout

import (
	"context"
	"strings"

	"github.com/angelmondragon/storefront-core/pkg/commerce"
	"github.com/angelmondragon/storefront-core/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
)

// ProfileSource reads the authenticated customer's stored data.
type ProfileSource interface {
	GetProfile(ctx context.Context, token string) (*commerce.Profile, error)
	ListAddresses(ctx context.Context, token string) ([]commerce.Address, error)
	ListPhones(ctx context.Context, token string) ([]commerce.Phone, error)
	ListCards(ctx context.Context, token string) ([]commerce.SavedCard, error)
}

// PrefillOutcome reports what happened to one prefill attempt.
type PrefillOutcome string

const (
	PrefillApplied    PrefillOutcome = "applied"
	PrefillSkipped    PrefillOutcome = "skipped"
	PrefillSuperseded PrefillOutcome = "superseded"
)

type prefillSnapshot struct {
	profile *commerce.Profile
	address *commerce.Address
	phone   *commerce.Phone
	card    *commerce.SavedCard
}

// Prefill merges the customer's stored profile, default address, phone and card into the
// form once per customer. Every attempt takes a new request token; a response is dropped
// when a newer attempt started meanwhile or the form was closed.
func (f *Form) Prefill(ctx context.Context, source ProfileSource, customerID, token string) (PrefillOutcome, error) {
	if source == nil {
		return PrefillSkipped, nil
	}
	f.mu.Lock()
	if f.closed || (customerID != "" && f.prefilledFor == customerID) {
		f.mu.Unlock()
		return PrefillSkipped, nil
	}
	f.prefillSeq++
	seq := f.prefillSeq
	f.mu.Unlock()

	snapshot, err := loadPrefill(ctx, source, token)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || seq != f.prefillSeq {
		return PrefillSuperseded, nil
	}
	if err != nil {
		return PrefillSkipped, err
	}
	f.mergePrefillLocked(snapshot)
	f.prefilledFor = customerID
	return PrefillApplied, nil
}

func loadPrefill(ctx context.Context, source ProfileSource, token string) (prefillSnapshot, error) {
	var out prefillSnapshot
	profile, err := source.GetProfile(ctx, token)
	if err != nil {
		return out, pkgerrors.Classify(err, "load customer profile")
	}
	out.profile = profile

	addresses, err := source.ListAddresses(ctx, token)
	if err != nil {
		return out, pkgerrors.Classify(err, "load customer addresses")
	}
	if idx := defaultIndex(len(addresses), func(i int) bool { return addresses[i].IsDefault }); idx >= 0 {
		out.address = &addresses[idx]
	}

	phones, err := source.ListPhones(ctx, token)
	if err != nil {
		return out, pkgerrors.Classify(err, "load customer phones")
	}
	if idx := defaultIndex(len(phones), func(i int) bool { return phones[i].IsDefault }); idx >= 0 {
		out.phone = &phones[idx]
	}

	cards, err := source.ListCards(ctx, token)
	if err != nil {
		return out, pkgerrors.Classify(err, "load customer cards")
	}
	if idx := defaultIndex(len(cards), func(i int) bool { return cards[i].IsDefault }); idx >= 0 {
		out.card = &cards[idx]
	}
	return out, nil
}

func defaultIndex(n int, isDefault func(int) bool) int {
	if n == 0 {
		return -1
	}
	for i := 0; i < n; i++ {
		if isDefault(i) {
			return i
		}
	}
	return 0
}

// mergePrefillLocked fills only fields the shopper has not typed yet.
func (f *Form) mergePrefillLocked(s prefillSnapshot) {
	d := &f.data
	if p := s.profile; p != nil {
		if kind, err := enums.ParseProfileType(p.ProfileType); err == nil {
			d.ProfileType = kind
		}
		fill(&d.Email, p.Email)
		fill(&d.FullName, p.FullName)
		fill(&d.Document, p.Document)
		fill(&d.BirthDate, p.BirthDate)
		fill(&d.CompanyName, p.CompanyName)
		fill(&d.CompanyDocument, p.CompanyDocument)
		fill(&d.TradingName, p.TradingName)
	}
	if a := s.address; a != nil && strings.TrimSpace(d.PostalCode) == "" {
		d.PostalCode = a.PostalCode
		d.Street = a.Street
		d.Number = a.Number
		d.Complement = a.Complement
		d.Neighborhood = a.Neighborhood
		d.City = a.City
		d.State = a.State
		if a.ID != 0 {
			id := a.ID
			f.saved.AddressID = &id
		}
	}
	if ph := s.phone; ph != nil && strings.TrimSpace(d.Phone) == "" {
		d.Phone = ph.Number
		if ph.ID != 0 {
			id := ph.ID
			f.saved.PhoneID = &id
		}
	}
	if c := s.card; c != nil && c.ID != 0 {
		id := c.ID
		f.saved.CardID = &id
		f.masked = MaskedCard{
			IsMasked:    true,
			CardID:      c.ID,
			FinalDigits: c.FinalDigits,
			HolderName:  c.HolderName,
			Expiration:  c.Expiration,
			Brand:       enums.CardBrand(strings.ToLower(c.Brand)),
		}
		fill(&d.CardHolder, c.HolderName)
	}
}

func fill(dst *string, value string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = strings.TrimSpace(value)
	}
}
