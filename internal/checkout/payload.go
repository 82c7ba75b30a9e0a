package checkout

import (
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-core/pkg/commerce"
	"github.com/angelmondragon/storefront-core/pkg/enums"
)

// RegistrationInput is what the registration payload is built from.
type RegistrationInput struct {
	Data          FormData
	Saved         SavedIDs
	Authenticated bool
	// CardToken is set when a new card was tokenized and the shopper asked to keep it.
	CardToken  string
	CardNumber string
}

// BuildRegistration assembles the profile, address, phone and optional card blocks. Saved
// address and phone ids are only referenced for authenticated customers.
func BuildRegistration(in RegistrationInput) commerce.RegistrationRequest {
	d := in.Data
	req := commerce.RegistrationRequest{
		Profile: buildProfile(d),
		Address: commerce.AddressBlock{Literal: &commerce.Address{
			PostalCode:   onlyDigits(d.PostalCode),
			Street:       d.Street,
			Number:       d.Number,
			Complement:   d.Complement,
			Neighborhood: d.Neighborhood,
			City:         d.City,
			State:        strings.ToUpper(d.State),
		}},
		Phone: commerce.PhoneBlock{Number: onlyDigits(d.Phone)},
	}
	if in.Authenticated && in.Saved.AddressID != nil {
		req.Address = commerce.AddressBlock{ID: in.Saved.AddressID}
	}
	if in.Authenticated && in.Saved.PhoneID != nil {
		req.Phone = commerce.PhoneBlock{ID: in.Saved.PhoneID}
	}
	if in.CardToken != "" && d.SaveCard {
		req.Card = &commerce.CardBlock{
			Token:       in.CardToken,
			Brand:       DetectBrand(in.CardNumber).String(),
			HolderName:  d.CardHolder,
			FinalDigits: lastDigits(in.CardNumber, 4),
			Expiration:  normalizeExpiry(d.CardExpiry),
		}
	}
	return req
}

func buildProfile(d FormData) commerce.ProfileBlock {
	block := commerce.ProfileBlock{Type: string(d.ProfileType), Email: strings.ToLower(d.Email)}
	if d.ProfileType == enums.ProfileTypeBusiness {
		block.CompanyName = d.CompanyName
		block.CompanyDocument = onlyDigits(d.CompanyDocument)
		block.TradingName = d.TradingName
		return block
	}
	block.Type = string(enums.ProfileTypeIndividual)
	block.FullName = d.FullName
	block.Document = onlyDigits(d.Document)
	block.BirthDate = d.BirthDate
	return block
}

// normalizeExpiry renders MM/YYYY.
func normalizeExpiry(value string) string {
	month, year, ok := parseExpiry(value)
	if !ok {
		return value
	}
	return fmt.Sprintf("%02d/%04d", month, year)
}
