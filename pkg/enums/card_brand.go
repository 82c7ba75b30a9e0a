package enums

// CardBrand is the network a card number belongs to.
type CardBrand string

const (
	CardBrandUnknown    CardBrand = ""
	CardBrandVisa       CardBrand = "visa"
	CardBrandMastercard CardBrand = "mastercard"
	CardBrandAmex       CardBrand = "amex"
	CardBrandElo        CardBrand = "elo"
	CardBrandHipercard  CardBrand = "hipercard"
	CardBrandDiners     CardBrand = "diners"
	CardBrandDiscover   CardBrand = "discover"
)

// String implements fmt.Stringer.
func (b CardBrand) String() string {
	return string(b)
}

// CVVLength returns the security code length the brand prints on its cards.
func (b CardBrand) CVVLength() int {
	if b == CardBrandAmex {
		return 4
	}
	return 3
}
