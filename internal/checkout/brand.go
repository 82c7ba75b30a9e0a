package checkout

import (
	"strconv"

	"github.com/angelmondragon/storefront-core/pkg/enums"
)

type binRange struct {
	from, to int
	digits   int
	brand    enums.CardBrand
}

// Order matters: Elo and Hipercard ranges overlap the Visa and Discover prefixes.
var binRanges = []binRange{
	{401178, 401179, 6, enums.CardBrandElo},
	{431274, 431274, 6, enums.CardBrandElo},
	{438935, 438935, 6, enums.CardBrandElo},
	{451416, 451416, 6, enums.CardBrandElo},
	{457393, 457393, 6, enums.CardBrandElo},
	{457631, 457632, 6, enums.CardBrandElo},
	{504175, 504175, 6, enums.CardBrandElo},
	{506699, 506778, 6, enums.CardBrandElo},
	{509000, 509999, 6, enums.CardBrandElo},
	{627780, 627780, 6, enums.CardBrandElo},
	{636297, 636297, 6, enums.CardBrandElo},
	{636368, 636368, 6, enums.CardBrandElo},
	{650031, 650051, 6, enums.CardBrandElo},
	{650405, 650439, 6, enums.CardBrandElo},
	{650485, 650538, 6, enums.CardBrandElo},
	{650541, 650598, 6, enums.CardBrandElo},
	{650700, 650727, 6, enums.CardBrandElo},
	{650901, 650920, 6, enums.CardBrandElo},
	{651652, 651679, 6, enums.CardBrandElo},
	{655000, 655058, 6, enums.CardBrandElo},
	{606282, 606282, 6, enums.CardBrandHipercard},
	{3841, 3841, 4, enums.CardBrandHipercard},
	{34, 34, 2, enums.CardBrandAmex},
	{37, 37, 2, enums.CardBrandAmex},
	{300, 305, 3, enums.CardBrandDiners},
	{36, 36, 2, enums.CardBrandDiners},
	{38, 38, 2, enums.CardBrandDiners},
	{6011, 6011, 4, enums.CardBrandDiscover},
	{644, 649, 3, enums.CardBrandDiscover},
	{65, 65, 2, enums.CardBrandDiscover},
	{51, 55, 2, enums.CardBrandMastercard},
	{2221, 2720, 4, enums.CardBrandMastercard},
	{4, 4, 1, enums.CardBrandVisa},
}

// DetectBrand guesses the card network from the leading digits. It is used for display and
// for the saved-card block; the gateway remains the authority.
func DetectBrand(number string) enums.CardBrand {
	digits := onlyDigits(number)
	for _, r := range binRanges {
		if len(digits) < r.digits {
			continue
		}
		prefix, err := strconv.Atoi(digits[:r.digits])
		if err != nil {
			continue
		}
		if prefix >= r.from && prefix <= r.to {
			return r.brand
		}
	}
	return enums.CardBrandUnknown
}

func lastDigits(number string, n int) string {
	digits := onlyDigits(number)
	if len(digits) <= n {
		return digits
	}
	return digits[len(digits)-n:]
}
