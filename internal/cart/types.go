package cart

import (
	"strconv"

	"github.com/angelmondragon/storefront-core/pkg/commerce"
	"github.com/shopspring/decimal"
)

// GuestCartID identifies a cart held in the guest store.
const GuestCartID = "guest"

// UnitSnapshot is the display data attached to a line by the server or the preview call.
type UnitSnapshot struct {
	Title       string          `json:"title"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image,omitempty"`
	PartnerCode string          `json:"partner_code,omitempty"`
}

// CartItem is one SKU line. Quantity is at least 1 while the line exists.
type CartItem struct {
	ID        *int64        `json:"id,omitempty"`
	SkuID     int           `json:"sku_id"`
	ProductID *int          `json:"product_id,omitempty"`
	Quantity  int           `json:"quantity"`
	Available *bool         `json:"available,omitempty"`
	Unit      *UnitSnapshot `json:"unit,omitempty"`
}

// Cart is the full snapshot every repository call returns.
// Subtotal comes from the server or the preview call and covers available items only.
type Cart struct {
	ID       string          `json:"id"`
	Items    []CartItem      `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// IsEmpty reports whether the cart holds no lines.
func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Find returns the line for the SKU.
func (c Cart) Find(skuID int) (CartItem, bool) {
	for _, item := range c.Items {
		if item.SkuID == skuID {
			return item, true
		}
	}
	return CartItem{}, false
}

// GuestLine is the minimal durable projection of a guest cart line.
type GuestLine struct {
	SkuID     int  `json:"sku_id"`
	ProductID *int `json:"product_id,omitempty"`
	Quantity  int  `json:"quantity"`
}

// GuestCartSnapshot is what the guest store persists. Prices and titles are left out on purpose
// so nothing stale can be shown without a fresh preview.
type GuestCartSnapshot struct {
	Items []GuestLine `json:"items"`
}

func emptyCart(id string) Cart {
	return Cart{ID: id, Items: []CartItem{}, Subtotal: decimal.Zero}
}

func fromRemote(remote *commerce.RemoteCart) Cart {
	if remote == nil {
		return emptyCart("")
	}
	out := Cart{
		ID:       strconv.FormatInt(remote.ID, 10),
		Items:    make([]CartItem, 0, len(remote.Items)),
		Subtotal: remote.Subtotal,
	}
	for _, line := range remote.Items {
		if line.Quantity <= 0 {
			continue
		}
		out.Items = append(out.Items, fromLine(line))
	}
	return out
}

func fromLine(line commerce.CartLine) CartItem {
	item := CartItem{
		ID:        line.ID,
		SkuID:     line.SkuID,
		ProductID: line.ProductID,
		Quantity:  line.Quantity,
		Available: line.Available,
	}
	if line.Product != nil {
		item.Unit = &UnitSnapshot{
			Title:       line.Product.Title,
			Price:       line.Product.Price,
			Image:       line.Product.Image,
			PartnerCode: line.Product.PartnerCode,
		}
	}
	return item
}
