package cart

import (
	cartsvc "github.com/angelmondragon/storefront-core/internal/cart"
)

type failedItemResponse struct {
	SkuID int    `json:"sku_id"`
	Error string `json:"error"`
}

type migrationResponse struct {
	Succeeded []int                `json:"succeeded"`
	Failed    []failedItemResponse `json:"failed"`
	Partial   bool                 `json:"partial"`
}

type cartResponse struct {
	Cart          cartsvc.Cart       `json:"cart"`
	ItemCount     int                `json:"item_count"`
	Loading       bool               `json:"loading"`
	Error         string             `json:"error,omitempty"`
	Authenticated bool               `json:"authenticated"`
	HasMigrated   bool               `json:"has_migrated"`
	LastMigration *migrationResponse `json:"last_migration,omitempty"`
}

func newCartResponse(state cartsvc.State) cartResponse {
	items := state.Cart.Items
	if items == nil {
		items = []cartsvc.CartItem{}
	}
	state.Cart.Items = items

	resp := cartResponse{
		Cart:          state.Cart,
		Loading:       state.Loading,
		Authenticated: state.Authenticated,
		HasMigrated:   state.HasMigrated,
	}
	for _, item := range items {
		resp.ItemCount += item.Quantity
	}
	if state.Err != nil {
		resp.Error = state.Err.Error()
	}
	if report := state.LastMigration; report != nil {
		migration := &migrationResponse{
			Succeeded: append([]int{}, report.Succeeded...),
			Failed:    make([]failedItemResponse, 0, len(report.Failed)),
			Partial:   report.Partial(),
		}
		for _, failed := range report.Failed {
			msg := ""
			if failed.Err != nil {
				msg = failed.Err.Error()
			}
			migration.Failed = append(migration.Failed, failedItemResponse{SkuID: failed.SkuID, Error: msg})
		}
		resp.LastMigration = migration
	}
	return resp
}
