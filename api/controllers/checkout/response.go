package checkout

import (
	"time"

	"github.com/shopspring/decimal"

	checkoutsvc "github.com/angelmondragon/storefront-core/internal/checkout"
)

type attemptResponse struct {
	ID            string          `json:"id"`
	PaymentMethod string          `json:"payment_method"`
	Outcome       string          `json:"outcome"`
	ErrorCode     *string         `json:"error_code,omitempty"`
	OrderID       *string         `json:"order_id,omitempty"`
	TransactionID *string         `json:"transaction_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Installments  int             `json:"installments"`
	CreatedAt     time.Time       `json:"created_at"`
}

type attemptsResponse struct {
	Attempts   []attemptResponse `json:"attempts"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

func newAttemptsResponse(page checkoutsvc.AttemptPage) attemptsResponse {
	out := make([]attemptResponse, 0, len(page.Attempts))
	for _, record := range page.Attempts {
		out = append(out, attemptResponse{
			ID:            record.ID.String(),
			PaymentMethod: string(record.PaymentMethod),
			Outcome:       string(record.Outcome),
			ErrorCode:     record.ErrorCode,
			OrderID:       record.OrderID,
			TransactionID: record.TransactionID,
			Amount:        record.Amount,
			Installments:  record.Installments,
			CreatedAt:     record.CreatedAt,
		})
	}
	return attemptsResponse{Attempts: out, NextCursor: page.NextCursor}
}
