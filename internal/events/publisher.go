package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/storefront-core/internal/cart"
	"github.com/angelmondragon/storefront-core/internal/checkout"
	"github.com/angelmondragon/storefront-core/pkg/enums"
	"github.com/angelmondragon/storefront-core/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	envelopeVersion       = 1
	defaultPublishTimeout = 5 * time.Second
)

// Envelope is the stable JSON body of every storefront event.
type Envelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	EventType  enums.EventType `json:"eventType"`
	SessionID  string          `json:"sessionId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

// CartMigratedEvent is emitted after a guest cart was folded into a customer cart.
type CartMigratedEvent struct {
	Succeeded []int             `json:"succeeded"`
	Failed    []cart.FailedItem `json:"failed"`
	Partial   bool              `json:"partial"`
}

// CheckoutCompletedEvent is emitted once per confirmed order.
type CheckoutCompletedEvent struct {
	CustomerID    string          `json:"customer_id,omitempty"`
	OrderID       string          `json:"order_id,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty"`
	PaymentMethod string          `json:"payment_method"`
	Amount        decimal.Decimal `json:"amount"`
	Items         int             `json:"items"`
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// Publisher sends cart and checkout events to Pub/Sub. Failures are logged and never
// surface to the shopper; the order already exists when an event is published.
type Publisher struct {
	pub     publisher
	logg    *logger.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewPublisher wraps a Pub/Sub topic publisher.
func NewPublisher(p *gcppubsub.Publisher, logg *logger.Logger) (*Publisher, error) {
	if p == nil {
		return nil, errors.New("pubsub publisher is required")
	}
	return newPublisher(&gcpPublisher{Publisher: p}, logg), nil
}

func newPublisher(pub publisher, logg *logger.Logger) *Publisher {
	return &Publisher{pub: pub, logg: logg, timeout: defaultPublishTimeout, now: time.Now}
}

// CartMigrated implements cart.EventSink.
func (p *Publisher) CartMigrated(ctx context.Context, sessionID string, report cart.MigrationReport) {
	p.emit(ctx, enums.EventCartMigrated, sessionID, CartMigratedEvent{
		Succeeded: report.Succeeded,
		Failed:    report.Failed,
		Partial:   report.Partial(),
	})
}

// CheckoutCompleted implements checkout.CompletionSink.
func (p *Publisher) CheckoutCompleted(ctx context.Context, sessionID string, completed checkout.Completed) {
	p.emit(ctx, enums.EventCheckoutCompleted, sessionID, CheckoutCompletedEvent{
		CustomerID:    completed.CustomerID,
		OrderID:       completed.OrderID,
		TransactionID: completed.TransactionID,
		PaymentMethod: completed.PaymentMethod,
		Amount:        completed.Amount,
		Items:         completed.Items,
	})
}

func (p *Publisher) emit(ctx context.Context, eventType enums.EventType, sessionID string, payload any) {
	if p == nil || p.pub == nil {
		return
	}
	envelope, err := p.envelope(eventType, sessionID, payload)
	if err == nil {
		err = p.send(ctx, envelope)
	}
	if err != nil && p.logg != nil {
		fields := map[string]any{"event_type": eventType}
		if envelope != nil {
			fields["event_id"] = envelope.EventID
		}
		p.logg.Error(p.logg.WithFields(ctx, fields), "events.publish_failed", err)
	}
}

func (p *Publisher) envelope(eventType enums.EventType, sessionID string, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return &Envelope{
		Version:    envelopeVersion,
		EventID:    uuid.NewString(),
		EventType:  eventType,
		SessionID:  sessionID,
		OccurredAt: p.now().UTC(),
		Data:       data,
	}, nil
}

func (p *Publisher) send(ctx context.Context, envelope *Envelope) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	msg := &gcppubsub.Message{
		Data: body,
		Attributes: map[string]string{
			"event_id":       envelope.EventID,
			"event_type":     string(envelope.EventType),
			"aggregate_type": string(envelope.EventType.Aggregate()),
			"session_id":     envelope.SessionID,
			"occurred_at":    envelope.OccurredAt.Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	result := p.pub.Publish(publishCtx, msg)
	if result == nil {
		return errors.New("publisher returned no result")
	}
	_, err = result.Get(publishCtx)
	return err
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}

var (
	_ cart.EventSink          = (*Publisher)(nil)
	_ checkout.CompletionSink = (*Publisher)(nil)
)
