package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/plateful/api/internal/services"
)

func TestNewPubSubOrderEventPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubOrderEventPublisher(nil); err == nil {
		t.Fatal("expected error for nil topic")
	}
}

func TestPublishOrderEventUninitialised(t *testing.T) {
	publisher := &PubSubOrderEventPublisher{
		marshal: func(any) ([]byte, error) {
			return nil, errors.New("boom")
		},
	}

	err := publisher.PublishOrderEvent(context.Background(), services.OrderEvent{
		Type:       "order.created",
		OrderID:    "ord_1",
		OccurredAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	})
	if err == nil {
		t.Fatal("expected error when publisher is not initialised")
	}
}
