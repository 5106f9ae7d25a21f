package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/rabbitmq/amqp091-go"
)

type fakeAcknowledger struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.acked = true
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.nacked = true
	a.requeue = requeue
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	a.nacked = true
	a.requeue = requeue
	return nil
}

func delivery(body []byte) (amqp091.Delivery, *fakeAcknowledger) {
	ack := &fakeAcknowledger{}
	return amqp091.Delivery{Acknowledger: ack, Body: body}, ack
}

func TestHandleDelivery_AcksHandledMessage(t *testing.T) {
	msg := NewRunStatusMessage("run-1", "fees-import", "tenant-1", "IT", "2025-07", StatusLoaded, "", nil)
	body, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}

	d, ack := delivery(body)
	var got *RunStatusMessage
	handleDelivery(context.Background(), d, func(m *RunStatusMessage) error {
		got = m
		return nil
	})

	if !ack.acked || ack.nacked {
		t.Errorf("ack = %v nack = %v, want acked only", ack.acked, ack.nacked)
	}
	if got == nil || got.RunID != "run-1" || got.Status != StatusLoaded {
		t.Errorf("handler saw %+v", got)
	}
}

func TestHandleDelivery_RejectsMalformedWithoutRequeue(t *testing.T) {
	d, ack := delivery([]byte("{not json"))
	handleDelivery(context.Background(), d, func(*RunStatusMessage) error {
		t.Fatal("handler must not run for a malformed payload")
		return nil
	})

	if !ack.nacked || ack.requeue {
		t.Errorf("nack = %v requeue = %v, want nacked without requeue", ack.nacked, ack.requeue)
	}
}

func TestHandleDelivery_RequeuesOnHandlerError(t *testing.T) {
	msg := NewRunStatusMessage("run-1", "orders-import", "", "IT", "2025-07", StatusFailed, "", nil)
	body, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}

	d, ack := delivery(body)
	handleDelivery(context.Background(), d, func(*RunStatusMessage) error {
		return errors.New("downstream unavailable")
	})

	if !ack.nacked || !ack.requeue {
		t.Errorf("nack = %v requeue = %v, want nacked with requeue", ack.nacked, ack.requeue)
	}
	if ack.acked {
		t.Error("message must not be acked after a handler failure")
	}
}
