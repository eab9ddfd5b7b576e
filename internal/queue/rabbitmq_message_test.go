package queue

import (
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
)

type recordingAcknowledger struct {
	acks  []uint64
	nacks map[uint64]bool
}

func (a *recordingAcknowledger) Ack(tag uint64, _ bool) error {
	a.acks = append(a.acks, tag)
	return nil
}

func (a *recordingAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	if a.nacks == nil {
		a.nacks = make(map[uint64]bool)
	}
	a.nacks[tag] = requeue
	return nil
}

func (a *recordingAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

var _ amqp.Acknowledger = (*recordingAcknowledger)(nil)

func TestMessage_SettlesOnce(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		settle   func(*Message) error
		wantAcks int
		wantNack bool
		requeued bool
	}{
		{"ack", (*Message).Ack, 1, false, false},
		{"dead letter", func(m *Message) error { return m.Nack(false) }, 0, true, false},
		{"requeue", func(m *Message) error { return m.Nack(true) }, 0, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ack := &recordingAcknowledger{}
			msg := newMessage(NewAnalyzeJob("alice"), amqp.Delivery{Acknowledger: ack, DeliveryTag: 7, Redelivered: true})

			if err := tt.settle(msg); err != nil {
				t.Fatalf("first settle error = %v", err)
			}
			if err := msg.Ack(); !errors.Is(err, ErrAlreadySettled) {
				t.Errorf("second Ack error = %v, want ErrAlreadySettled", err)
			}
			if err := msg.Nack(true); !errors.Is(err, ErrAlreadySettled) {
				t.Errorf("second Nack error = %v, want ErrAlreadySettled", err)
			}

			if len(ack.acks) != tt.wantAcks {
				t.Errorf("acks = %v, want %d", ack.acks, tt.wantAcks)
			}
			requeue, nacked := ack.nacks[7]
			if nacked != tt.wantNack || requeue != tt.requeued {
				t.Errorf("nack recorded = %v requeue = %v, want %v/%v", nacked, requeue, tt.wantNack, tt.requeued)
			}
			if !msg.Redelivered() || msg.GetJob().Handle != "alice" {
				t.Errorf("message = %+v", msg)
			}
		})
	}
}
