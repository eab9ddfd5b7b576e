package queue

import (
	"errors"
	"sync/atomic"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrAlreadySettled is returned when a message is acked or nacked twice.
// The broker would otherwise close the channel with PRECONDITION_FAILED.
var ErrAlreadySettled = errors.New("message already settled")

// Message is a decoded job together with the delivery it arrived on.
type Message struct {
	Job      *Job
	delivery amqp.Delivery
	settled  atomic.Bool
}

func newMessage(job *Job, d amqp.Delivery) *Message {
	return &Message{Job: job, delivery: d}
}

// Ack removes the message from the queue.
func (m *Message) Ack() error {
	if !m.settled.CompareAndSwap(false, true) {
		return ErrAlreadySettled
	}
	return m.delivery.Ack(false)
}

// Nack rejects the message. Without requeue it is dead-lettered.
func (m *Message) Nack(requeue bool) error {
	if !m.settled.CompareAndSwap(false, true) {
		return ErrAlreadySettled
	}
	return m.delivery.Nack(false, requeue)
}

// GetJob returns the decoded job.
func (m *Message) GetJob() *Job {
	return m.Job
}

// Redelivered reports whether the broker has delivered this message before,
// e.g. after a consumer died holding it.
func (m *Message) Redelivered() bool {
	return m.delivery.Redelivered
}
