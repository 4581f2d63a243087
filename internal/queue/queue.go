// Package queue defines the execution queue contract and its Redis transport.
package queue

import "context"

// Message is the payload published for each submitted job.
// Delivery is at-least-once: consumers must tolerate duplicates.
type Message struct {
	JobID string `json:"jobId"`
}

// Publisher enqueues execution messages after the job row commits.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Consumer blocks until the next message is available or the context ends.
type Consumer interface {
	Dequeue(ctx context.Context) (*Message, error)
}
