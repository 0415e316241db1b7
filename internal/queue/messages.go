// Package queue runs the translator behind RabbitMQ: requests arrive on one
// queue and replies are published to another.
package queue

import (
	"errors"

	"github.com/example/command-translator/internal/models"
)

// ErrMalformed marks a delivery that can never be processed and must not be
// requeued.
var ErrMalformed = errors.New("malformed request")

// TranslateRequest is the body of a message on the request queue.
type TranslateRequest struct {
	ID   string `json:"id"`
	Text string `json:"text"`

	// Filled from the delivery properties, not the body.
	ReplyTo       string `json:"-"`
	CorrelationID string `json:"-"`
}

// TranslateReply is published for every request that was processed, whether
// or not the translation succeeded.
type TranslateReply struct {
	ID       string         `json:"id"`
	Command  models.Command `json:"command,omitempty"`
	Attempts int            `json:"attempts"`
	Error    *ReplyError    `json:"error,omitempty"`
}

type ReplyError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
