package queue

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/example/command-translator/internal/apperr"
	"github.com/example/command-translator/internal/logging"
	"github.com/example/command-translator/internal/models"
	"github.com/example/command-translator/internal/translator"
)

type translateFunc func(ctx context.Context, text string) (*translator.Result, error)

func (f translateFunc) Translate(ctx context.Context, text string) (*translator.Result, error) {
	return f(ctx, text)
}

type published struct {
	replyTo       string
	correlationID string
	reply         *TranslateReply
}

type memPublisher struct {
	sent []published
	err  error
}

func (m *memPublisher) PublishReply(ctx context.Context, replyTo, correlationID string, reply *TranslateReply) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, published{replyTo, correlationID, reply})
	return nil
}

func TestHandleSuccess(t *testing.T) {
	tr := translateFunc(func(ctx context.Context, text string) (*translator.Result, error) {
		if text != "turn off the kitchen lights" {
			t.Errorf("unexpected text %q", text)
		}
		return &translator.Result{Command: models.Command{"action": "turn_off"}, Attempts: 2}, nil
	})
	pub := &memPublisher{}
	h := NewHandler(tr, pub, logging.Discard())

	err := h.Handle(context.Background(), &TranslateRequest{ID: "r1", Text: "turn off the kitchen lights", ReplyTo: "replies", CorrelationID: "c1"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(pub.sent) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(pub.sent))
	}
	got := pub.sent[0]
	if got.replyTo != "replies" || got.correlationID != "c1" {
		t.Errorf("reply routed to %q/%q", got.replyTo, got.correlationID)
	}
	if got.reply.ID != "r1" || got.reply.Command["action"] != "turn_off" || got.reply.Attempts != 2 || got.reply.Error != nil {
		t.Errorf("unexpected reply %+v", got.reply)
	}
}

func TestHandleTranslationFailureIsReplied(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		kind     string
		attempts int
	}{
		{
			name:     "budget exhausted",
			err:      &apperr.TranslationFailedError{Attempts: 3, Last: &apperr.SchemaError{Problems: []string{"missing required key \"action\""}}},
			kind:     apperr.KindTranslationFailed,
			attempts: 3,
		},
		{name: "invalid input", err: &apperr.InvalidInputError{Reason: "text is empty"}, kind: apperr.KindInvalidInput},
		{name: "auth", err: &apperr.AuthError{Provider: "groq", Status: 401}, kind: apperr.KindAuth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := translateFunc(func(context.Context, string) (*translator.Result, error) { return nil, tt.err })
			pub := &memPublisher{}
			if err := NewHandler(tr, pub, logging.Discard()).Handle(context.Background(), &TranslateRequest{ID: "r2"}); err != nil {
				t.Fatalf("Handle should ack failed translations, got %v", err)
			}
			if len(pub.sent) != 1 {
				t.Fatalf("expected 1 reply, got %d", len(pub.sent))
			}
			reply := pub.sent[0].reply
			if reply.Error == nil || reply.Error.Kind != tt.kind || reply.Error.Message == "" {
				t.Fatalf("unexpected reply error %+v", reply.Error)
			}
			if reply.Attempts != tt.attempts || reply.Command != nil {
				t.Errorf("unexpected reply %+v", reply)
			}
		})
	}
}

func TestHandleRequeueCases(t *testing.T) {
	t.Run("publish failure", func(t *testing.T) {
		tr := translateFunc(func(context.Context, string) (*translator.Result, error) {
			return &translator.Result{Command: models.Command{"action": "x"}, Attempts: 1}, nil
		})
		pub := &memPublisher{err: errors.New("channel closed")}
		err := NewHandler(tr, pub, logging.Discard()).Handle(context.Background(), &TranslateRequest{ID: "r3", Text: "x"})
		if err == nil || errors.Is(err, ErrMalformed) {
			t.Fatalf("expected requeueable error, got %v", err)
		}
	})

	t.Run("shutdown mid translation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		tr := translateFunc(func(ctx context.Context, _ string) (*translator.Result, error) {
			cancel()
			return nil, ctx.Err()
		})
		pub := &memPublisher{}
		err := NewHandler(tr, pub, logging.Discard()).Handle(ctx, &TranslateRequest{ID: "r4", Text: "x"})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if len(pub.sent) != 0 {
			t.Errorf("nothing should be published on shutdown, got %d", len(pub.sent))
		}
	})
}

type ackRecorder struct {
	acked   int
	nacked  int
	requeue bool
}

func (a *ackRecorder) Ack(tag uint64, multiple bool) error { a.acked++; return nil }

func (a *ackRecorder) Nack(tag uint64, multiple, requeue bool) error {
	a.nacked++
	a.requeue = requeue
	return nil
}

func (a *ackRecorder) Reject(tag uint64, requeue bool) error { return a.Nack(tag, false, requeue) }

func TestProcessSettlesDeliveries(t *testing.T) {
	ok := func(context.Context, *TranslateRequest) error { return nil }
	failing := func(context.Context, *TranslateRequest) error { return errors.New("publish failed") }
	malformed := func(context.Context, *TranslateRequest) error { return ErrMalformed }

	tests := []struct {
		name    string
		body    string
		handler HandlerFunc
		acked   bool
		requeue bool
	}{
		{name: "success", body: `{"id":"1","text":"lights on"}`, handler: ok, acked: true},
		{name: "bad json", body: `{"id":`, handler: ok},
		{name: "missing id", body: `{"text":"lights on"}`, handler: ok},
		{name: "handler error requeues", body: `{"id":"1","text":"x"}`, handler: failing, requeue: true},
		{name: "handler malformed drops", body: `{"id":"1","text":"x"}`, handler: malformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &ackRecorder{}
			d := amqp.Delivery{Acknowledger: rec, DeliveryTag: 1, Body: []byte(tt.body)}
			process(context.Background(), d, tt.handler, logging.Discard())

			if tt.acked {
				if rec.acked != 1 || rec.nacked != 0 {
					t.Fatalf("expected ack, got acked=%d nacked=%d", rec.acked, rec.nacked)
				}
				return
			}
			if rec.nacked != 1 || rec.acked != 0 {
				t.Fatalf("expected nack, got acked=%d nacked=%d", rec.acked, rec.nacked)
			}
			if rec.requeue != tt.requeue {
				t.Errorf("requeue = %t, want %t", rec.requeue, tt.requeue)
			}
		})
	}
}

func TestDecodeRequestCopiesProperties(t *testing.T) {
	d := amqp.Delivery{Body: []byte(`{"id":"9","text":"play jazz"}`), ReplyTo: "amq.rabbitmq.reply-to", CorrelationId: "abc"}
	req, err := decodeRequest(d)
	if err != nil {
		t.Fatalf("decodeRequest: %v", err)
	}
	if req.ID != "9" || req.Text != "play jazz" || req.ReplyTo != "amq.rabbitmq.reply-to" || req.CorrelationID != "abc" {
		t.Errorf("unexpected request %+v", req)
	}
}
