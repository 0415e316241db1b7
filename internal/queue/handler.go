package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/command-translator/internal/apperr"
	"github.com/example/command-translator/internal/logging"
	"github.com/example/command-translator/internal/translator"
)

type Translator interface {
	Translate(ctx context.Context, text string) (*translator.Result, error)
}

type ReplyPublisher interface {
	PublishReply(ctx context.Context, replyTo, correlationID string, reply *TranslateReply) error
}

// Handler translates one request and publishes the reply.
type Handler struct {
	translator Translator
	publisher  ReplyPublisher
	logger     *logging.Logger
}

func NewHandler(t Translator, p ReplyPublisher, logger *logging.Logger) *Handler {
	return &Handler{translator: t, publisher: p, logger: logger}
}

// Handle replies with either the command or the classified error. Only a
// cancelled context or a failed publish is returned, so the delivery is
// requeued in exactly those cases.
func (h *Handler) Handle(ctx context.Context, req *TranslateRequest) error {
	reply := &TranslateReply{ID: req.ID}

	res, err := h.translator.Translate(ctx, req.Text)
	switch {
	case err == nil:
		reply.Command = res.Command
		reply.Attempts = res.Attempts
		h.logger.Info("Request %s translated in %d attempt(s)", req.ID, res.Attempts)
	case ctx.Err() != nil:
		return fmt.Errorf("request %s interrupted: %w", req.ID, err)
	default:
		kind := apperr.Kind(err)
		reply.Error = &ReplyError{Kind: kind, Message: err.Error()}
		var failed *apperr.TranslationFailedError
		if errors.As(err, &failed) {
			reply.Attempts = failed.Attempts
		}
		h.logger.Warn("Request %s failed (%s): %v", req.ID, kind, err)
	}

	if err := h.publisher.PublishReply(ctx, req.ReplyTo, req.CorrelationID, reply); err != nil {
		return fmt.Errorf("publish reply for %s: %w", req.ID, err)
	}
	return nil
}
