// Package retry drives the invoke and validate loop for one translation,
// feeding validation errors back to the model and backing off on transient
// backend failures.
package retry

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/example/command-translator/internal/apperr"
	"github.com/example/command-translator/internal/logging"
	"github.com/example/command-translator/internal/models"
	"github.com/example/command-translator/internal/providers/llm"
	"github.com/example/command-translator/internal/schema"
	"github.com/example/command-translator/internal/validator"
)

// Policy bounds a single Run. MaxAttempts counts model responses that were
// validated; MaxTransportAttempts counts transient backend failures. The two
// budgets are independent. Zero fields take the DefaultPolicy value; a
// negative BaseBackoff retries transport failures without waiting.
type Policy struct {
	MaxAttempts          int
	MaxTransportAttempts int
	BaseBackoff          time.Duration
	MaxBackoff           time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:          3,
		MaxTransportAttempts: 3,
		BaseBackoff:          500 * time.Millisecond,
		MaxBackoff:           8 * time.Second,
	}
}

func (p Policy) normalized() Policy {
	def := DefaultPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.MaxTransportAttempts < 1 {
		p.MaxTransportAttempts = def.MaxTransportAttempts
	}
	switch {
	case p.BaseBackoff == 0:
		p.BaseBackoff = def.BaseBackoff
	case p.BaseBackoff < 0:
		p.BaseBackoff = 0
	}
	if p.MaxBackoff == 0 {
		p.MaxBackoff = def.MaxBackoff
	}
	if p.MaxBackoff < p.BaseBackoff {
		p.MaxBackoff = p.BaseBackoff
	}
	return p
}

// Backoff returns the wait before transport retry n (1-based).
func (p Policy) Backoff(n int) time.Duration {
	p = p.normalized()
	if n < 1 || p.BaseBackoff <= 0 {
		return 0
	}
	d := p.BaseBackoff
	for i := 1; i < n; i++ {
		d *= 2
		if d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// Outcome describes a successful Run.
type Outcome struct {
	Command           models.Command
	Attempts          []models.Attempt
	TransportFailures int
	Usage             models.Usage
	Model             string
}

// Controller is safe for concurrent use as long as its fields are not
// modified after the first Run.
type Controller struct {
	Client llm.Client
	Policy Policy
	Logger *logging.Logger
	// Sleep waits between transport retries; nil means a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// Observer, when set, sees every model invocation in order.
	Observer func(models.Attempt)
}

// Run invokes the model with base until the output validates against sch or
// a budget runs out. Fatal errors (credentials, non-retryable requests,
// cancellation) are returned as they are; an exhausted budget yields a
// *apperr.TranslationFailedError wrapping the last cause.
func (c *Controller) Run(ctx context.Context, base models.Prompt, sch *schema.Schema) (*Outcome, error) {
	policy := c.Policy.normalized()
	log := c.Logger
	if log == nil {
		log = logging.Discard()
	}

	prompt := base
	out := &Outcome{}
	attempt := 1
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw, err := c.Client.Invoke(ctx, prompt)
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return nil, cerr
			}
			c.observe(models.Attempt{Number: attempt, Err: err})
			if !apperr.Retryable(err) {
				log.Error("attempt %d: %s failed: %v", attempt, c.Client.Name(), err)
				return nil, err
			}
			out.TransportFailures++
			if out.TransportFailures >= policy.MaxTransportAttempts {
				log.Error("giving up after %d transport failure(s): %v", out.TransportFailures, err)
				return nil, &apperr.TranslationFailedError{
					Attempts:          len(out.Attempts),
					TransportFailures: out.TransportFailures,
					Last:              err,
				}
			}
			wait := policy.Backoff(out.TransportFailures)
			var rate *apperr.RateLimitError
			if errors.As(err, &rate) && rate.RetryAfter > wait {
				wait = rate.RetryAfter
			}
			log.Warn("attempt %d: %v; retrying in %s", attempt, err, wait)
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		out.Usage = out.Usage.Add(raw.Usage)
		out.Model = raw.Model
		cmd, verr := validator.Validate(raw.Text, sch)
		rec := models.Attempt{Number: attempt, Raw: raw.Text, Err: verr}
		out.Attempts = append(out.Attempts, rec)
		c.observe(rec)
		if verr == nil {
			out.Command = cmd
			log.Debug("attempt %d: valid %s command", attempt, sch.Name)
			return out, nil
		}

		if attempt >= policy.MaxAttempts {
			log.Error("giving up after %d attempt(s): %v", attempt, verr)
			return nil, &apperr.TranslationFailedError{
				Attempts:          attempt,
				TransportFailures: out.TransportFailures,
				Last:              verr,
			}
		}
		log.Warn("attempt %d: %v; asking the model to correct it", attempt, verr)
		prompt = prompt.WithCorrection(raw.Text, Correction(verr, sch))
		attempt++
	}
}

func (c *Controller) observe(a models.Attempt) {
	if c.Observer != nil {
		c.Observer(a)
	}
}

func (c *Controller) sleep(ctx context.Context, d time.Duration) error {
	if c.Sleep != nil {
		return c.Sleep(ctx, d)
	}
	return sleepCtx(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Correction is the user turn appended after a failed validation. It quotes
// the error so the model can see what to fix.
func Correction(err error, sch *schema.Schema) string {
	var b strings.Builder
	b.WriteString("Your previous response ")
	var perr *apperr.ParseError
	if errors.As(err, &perr) {
		b.WriteString("was ")
	}
	b.WriteString(err.Error())
	b.WriteString(". Respond again with only the JSON object")
	if sch != nil {
		if req := sch.Required(); len(req) > 0 {
			b.WriteString(", including the keys ")
			b.WriteString(strings.Join(req, ", "))
		}
	}
	b.WriteString(".")
	return b.String()
}
