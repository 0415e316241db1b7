package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/example/command-translator/internal/apperr"
	"github.com/example/command-translator/internal/logging"
	"github.com/example/command-translator/internal/models"
	"github.com/example/command-translator/internal/translator"
)

const maxBodyBytes = 64 << 10

// statusClientClosedRequest is reported when the caller went away mid-request.
const statusClientClosedRequest = 499

type Translator interface {
	Translate(ctx context.Context, text string) (*translator.Result, error)
}

type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]*models.HistoryEntry, error)
}

type Server struct {
	translator Translator
	history    HistoryReader
	logger     *logging.Logger
}

// NewServer builds the HTTP surface. history may be nil, which disables
// GET /history.
func NewServer(t Translator, history HistoryReader, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{translator: t, history: history, logger: logger}
}

type translateRequest struct {
	Text string `json:"text"`
}

type translateResponse struct {
	Command           models.Command `json:"command"`
	Attempts          int            `json:"attempts"`
	TransportFailures int            `json:"transport_failures"`
	Usage             models.Usage   `json:"usage"`
	Model             string         `json:"model,omitempty"`
	TemplateVersion   string         `json:"template_version"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/translate", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req translateRequest
		dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, apperr.KindInvalidInput, "request body must be {\"text\": \"...\"}: "+err.Error())
			return
		}

		res, err := s.translator.Translate(r.Context(), req.Text)
		if err != nil {
			status := StatusFor(err)
			if status >= 500 {
				s.logger.Error("translate failed: %v", err)
			} else {
				s.logger.Warn("translate rejected: %v", err)
			}
			var rate *apperr.RateLimitError
			if errors.As(err, &rate) && rate.RetryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(rate.RetryAfter.Seconds()))))
			}
			respondError(w, status, apperr.Kind(err), err.Error())
			return
		}
		respondJSON(w, http.StatusOK, translateResponse{
			Command:           res.Command,
			Attempts:          res.Attempts,
			TransportFailures: res.TransportFailures,
			Usage:             res.Usage,
			Model:             res.Model,
			TemplateVersion:   res.TemplateVersion,
		})
	})

	mux.HandleFunc("/history", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if s.history == nil {
			respondError(w, http.StatusNotFound, "not_found", "history is disabled (set HISTORY_DRIVER and HISTORY_DSN)")
			return
		}
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				respondError(w, http.StatusBadRequest, apperr.KindInvalidInput, "limit must be a positive integer")
				return
			}
			limit = n
		}
		entries, err := s.history.Recent(r.Context(), limit)
		if err != nil {
			s.logger.Error("read history: %v", err)
			respondError(w, http.StatusInternalServerError, apperr.KindInternal, "failed to read history")
			return
		}
		if entries == nil {
			entries = []*models.HistoryEntry{}
		}
		respondJSON(w, http.StatusOK, entries)
	})
}

// StatusFor maps a translation error to the HTTP status returned to callers.
// An exhausted transport budget reports the backend failure that ended it;
// an exhausted validation budget is 422.
func StatusFor(err error) int {
	var failed *apperr.TranslationFailedError
	if errors.As(err, &failed) && failed.Last != nil && !apperr.IsValidation(failed.Last) {
		switch apperr.Kind(failed.Last) {
		case apperr.KindRateLimit:
			return http.StatusTooManyRequests
		case apperr.KindTimeout:
			return http.StatusGatewayTimeout
		case apperr.KindTransport:
			return http.StatusBadGateway
		}
	}
	switch apperr.Kind(err) {
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindAuth, apperr.KindTransport:
		return http.StatusBadGateway
	case apperr.KindRateLimit:
		return http.StatusTooManyRequests
	case apperr.KindTranslationFailed, apperr.KindParse, apperr.KindSchema:
		return http.StatusUnprocessableEntity
	case apperr.KindTimeout:
		return http.StatusGatewayTimeout
	case apperr.KindCanceled:
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// CORS allows browser clients during local development.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

func respondError(w http.ResponseWriter, status int, kind, msg string) {
	respondJSON(w, status, errorResponse{Error: kind, Message: msg})
}
