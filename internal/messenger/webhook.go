package messenger

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Veraticus/finbot/internal/api/middleware"
	"github.com/Veraticus/finbot/internal/common"
)

// SignatureHeader carries the HMAC-SHA256 of the request body.
const SignatureHeader = "X-Hub-Signature-256"

const maxBodyBytes = 1 << 20

// ErrBadSignature is returned when a webhook body fails verification.
var ErrBadSignature = errors.New("invalid webhook signature")

// MessageHandler processes one inbound chat message.
type MessageHandler interface {
	HandleMessage(ctx context.Context, accountID, text string) error
}

// WebhookConfig configures the webhook endpoint.
type WebhookConfig struct {
	VerifyToken string
	AppSecret   string // signature checks are skipped when empty
}

// Webhook serves GET verification and POST event delivery.
type Webhook struct {
	handler     MessageHandler
	logger      *slog.Logger
	verifyToken string
	appSecret   string
}

// NewWebhook creates the webhook handler.
func NewWebhook(handler MessageHandler, cfg WebhookConfig, logger *slog.Logger) *Webhook {
	return &Webhook{
		handler:     handler,
		logger:      common.LoggerOrDefault(logger),
		verifyToken: cfg.VerifyToken,
		appSecret:   cfg.AppSecret,
	}
}

// Payload is the body of a webhook POST.
type Payload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups the events of one page.
type Entry struct {
	ID        string  `json:"id"`
	Messaging []Event `json:"messaging"`
}

// Event is one messaging event.
type Event struct {
	Message   *Message `json:"message,omitempty"`
	Sender    Party    `json:"sender"`
	Recipient Party    `json:"recipient"`
	Timestamp int64    `json:"timestamp"`
}

// Party identifies a sender or recipient.
type Party struct {
	ID string `json:"id"`
}

// Message is the message part of an event.
type Message struct {
	MID    string `json:"mid"`
	Text   string `json:"text"`
	IsEcho bool   `json:"is_echo"`
}

func (h *Webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.verify(w, r)
	case http.MethodPost:
		h.receive(w, r)
	default:
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// verify answers the subscription handshake.
func (h *Webhook) verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "" || token == "" {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	if mode != "subscribe" || h.verifyToken == "" ||
		!hmac.Equal([]byte(token), []byte(h.verifyToken)) {
		h.logger.Warn("webhook verification failed", "mode", mode)
		middleware.WriteError(w, http.StatusForbidden, "Verification failed")
		return
	}

	h.logger.Info("webhook verified")
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, challenge)
}

func (h *Webhook) receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if h.appSecret != "" {
		if err := VerifySignature(h.appSecret, r.Header.Get(SignatureHeader), body); err != nil {
			h.logger.Warn("rejected webhook delivery", "error", err)
			middleware.WriteError(w, http.StatusForbidden, "Invalid signature")
			return
		}
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if payload.Object == "page" {
		// A dropped connection must not abort a half-applied message.
		h.dispatch(context.WithoutCancel(r.Context()), payload)
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

// dispatch handles events in delivery order. A failed event is logged and
// the rest still run.
func (h *Webhook) dispatch(ctx context.Context, payload Payload) {
	for _, entry := range payload.Entry {
		for _, event := range entry.Messaging {
			if event.Message == nil || event.Message.IsEcho || event.Sender.ID == "" {
				continue
			}
			text := strings.TrimSpace(event.Message.Text)
			if text == "" {
				continue
			}

			if err := h.handler.HandleMessage(ctx, event.Sender.ID, text); err != nil {
				h.logger.Error("failed to handle message",
					"account_id", event.Sender.ID,
					"mid", event.Message.MID,
					"request_id", middleware.RequestIDFrom(ctx),
					"error", err)
			}
		}
	}
}

// VerifySignature checks a "sha256=<hex>" signature of body under secret.
func VerifySignature(secret, header string, body []byte) error {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return fmt.Errorf("%w: missing sha256 signature", ErrBadSignature)
	}

	got, err := hex.DecodeString(sig)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadSignature, err)
	}

	if !hmac.Equal(got, Sign(secret, body)) {
		return ErrBadSignature
	}
	return nil
}

// Sign computes the HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}
