package messenger

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	accountID string
	text      string
}

type recordingHandler struct {
	err error
	got []received
	mu  sync.Mutex
}

func (h *recordingHandler) HandleMessage(_ context.Context, accountID, text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.got = append(h.got, received{accountID: accountID, text: text})
	return h.err
}

func TestWebhook_Verify(t *testing.T) {
	hook := NewWebhook(&recordingHandler{}, WebhookConfig{VerifyToken: "verify-me"}, nil)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "valid handshake",
			query:      "hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=1158201444",
			wantStatus: http.StatusOK,
			wantBody:   "1158201444",
		},
		{
			name:       "wrong token",
			query:      "hub.mode=subscribe&hub.verify_token=nope&hub.challenge=1",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "wrong mode",
			query:      "hub.mode=unsubscribe&hub.verify_token=verify-me&hub.challenge=1",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "no handshake parameters",
			query:      "",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			hook.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook?"+tt.query, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, strings.TrimSpace(rec.Body.String()))
			}
		})
	}
}

const pagePayload = `{
  "object": "page",
  "entry": [
    {"id": "page-1", "messaging": [
      {"sender": {"id": "psid-1"}, "recipient": {"id": "page-1"}, "message": {"mid": "m1", "text": "KFC $30"}},
      {"sender": {"id": "psid-1"}, "recipient": {"id": "page-1"}, "delivery": {"mids": ["m0"]}},
      {"sender": {"id": "page-1"}, "recipient": {"id": "psid-1"}, "message": {"mid": "m2", "text": "echo", "is_echo": true}},
      {"sender": {"id": "psid-2"}, "recipient": {"id": "page-1"}, "message": {"mid": "m3", "attachments": []}}
    ]},
    {"id": "page-1", "messaging": [
      {"sender": {"id": "psid-2"}, "recipient": {"id": "page-1"}, "message": {"mid": "m4", "text": " Limit 500 "}}
    ]}
  ]
}`

func post(hook http.Handler, body string, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	hook.ServeHTTP(rec, req)
	return rec
}

func TestWebhook_Receive(t *testing.T) {
	t.Run("dispatches text messages in order", func(t *testing.T) {
		handler := &recordingHandler{}
		hook := NewWebhook(handler, WebhookConfig{}, nil)

		rec := post(hook, pagePayload, "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []received{
			{accountID: "psid-1", text: "KFC $30"},
			{accountID: "psid-2", text: "Limit 500"},
		}, handler.got)
	})

	t.Run("ignores non-page objects", func(t *testing.T) {
		handler := &recordingHandler{}
		hook := NewWebhook(handler, WebhookConfig{}, nil)

		rec := post(hook, `{"object":"instagram","entry":[{"messaging":[{"sender":{"id":"x"},"message":{"text":"hi"}}]}]}`, "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, handler.got)
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		hook := NewWebhook(&recordingHandler{}, WebhookConfig{}, nil)
		rec := post(hook, `{not json`, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("handler errors do not stop delivery", func(t *testing.T) {
		handler := &recordingHandler{err: errors.New("store unavailable")}
		hook := NewWebhook(handler, WebhookConfig{}, nil)

		rec := post(hook, pagePayload, "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, handler.got, 2)
	})

	t.Run("method not allowed", func(t *testing.T) {
		hook := NewWebhook(&recordingHandler{}, WebhookConfig{}, nil)
		rec := httptest.NewRecorder()
		hook.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/webhook", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestWebhook_Signature(t *testing.T) {
	const secret = "app-secret"
	valid := "sha256=" + hex.EncodeToString(Sign(secret, []byte(pagePayload)))

	tests := []struct {
		name       string
		signature  string
		wantStatus int
		wantEvents int
	}{
		{name: "valid", signature: valid, wantStatus: http.StatusOK, wantEvents: 2},
		{name: "missing", signature: "", wantStatus: http.StatusForbidden},
		{name: "wrong", signature: "sha256=" + strings.Repeat("00", 32), wantStatus: http.StatusForbidden},
		{name: "not hex", signature: "sha256=zz", wantStatus: http.StatusForbidden},
		{name: "sha1 only", signature: "sha1=abc", wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := &recordingHandler{}
			hook := NewWebhook(handler, WebhookConfig{AppSecret: secret}, nil)

			rec := post(hook, pagePayload, tt.signature)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Len(t, handler.got, tt.wantEvents)
		})
	}
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"object":"page"}`)
	sig := "sha256=" + hex.EncodeToString(Sign("s", body))

	require.NoError(t, VerifySignature("s", sig, body))
	require.ErrorIs(t, VerifySignature("other", sig, body), ErrBadSignature)
}
