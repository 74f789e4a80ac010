// Package messenger talks to the Messenger Platform: it sends replies through
// the Graph API Send API and receives events on the page webhook.
package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/Veraticus/finbot/internal/common"
	"github.com/Veraticus/finbot/internal/service"
)

var _ service.Notifier = (*Client)(nil)

const (
	defaultBaseURL    = "https://graph.facebook.com"
	defaultAPIVersion = "v18.0"
)

// ClientConfig configures the Send API client.
type ClientConfig struct {
	AccessToken string
	BaseURL     string
	APIVersion  string
	Timeout     time.Duration
}

// Client delivers outbound messages. Sends are attempted once.
type Client struct {
	httpClient  *http.Client
	logger      *slog.Logger
	endpoint    string
	accessToken string
}

// NewClient creates a Send API client.
func NewClient(cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("%w: page access token is required", common.ErrMissingConfig)
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	version := cfg.APIVersion
	if version == "" {
		version = defaultAPIVersion
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		logger:      common.LoggerOrDefault(logger),
		endpoint:    baseURL + "/" + version + "/me/messages",
		accessToken: cfg.AccessToken,
	}, nil
}

type recipient struct {
	ID string `json:"id"`
}

type textMessage struct {
	Text string `json:"text"`
}

type sendRequest struct {
	Recipient recipient   `json:"recipient"`
	Message   textMessage `json:"message"`
}

// imageAttachment is the message field of an uploaded image send.
const imageAttachment = `{"attachment":{"type":"image","payload":{}}}`

// SendText sends a text message to the user.
func (c *Client) SendText(ctx context.Context, accountID, text string) error {
	body, err := json.Marshal(sendRequest{
		Recipient: recipient{ID: accountID},
		Message:   textMessage{Text: text},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return c.post(ctx, "application/json", bytes.NewReader(body))
}

// SendImage uploads png and sends it to the user as an image attachment.
func (c *Client) SendImage(ctx context.Context, accountID string, png []byte) error {
	rcpt, err := json.Marshal(recipient{ID: accountID})
	if err != nil {
		return fmt.Errorf("failed to marshal recipient: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("recipient", string(rcpt)); err != nil {
		return fmt.Errorf("failed to write recipient: %w", err)
	}
	if err := mw.WriteField("message", imageAttachment); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="filedata"; filename="chart.png"`)
	header.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(png); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to finish multipart body: %w", err)
	}

	return c.post(ctx, mw.FormDataContentType(), &buf)
}

func (c *Client) post(ctx context.Context, contentType string, body io.Reader) error {
	endpoint := c.endpoint + "?access_token=" + url.QueryEscape(c.accessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrDeliveryFailed, redact(err, c.accessToken))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: send API status %d: %s", common.ErrDeliveryFailed, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	c.logger.Debug("send api request complete", "status", resp.StatusCode)
	return nil
}

// redact keeps the page token out of logged transport errors, which include
// the request URL.
func redact(err error, token string) error {
	if token == "" {
		return err
	}
	msg := err.Error()
	redacted := strings.ReplaceAll(strings.ReplaceAll(msg, url.QueryEscape(token), "REDACTED"), token, "REDACTED")
	if redacted == msg {
		return err
	}
	return errors.New(redacted)
}
