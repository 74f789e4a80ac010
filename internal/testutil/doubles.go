package testutil

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Veraticus/finbot/internal/model"
	"github.com/Veraticus/finbot/internal/service"
)

var (
	_ service.Notifier         = (*RecordingNotifier)(nil)
	_ service.IntentClassifier = (*ScriptedClassifier)(nil)
)

// SentMessage is one outbound message captured by RecordingNotifier.
type SentMessage struct {
	AccountID string
	Text      string
	Image     []byte
}

// RecordingNotifier captures outbound messages in memory.
type RecordingNotifier struct {
	Err      error // returned from every send when set
	messages []SentMessage
	mu       sync.Mutex
}

// SendText records a text message.
func (n *RecordingNotifier) SendText(_ context.Context, accountID, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, SentMessage{AccountID: accountID, Text: text})
	return n.Err
}

// SendImage records an image message.
func (n *RecordingNotifier) SendImage(_ context.Context, accountID string, png []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, SentMessage{AccountID: accountID, Image: png})
	return n.Err
}

// Messages returns a copy of everything sent so far.
func (n *RecordingNotifier) Messages() []SentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]SentMessage, len(n.messages))
	copy(out, n.messages)
	return out
}

// Texts returns the text bodies sent so far, in order.
func (n *RecordingNotifier) Texts() []string {
	var texts []string
	for _, m := range n.Messages() {
		if m.Image == nil {
			texts = append(texts, m.Text)
		}
	}
	return texts
}

// Images returns the images sent so far, in order.
func (n *RecordingNotifier) Images() [][]byte {
	var images [][]byte
	for _, m := range n.Messages() {
		if m.Image != nil {
			images = append(images, m.Image)
		}
	}
	return images
}

// TextsContaining returns the sent texts that contain substr.
func (n *RecordingNotifier) TextsContaining(substr string) []string {
	var matched []string
	for _, text := range n.Texts() {
		if strings.Contains(text, substr) {
			matched = append(matched, text)
		}
	}
	return matched
}

// Reset forgets all recorded messages.
func (n *RecordingNotifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = nil
}

// ScriptedClassifier answers Classify from a fixed table keyed by message text.
// Unknown texts are Unrecognized.
type ScriptedClassifier struct {
	Intents map[string]model.Intent
	calls   []string
	mu      sync.Mutex
}

// Classify looks up text in the script.
func (c *ScriptedClassifier) Classify(_ context.Context, text string, _ time.Time) model.Intent {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, text)
	if intent, ok := c.Intents[text]; ok {
		return intent
	}
	return model.Unrecognized()
}

// Calls returns the texts that were classified.
func (c *ScriptedClassifier) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	copy(out, c.calls)
	return out
}

// FixedClock returns a clock that always reports t.
func FixedClock(t time.Time) service.Clock {
	return func() time.Time { return t }
}

// Clock is a settable clock for tests that advance time.
type Clock struct {
	now time.Time
	mu  sync.Mutex
}

// NewClock creates a clock starting at t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current pinned time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
