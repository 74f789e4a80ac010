package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Veraticus/finbot/internal/service"
)

var _ service.Notifier = (*ConsoleNotifier)(nil)

// ConsoleNotifier prints bot messages to a terminal. Images are written to
// ImageDir and their path is printed.
type ConsoleNotifier struct {
	out      io.Writer
	now      func() time.Time
	ImageDir string
	mu       sync.Mutex
}

// NewConsoleNotifier writes messages to out and images under imageDir.
func NewConsoleNotifier(out io.Writer, imageDir string) *ConsoleNotifier {
	return &ConsoleNotifier{out: out, now: time.Now, ImageDir: imageDir}
}

// SendText prints the message.
func (n *ConsoleNotifier) SendText(_ context.Context, _ string, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, err := fmt.Fprintln(n.out, BotStyle.Render(BotIcon+" "+text))
	return err
}

// SendImage saves the image and prints where it went.
func (n *ConsoleNotifier) SendImage(_ context.Context, accountID string, png []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := os.MkdirAll(n.ImageDir, 0o750); err != nil {
		return fmt.Errorf("failed to create image directory: %w", err)
	}

	name := fmt.Sprintf("%s-%s.png", accountID, n.now().Format("20060102-150405"))
	path := filepath.Join(n.ImageDir, name)
	if err := os.WriteFile(path, png, 0o600); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}

	_, err := fmt.Fprintln(n.out, BotStyle.Render(BotIcon+" "+ChartIcon+" chart saved to "+path))
	return err
}
