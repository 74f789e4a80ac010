package cli

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineReader_ReadLine(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "single line", input: "KFC $30\n", want: []string{"KFC $30"}},
		{name: "trims whitespace", input: "  Limit 500  \n", want: []string{"Limit 500"}},
		{name: "empty line", input: "\n", want: []string{""}},
		{name: "final line without newline", input: "a\nb", want: []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewLineReader(strings.NewReader(tt.input))
			for _, want := range tt.want {
				got, err := r.ReadLine(context.Background())
				require.NoError(t, err)
				assert.Equal(t, want, got)
			}
			_, err := r.ReadLine(context.Background())
			assert.ErrorIs(t, err, io.EOF)
		})
	}
}

func TestLineReader_Cancelled(t *testing.T) {
	pr, pw := io.Pipe()
	defer func() { _ = pw.Close() }()

	r := NewLineReader(pr)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.ReadLine(ctx)
	assert.ErrorIs(t, err, ErrInputCancelled)
}
