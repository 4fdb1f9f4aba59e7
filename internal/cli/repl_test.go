package cli

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/RichardoC/gemchat/internal/chat"
	"github.com/RichardoC/gemchat/internal/db"
	"github.com/RichardoC/gemchat/internal/models"
)

// echoGenerator repeats the latest turn.
type echoGenerator struct{}

func (echoGenerator) Generate(ctx context.Context, history []models.HistoryEntry) (string, error) {
	return "echo: " + history[len(history)-1].Parts, nil
}

type stubLister struct {
	models []models.ModelInfo
	err    error
}

func (l stubLister) ListModels(ctx context.Context) ([]models.ModelInfo, error) {
	return l.models, l.err
}

func newTestREPL(t *testing.T, lister ModelLister, in io.Reader) (*REPL, *bytes.Buffer) {
	t.Helper()
	svc := chat.NewService(db.NewMemoryStore(), echoGenerator{}, zaptest.NewLogger(t))
	var out bytes.Buffer
	return NewREPL(svc, lister, "gemini-2.5-flash", in, &out), &out
}

func runREPL(t *testing.T, lister ModelLister, input string) (*REPL, string) {
	t.Helper()
	r, out := newTestREPL(t, lister, strings.NewReader(input))
	require.NoError(t, r.Run(context.Background()))
	return r, out.String()
}

func runEditorREPL(t *testing.T, input string) (*REPL, string) {
	t.Helper()
	r, out := newTestREPL(t, stubLister{}, strings.NewReader(input))
	r.editor = true
	require.NoError(t, r.Run(context.Background()))
	return r, out.String()
}

func TestREPLChatAndHistory(t *testing.T) {
	r, out := runREPL(t, stubLister{}, "hello\n\nhistory\nbye\n")

	assert.Contains(t, out, "Bot: echo: hello")
	assert.Contains(t, out, "1. You: hello")
	assert.Contains(t, out, "2. Bot: echo: hello")
	assert.Contains(t, out, "Goodbye!")
	assert.Len(t, r.history, 2)
}

func TestREPLClear(t *testing.T) {
	r, out := runREPL(t, stubLister{}, "one\nCLEAR\nhistory\nquit\n")

	assert.Contains(t, out, "Conversation history cleared!")
	assert.Contains(t, out, "No messages yet.")
	assert.Empty(t, r.history)
}

func TestREPLStopsAtEndOfInput(t *testing.T) {
	r, out := runREPL(t, stubLister{}, "one\ntwo")

	assert.Contains(t, out, "Bot: echo: two")
	assert.NotContains(t, out, "Goodbye!")
	assert.Len(t, r.history, 4)
}

func TestREPLModels(t *testing.T) {
	lister := stubLister{models: []models.ModelInfo{{
		Name:                       "models/gemini-2.5-flash",
		DisplayName:                "Gemini 2.5 Flash",
		SupportedGenerationMethods: []string{"generateContent", "countTokens"},
		InputTokenLimit:            1048576,
	}}}
	_, out := runREPL(t, lister, "models\nexit\n")

	assert.Contains(t, out, "1. Model: models/gemini-2.5-flash")
	assert.Contains(t, out, "Description: N/A")
	assert.Contains(t, out, "Supported Methods: generateContent, countTokens")
	assert.Contains(t, out, "Input Token Limit: 1048576")
	assert.NotContains(t, out, "Output Token Limit")
	assert.Contains(t, out, "Total models found: 1")
	assert.Contains(t, out, "Currently using: gemini-2.5-flash")
}

func TestREPLModelsFailure(t *testing.T) {
	_, out := runREPL(t, stubLister{err: errors.New("403 forbidden")}, "models\nexit\n")

	assert.Contains(t, out, "Error fetching models: 403 forbidden")
}

func TestREPLAcceptsLongLines(t *testing.T) {
	long := strings.Repeat("a", 100<<10)
	r, out := runREPL(t, stubLister{}, long+"\nbye\n")

	assert.Contains(t, out, "Bot: echo: "+long)
	assert.Contains(t, out, "Goodbye!")
	require.Len(t, r.history, 2)
	assert.Equal(t, long, r.history[0].Parts)
}

func TestREPLStopsWhenContextCancelled(t *testing.T) {
	for _, editor := range []bool{false, true} {
		name := "stream"
		if editor {
			name = "editor"
		}
		t.Run(name, func(t *testing.T) {
			pr, pw := io.Pipe()
			t.Cleanup(func() { pw.Close() })

			r, _ := newTestREPL(t, stubLister{}, pr)
			r.editor = editor

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			done := make(chan error, 1)
			go func() { done <- r.Run(ctx) }()

			// nothing is ever written, so Run is blocked reading
			time.AfterFunc(20*time.Millisecond, cancel)

			select {
			case err := <-done:
				assert.NoError(t, err)
			case <-time.After(5 * time.Second):
				t.Fatal("Run did not return after cancellation")
			}
		})
	}
}

func TestREPLEditorChat(t *testing.T) {
	r, out := runEditorREPL(t, "hello\nhistory\nbye\n")

	assert.Contains(t, out, "Bot: echo: hello")
	assert.Contains(t, out, "2. Bot: echo: hello")
	assert.Contains(t, out, "Goodbye!")
	assert.Len(t, r.history, 2)
}

func TestREPLEditorInterrupt(t *testing.T) {
	r, out := runEditorREPL(t, "hello\nhalf typed\x03never sent\n")

	assert.Contains(t, out, "Goodbye!")
	assert.NotContains(t, out, "never sent")
	assert.Len(t, r.history, 2)
}

func TestREPLEditorStopsAtEndOfInput(t *testing.T) {
	r, out := runEditorREPL(t, "one\ntwo")

	assert.Contains(t, out, "Bot: echo: two")
	assert.NotContains(t, out, "Goodbye!")
	assert.Len(t, r.history, 4)
}
