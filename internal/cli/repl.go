// Package cli is the interactive terminal chat.
package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/RichardoC/gemchat/internal/chat"
	"github.com/RichardoC/gemchat/internal/models"
)

type ModelLister interface {
	ListModels(ctx context.Context) ([]models.ModelInfo, error)
}

const rule = "--------------------------------------------------------------------------------"

// REPL keeps the conversation in memory only; nothing is written to the store.
type REPL struct {
	chat    *chat.Service
	models  ModelLister
	model   string
	in      io.Reader
	out     io.Writer
	history []models.HistoryEntry

	// editor selects the readline line editor over plain line reads.
	editor bool
}

func NewREPL(chatService *chat.Service, lister ModelLister, model string, in io.Reader, out io.Writer) *REPL {
	return &REPL{
		chat:    chatService,
		models:  lister,
		model:   model,
		in:      in,
		out:     out,
		history: []models.HistoryEntry{},
		editor:  isTerminal(in) && isTerminal(out),
	}
}

// Run reads lines until an exit command, Ctrl-C, end of input, or ctx is
// cancelled. Only the last three are not reported as errors.
func (r *REPL) Run(ctx context.Context) error {
	input, err := r.openInput()
	if err != nil {
		return err
	}
	defer input.Close()

	r.banner()
	for {
		line, err := input.ReadLine(ctx)
		switch {
		case ctx.Err() != nil:
			fmt.Fprintln(r.out)
			return nil
		case errors.Is(err, errInterrupted):
			r.goodbye()
			return nil
		case errors.Is(err, io.EOF):
			fmt.Fprintln(r.out)
			return nil
		case err != nil:
			return errors.Wrap(err, "read input")
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch strings.ToLower(line) {
		case "exit", "quit", "bye":
			r.goodbye()
			return nil
		case "clear":
			r.history = []models.HistoryEntry{}
			fmt.Fprint(r.out, "\nBot: Conversation history cleared!\n\n")
		case "history":
			r.printHistory()
		case "models":
			r.printModels(ctx)
		default:
			if err := r.send(ctx, line); err != nil {
				if ctx.Err() != nil {
					fmt.Fprintln(r.out)
					return nil
				}
				return err
			}
		}
	}
}

func (r *REPL) openInput() (lineReader, error) {
	if r.editor {
		return newEditorReader(r.in, r.out)
	}
	return newStreamReader(r.in, r.out), nil
}

func (r *REPL) goodbye() {
	fmt.Fprint(r.out, "\nBot: Goodbye! Have a great day!\n\n")
}

func (r *REPL) send(ctx context.Context, message string) error {
	res, err := r.chat.Send(ctx, chat.Request{Message: message, History: r.history})
	if err != nil {
		return errors.Wrap(err, "send message")
	}
	r.history = res.History
	fmt.Fprintf(r.out, "\nBot: %s\n\n", res.Response)
	return nil
}

func (r *REPL) banner() {
	fmt.Fprintln(r.out, "=================================")
	fmt.Fprintln(r.out, "  Welcome to AI Chatbot!")
	fmt.Fprintln(r.out, "=================================")
	fmt.Fprintln(r.out, "Type 'exit', 'quit', or 'bye' to end the conversation")
	fmt.Fprintln(r.out, "Type 'clear' to clear conversation history")
	fmt.Fprintln(r.out, "Type 'history' to view conversation history")
	fmt.Fprintln(r.out, "Type 'models' to list available AI models")
	fmt.Fprint(r.out, "=================================\n\n")
}

func (r *REPL) printHistory() {
	fmt.Fprintln(r.out, "\n--- Conversation History ---")
	if len(r.history) == 0 {
		fmt.Fprintln(r.out, "No messages yet.")
	}
	for i, entry := range r.history {
		speaker := "Bot"
		if entry.Role == models.RoleUser {
			speaker = "You"
		}
		fmt.Fprintf(r.out, "%d. %s: %s\n", i+1, speaker, entry.Parts)
	}
	fmt.Fprint(r.out, "---------------------------\n\n")
}

func (r *REPL) printModels(ctx context.Context) {
	fmt.Fprint(r.out, "\nFetching available models...\n\n")

	list, err := r.models.ListModels(ctx)
	if err != nil {
		fmt.Fprintf(r.out, "Error fetching models: %v\n\n", err)
		return
	}
	if len(list) == 0 {
		fmt.Fprintln(r.out, "No models found.")
		return
	}

	fmt.Fprint(r.out, "Available Models:\n\n")
	fmt.Fprintln(r.out, rule)
	for i, m := range list {
		fmt.Fprintf(r.out, "\n%d. Model: %s\n", i+1, m.Name)
		fmt.Fprintf(r.out, "   Display Name: %s\n", orNA(m.DisplayName))
		fmt.Fprintf(r.out, "   Description: %s\n", orNA(m.Description))
		if len(m.SupportedGenerationMethods) > 0 {
			fmt.Fprintf(r.out, "   Supported Methods: %s\n", strings.Join(m.SupportedGenerationMethods, ", "))
		}
		if m.InputTokenLimit > 0 {
			fmt.Fprintf(r.out, "   Input Token Limit: %d\n", m.InputTokenLimit)
		}
		if m.OutputTokenLimit > 0 {
			fmt.Fprintf(r.out, "   Output Token Limit: %d\n", m.OutputTokenLimit)
		}
	}
	fmt.Fprintln(r.out, "\n"+rule)
	fmt.Fprintf(r.out, "\nTotal models found: %d\n", len(list))
	fmt.Fprintf(r.out, "Currently using: %s\n\n", r.model)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
