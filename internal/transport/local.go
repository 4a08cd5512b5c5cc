// Package transport holds chat transport adapters. The conversation core
// only knows the bot.Transport contract; how events arrive from a real chat
// network is wired outside this repository. The Local adapter here exists
// for development runs and exercises the contract end to end.
package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/seliverstovmd/go-storefront-bot/internal/bot"
)

// Local is a console transport: stdin lines become events for one synthetic
// chat, screens print to stdout. Typing the number of a rendered option
// replays that option's action token; anything else is sent as text.
type Local struct {
	chatID      string
	displayName string
	in          io.Reader
	out         io.Writer

	mu      sync.Mutex
	options []bot.Option // options of the last rendered screen
}

// NewLocal builds a console transport reading from in and writing to out.
func NewLocal(chatID, displayName string, in io.Reader, out io.Writer) *Local {
	return &Local{chatID: chatID, displayName: displayName, in: in, out: out}
}

// Events turns stdin lines into events until EOF or cancellation.
func (l *Local) Events(ctx context.Context) <-chan bot.Event {
	ch := make(chan bot.Event)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(l.in)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			ev := bot.Event{ChatID: l.chatID, DisplayName: l.displayName}
			if n, err := strconv.Atoi(line); err == nil {
				if payload, ok := l.optionPayload(n); ok {
					ev.Payload = payload
				} else {
					ev.Text = line
				}
			} else {
				ev.Text = line
			}

			select {
			case <-ctx.Done():
				return
			case ch <- ev:
			}
		}
	}()
	return ch
}

// Render prints the screen caption and its numbered options.
func (l *Local) Render(ctx context.Context, chatID string, s bot.Screen) error {
	l.mu.Lock()
	l.options = s.Options
	l.mu.Unlock()

	fmt.Fprintf(l.out, "\n[%s] %s\n%s\n", chatID, s.Image, s.Caption)
	for i, opt := range s.Options {
		fmt.Fprintf(l.out, "  %d) %s\n", i+1, opt.Label)
	}
	return nil
}

// optionPayload resolves a 1-based option number against the last screen.
func (l *Local) optionPayload(n int) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n < 1 || n > len(l.options) {
		return "", false
	}
	return l.options[n-1].Payload, true
}
