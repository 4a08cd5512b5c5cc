// Package bot – Dispatcher
//
// The dispatcher enforces the concurrency model of the conversation core:
// events for one chat identity are processed to completion, in arrival
// order, before the next one for that identity starts; different chats run
// concurrently on their own workers. It owns no conversation logic — it
// routes events into per-chat queues, calls the Controller, and hands the
// resulting screen to the transport.
package bot

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Transport delivers inbound events and renders outgoing screens. The
// concrete adapter (chat network, console, test fake) lives outside the core.
type Transport interface {
	// Events returns the inbound event stream. The channel closes when the
	// transport shuts down.
	Events(ctx context.Context) <-chan Event

	// Render shows a screen to the given chat.
	Render(ctx context.Context, chatID string, s Screen) error
}

// chatQueueSize bounds how many events one chat may have waiting. A slow
// backend call backs up only the chat that caused it.
const chatQueueSize = 16

// Dispatcher fans events out to one ordered worker per chat identity.
type Dispatcher struct {
	controller *Controller
	transport  Transport
	log        zerolog.Logger
}

// NewDispatcher wires the dispatcher to its controller and transport.
func NewDispatcher(controller *Controller, transport Transport) *Dispatcher {
	return &Dispatcher{
		controller: controller,
		transport:  transport,
		log:        log.With().Str("component", "dispatcher").Logger(),
	}
}

// Run consumes the transport's event stream until the context is canceled or
// the stream closes. It returns the context error on cancellation and nil on
// a clean stream close, after all per-chat workers have drained.
func (d *Dispatcher) Run(ctx context.Context) error {
	events := d.transport.Events(ctx)

	queues := make(map[string]chan Event)
	var wg sync.WaitGroup
	defer func() {
		for _, q := range queues {
			close(q)
		}
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.ChatID == "" {
				d.log.Warn().Msg("event without chat id dropped")
				continue
			}

			q, exists := queues[ev.ChatID]
			if !exists {
				q = make(chan Event, chatQueueSize)
				queues[ev.ChatID] = q
				activeChats.Inc()
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer activeChats.Dec()
					d.worker(ctx, q)
				}()
			}

			select {
			case q <- ev:
			default:
				droppedEvents.Inc()
				d.log.Warn().Str("chat_id", ev.ChatID).Msg("chat queue full, event dropped")
			}
		}
	}
}

// worker processes one chat's events strictly in order.
func (d *Dispatcher) worker(ctx context.Context, q <-chan Event) {
	for ev := range q {
		eventID := uuid.NewString()
		lg := d.log.With().
			Str("event_id", eventID).
			Str("chat_id", ev.ChatID).
			Logger()

		screen := d.controller.Handle(ctx, ev)
		if err := d.transport.Render(ctx, ev.ChatID, screen); err != nil {
			lg.Error().Err(err).Msg("render failed")
			continue
		}
		lg.Debug().Int("options", len(screen.Options)).Msg("event processed")
	}
}
