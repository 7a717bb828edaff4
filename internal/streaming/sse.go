// Package streaming implements the gateway's outbound SSE event protocol:
// a route event, zero or more thinking/delta events, and exactly one
// terminal event (done or error), followed by the `[DONE]` sentinel.
package streaming

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/localai/gateway/internal/gatewayerr"
	"github.com/localai/gateway/internal/models"
)

// EventType is the closed set of SSE frame kinds the gateway emits.
type EventType string

const (
	EventRoute    EventType = "route"
	EventThinking EventType = "thinking"
	EventDelta    EventType = "delta"
	EventError    EventType = "error"
	EventDone     EventType = "done"
)

type routeEvent struct {
	Type    EventType `json:"type"`
	Backend string    `json:"backend"`
	Model   string    `json:"model"`
	Reason  string    `json:"reason"`
}

type thinkingEvent struct {
	Type     EventType `json:"type"`
	Thinking string    `json:"thinking"`
}

type deltaEvent struct {
	Type  EventType `json:"type"`
	Delta string    `json:"delta"`
}

type errorEvent struct {
	Type  EventType   `json:"type"`
	Error errorBody   `json:"error"`
}

type errorBody struct {
	Kind    gatewayerr.Kind `json:"kind"`
	Message string          `json:"message"`
}

type doneEvent struct {
	Type EventType `json:"type"`
}

// Writer emits the fixed event protocol onto an underlying stream,
// flushing after every frame. It is not safe for concurrent use.
type Writer struct {
	w       io.Writer
	flush   func() error
	doneSet bool
}

// NewWriter wraps w. flush is called after every frame; pass nil if the
// underlying writer has no explicit flush step.
func NewWriter(w io.Writer, flush func() error) *Writer {
	return &Writer{w: w, flush: flush}
}

func (s *Writer) writeFrame(v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	if s.flush != nil {
		return s.flush()
	}
	return nil
}

// Route emits the mandatory first event naming the routing decision.
func (s *Writer) Route(backend, model, reason string) error {
	return s.writeFrame(routeEvent{Type: EventRoute, Backend: backend, Model: model, Reason: reason})
}

// Thinking emits a chain-of-thought chunk. Only call this for backends the
// registry marks as emitting a thinking channel; never synthesize it.
func (s *Writer) Thinking(text string) error {
	return s.writeFrame(thinkingEvent{Type: EventThinking, Thinking: text})
}

// Delta emits an incremental assistant-content chunk. Empty deltas are
// suppressed by the caller before reaching here.
func (s *Writer) Delta(text string) error {
	return s.writeFrame(deltaEvent{Type: EventDelta, Delta: text})
}

// Error emits the terminal error event followed by the [DONE] sentinel.
// Error is itself terminal: a later Done is a no-op.
func (s *Writer) Error(err *gatewayerr.Error) error {
	if writeErr := s.writeFrame(errorEvent{Type: EventError, Error: errorBody{Kind: err.Kind, Message: err.Message}}); writeErr != nil {
		return writeErr
	}
	s.doneSet = true
	return s.sentinel()
}

// Done emits the terminal done event followed by the [DONE] sentinel.
// Idempotent: a second call is a no-op so callers don't need to track
// whether a prior error already closed the stream.
func (s *Writer) Done() error {
	if s.doneSet {
		return nil
	}
	s.doneSet = true
	if err := s.writeFrame(doneEvent{Type: EventDone}); err != nil {
		return err
	}
	return s.sentinel()
}

func (s *Writer) sentinel() error {
	if _, err := fmt.Fprint(s.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	if s.flush != nil {
		return s.flush()
	}
	return nil
}

// TranslateChunk extracts the (delta, thinking, done) a chunk carries,
// suppressing empty deltas per the OpenAI-shaped and line-delimited-JSON
// translation rules.
func TranslateChunk(chunk models.ChatChunk) (delta string, thinking string, done bool) {
	for _, choice := range chunk.Choices {
		delta += choice.Delta.Content
	}
	return delta, chunk.Thinking, chunk.Done
}
