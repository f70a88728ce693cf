// Package chat implements the client-side streaming chat session:
// per-session message history, one in-flight request at a time, and
// incremental application of decoded stream events.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nexushq/nexus/internal/ai"
	"github.com/nexushq/nexus/internal/domain"
	"github.com/nexushq/nexus/internal/stream"
)

var (
	// ErrBusy is returned when a send overlaps an unfinished one. The
	// previous request keeps its cancellation handle; queue or retry.
	ErrBusy = errors.New("chat: request already in flight")

	ErrRateLimited    = errors.New("chat: rate limited")
	ErrQuotaExhausted = errors.New("chat: ai credits exhausted")
	ErrUnavailable    = errors.New("chat: ai service unavailable")
)

// Notifier receives user-facing failure signals. Cancellation is not a
// failure and never reaches the Notifier.
type Notifier interface {
	RateLimited()
	QuotaExhausted()
	Failure(err error)
}

type noopNotifier struct{}

func (noopNotifier) RateLimited()      {}
func (noopNotifier) QuotaExhausted()   {}
func (noopNotifier) Failure(err error) {}

type Options struct {
	Endpoint string
	Token    string
	Action   string
	Context  *ai.Context
	HTTP     *http.Client
	Notifier Notifier
}

// Session owns an ordered message history and at most one in-flight
// streaming request. The cancellation handle is a field of the session,
// not package state, so independent sessions never collide.
type Session struct {
	mu       sync.Mutex
	opts     Options
	log      zerolog.Logger
	messages []domain.ChatMessage
	loading  bool
	cancel   context.CancelFunc
	gen      uint64
	nextID   int64
}

func NewSession(opts Options, log zerolog.Logger) *Session {
	if opts.HTTP == nil {
		opts.HTTP = &http.Client{}
	}
	if opts.Notifier == nil {
		opts.Notifier = noopNotifier{}
	}
	return &Session{opts: opts, log: log}
}

// Messages returns a snapshot of the current history.
func (s *Session) Messages() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// ClearMessages resets the history. It does not cancel an in-flight
// request; cancel first.
func (s *Session) ClearMessages() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}

// AddSystemMessage appends a scripted assistant message with no network
// round-trip.
func (s *Session) AddSystemMessage(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.append(domain.ChatMessage{Role: "assistant", Content: content, Timestamp: time.Now()})
}

// CancelRequest aborts the in-flight request if one exists. Loading is
// cleared immediately, even if the abort races a final chunk. Content
// already applied stays: cancellation stops receiving, it does not undo.
func (s *Session) CancelRequest() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
		// Ownership of loading/cancel moves on; the cancelled send's
		// epilogue must not touch whatever a follow-up send stores.
		s.gen++
	}
	s.loading = false
}

// append assigns the next session-monotonic id. Caller holds s.mu.
func (s *Session) append(m domain.ChatMessage) {
	s.nextID++
	m.ID = s.nextID
	s.messages = append(s.messages, m)
}

type wireRequest struct {
	Messages []ai.Message `json:"messages"`
	Action   string       `json:"action,omitempty"`
	Context  *ai.Context  `json:"context,omitempty"`
}

// SendMessage appends a user message and streams the assistant reply,
// blocking until the stream ends, fails, or is cancelled. A send that
// overlaps an unfinished one is rejected with ErrBusy.
func (s *Session) SendMessage(ctx context.Context, content string) error {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return ErrBusy
	}
	s.append(domain.ChatMessage{Role: "user", Content: content, Timestamp: time.Now(), Action: s.opts.Action})
	s.loading = true
	reqCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.gen++
	gen := s.gen
	history := make([]ai.Message, 0, len(s.messages))
	for _, m := range s.messages {
		history = append(history, ai.Message{Role: m.Role, Content: m.Content})
	}
	s.mu.Unlock()

	err := s.run(reqCtx, history)

	s.mu.Lock()
	if s.gen == gen {
		// Still this turn's state. After CancelRequest the busy guard
		// and handle belong to whatever send comes next.
		s.loading = false
		s.cancel = nil
	}
	s.mu.Unlock()
	cancel()

	if err == nil || errors.Is(err, context.Canceled) {
		// Explicit cancellation is not an error and produces no notice.
		return nil
	}
	switch {
	case errors.Is(err, ErrRateLimited):
		s.opts.Notifier.RateLimited()
	case errors.Is(err, ErrQuotaExhausted):
		s.opts.Notifier.QuotaExhausted()
	default:
		s.opts.Notifier.Failure(err)
	}
	return err
}

func (s *Session) run(ctx context.Context, history []ai.Message) error {
	body, err := json.Marshal(wireRequest{Messages: history, Action: s.opts.Action, Context: s.opts.Context})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.opts.Token)
	}

	resp, err := s.opts.HTTP.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return context.Canceled
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode == http.StatusPaymentRequired:
		return ErrQuotaExhausted
	case resp.StatusCode >= 300:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	decoder := stream.NewDecoder()
	acc := stream.NewAccumulator()
	sawToolCall := false
	var assistantID int64

	buf := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			for _, ev := range decoder.Feed(buf[:n]) {
				if ev.Done {
					break
				}
				if ev.Content != "" {
					assistantID = s.applyDelta(assistantID, ev.Content)
				}
				for _, frag := range ev.ToolCalls {
					acc.Add(frag)
					sawToolCall = true
				}
			}
		}
		if decoder.Done() || readErr != nil {
			if readErr != nil && ctx.Err() != nil {
				// Abort races a final chunk: applied state stands.
				return context.Canceled
			}
			break
		}
	}

	if sawToolCall {
		if tc, ok := acc.ToolCall(); ok {
			if err := ai.ValidateToolCall(tc); err != nil {
				// Schema-invalid arguments: deliver content-only.
				s.log.Warn().Err(err).Str("tool", tc.Name).Msg("discarding invalid tool call")
			} else {
				assistantID = s.attachToolCall(assistantID, tc)
			}
		}
	}
	// End of stream before the sentinel is a normal close; everything
	// decoded so far stands.
	return nil
}

// applyDelta appends to the turn's assistant message, creating it on
// first delta. At most one assistant message exists per turn and its
// content only ever grows.
func (s *Session) applyDelta(assistantID int64, delta string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if assistantID != 0 && len(s.messages) > 0 {
		last := &s.messages[len(s.messages)-1]
		if last.ID == assistantID && last.Role == "assistant" {
			last.Content += delta
			return assistantID
		}
	}
	s.append(domain.ChatMessage{Role: "assistant", Content: delta, Timestamp: time.Now()})
	return s.messages[len(s.messages)-1].ID
}

// attachToolCall sets the turn's tool call, creating the assistant
// message if the turn produced no content. Applying the same payload
// twice is a no-op.
func (s *Session) attachToolCall(assistantID int64, tc domain.ToolCall) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if assistantID != 0 && len(s.messages) > 0 {
		last := &s.messages[len(s.messages)-1]
		if last.ID == assistantID && last.Role == "assistant" {
			last.ToolCall = &tc
			return assistantID
		}
	}
	s.append(domain.ChatMessage{Role: "assistant", Timestamp: time.Now(), ToolCall: &tc})
	return s.messages[len(s.messages)-1].ID
}
