package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type recordNotifier struct {
	mu       sync.Mutex
	rate     int
	quota    int
	failures []error
}

func (n *recordNotifier) RateLimited() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rate++
}

func (n *recordNotifier) QuotaExhausted() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.quota++
}

func (n *recordNotifier) Failure(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, err)
}

func (n *recordNotifier) counts() (int, int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.rate, n.quota, len(n.failures)
}

func contentFrame(w http.ResponseWriter, content string) {
	fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", content)
}

func toolFrame(w http.ResponseWriter, name, args string) {
	fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":0,\"function\":{\"name\":%q,\"arguments\":%q}}]}}]}\n\n", name, args)
}

func newTestSession(endpoint string, n Notifier) *Session {
	return NewSession(Options{Endpoint: endpoint, Action: "general_chat", Notifier: n}, zerolog.Nop())
}

func waitLoading(t *testing.T, s *Session, want bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.IsLoading() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("loading never became %v", want)
}

func TestSendMessage_DeltasAccumulateIntoOneAssistantMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		contentFrame(w, "Hel")
		contentFrame(w, "lo ")
		contentFrame(w, "world")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	n := &recordNotifier{}
	s := newTestSession(srv.URL, n)
	if err := s.SendMessage(context.Background(), "hi"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want user + one assistant", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[0].Content != "hi" {
		t.Fatalf("user message wrong: %+v", msgs[0])
	}
	if msgs[1].Role != "assistant" || msgs[1].Content != "Hello world" {
		t.Fatalf("assistant message = %+v, want accumulated content", msgs[1])
	}
	if s.IsLoading() {
		t.Fatalf("loading must clear after the stream ends")
	}
	if r, q, f := n.counts(); r+q+f != 0 {
		t.Fatalf("successful stream must not notify: %d/%d/%d", r, q, f)
	}
}

func TestSendMessage_OverlappingSendRejected(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		contentFrame(w, "thinking")
		w.(http.Flusher).Flush()
		<-release
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	s := newTestSession(srv.URL, nil)
	done := make(chan error, 1)
	go func() { done <- s.SendMessage(context.Background(), "first") }()
	waitLoading(t, s, true)

	if err := s.SendMessage(context.Background(), "second"); !errors.Is(err, ErrBusy) {
		t.Fatalf("overlapping send: got %v, want ErrBusy", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first send failed: %v", err)
	}
	// The rejected send must not have appended its user message.
	for _, m := range s.Messages() {
		if m.Content == "second" {
			t.Fatalf("rejected send leaked into history")
		}
	}
}

func TestSendMessage_CancelBeforeFirstFrame(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	n := &recordNotifier{}
	s := newTestSession(srv.URL, n)
	done := make(chan error, 1)
	go func() { done <- s.SendMessage(context.Background(), "hi") }()
	waitLoading(t, s, true)

	s.CancelRequest()
	if s.IsLoading() {
		t.Fatalf("cancel must clear loading immediately")
	}
	if err := <-done; err != nil {
		t.Fatalf("cancellation is not an error, got %v", err)
	}

	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Role != "user" {
		t.Fatalf("history after cancel = %+v, want only the user message", msgs)
	}
	if r, q, f := n.counts(); r+q+f != 0 {
		t.Fatalf("cancellation must not notify: %d/%d/%d", r, q, f)
	}
}

func TestSendMessage_RateLimitNotifies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	n := &recordNotifier{}
	s := newTestSession(srv.URL, n)
	if err := s.SendMessage(context.Background(), "hi"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("got %v, want ErrRateLimited", err)
	}
	if r, _, _ := n.counts(); r != 1 {
		t.Fatalf("rate limit notice not delivered")
	}
	if s.IsLoading() {
		t.Fatalf("loading must clear on failure")
	}
}

func TestSendMessage_QuotaExhaustedNotifies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer srv.Close()

	n := &recordNotifier{}
	s := newTestSession(srv.URL, n)
	if err := s.SendMessage(context.Background(), "hi"); !errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("got %v, want ErrQuotaExhausted", err)
	}
	if _, q, _ := n.counts(); q != 1 {
		t.Fatalf("quota notice not delivered")
	}
}

func TestSendMessage_ServerErrorNotifiesFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := &recordNotifier{}
	s := newTestSession(srv.URL, n)
	if err := s.SendMessage(context.Background(), "hi"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("got %v, want ErrUnavailable", err)
	}
	if _, _, f := n.counts(); f != 1 {
		t.Fatalf("failure notice not delivered")
	}
}

func TestSendMessage_ToolCallAttached(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		contentFrame(w, "Creating your ticket.")
		toolFrame(w, "create_ticket", `{"title":"Fix login","descri`)
		toolFrame(w, "", `ption":"broken","type":"bug","priority":"high"}`)
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	s := newTestSession(srv.URL, nil)
	if err := s.SendMessage(context.Background(), "file a bug"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	msgs := s.Messages()
	last := msgs[len(msgs)-1]
	if last.ToolCall == nil {
		t.Fatalf("tool call not attached: %+v", last)
	}
	if last.ToolCall.Name != "create_ticket" {
		t.Fatalf("tool name = %q", last.ToolCall.Name)
	}
	if last.Content != "Creating your ticket." {
		t.Fatalf("content and tool call must share one assistant message, got %+v", last)
	}
}

func TestSendMessage_InvalidToolCallDiscarded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		contentFrame(w, "hmm")
		toolFrame(w, "create_ticket", `{"title":"only a title"}`)
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	s := newTestSession(srv.URL, nil)
	if err := s.SendMessage(context.Background(), "file a bug"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	last := s.Messages()[1]
	if last.ToolCall != nil {
		t.Fatalf("schema-invalid tool call must be dropped, got %+v", last.ToolCall)
	}
	if last.Content != "hmm" {
		t.Fatalf("content must still be delivered: %+v", last)
	}
}

func TestSendMessage_TruncatedStreamKeepsDecodedContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		contentFrame(w, "partial answer")
		// connection closes with no [DONE]
	}))
	defer srv.Close()

	s := newTestSession(srv.URL, nil)
	if err := s.SendMessage(context.Background(), "hi"); err != nil {
		t.Fatalf("truncated stream is a normal close, got %v", err)
	}
	msgs := s.Messages()
	if len(msgs) != 2 || msgs[1].Content != "partial answer" {
		t.Fatalf("decoded content must survive truncation: %+v", msgs)
	}
}

func TestClearMessagesAndSystemMessage(t *testing.T) {
	s := newTestSession("http://unused.invalid", nil)
	s.AddSystemMessage("Welcome to Nexus AI")

	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Role != "assistant" || msgs[0].Content != "Welcome to Nexus AI" {
		t.Fatalf("system message wrong: %+v", msgs)
	}
	s.ClearMessages()
	if len(s.Messages()) != 0 {
		t.Fatalf("clear must empty the history")
	}

	// IDs keep increasing across a clear.
	s.AddSystemMessage("again")
	if got := s.Messages()[0].ID; got != 2 {
		t.Fatalf("message id = %d, want session-monotonic 2", got)
	}
}

// stallBody blocks reads until released, then yields its data once and
// EOFs. Cancelling the request context does not interrupt it, which is
// exactly how a gateway read behaves between chunks.
type stallBody struct {
	release <-chan struct{}
	data    string
	read    bool
}

func (b *stallBody) Read(p []byte) (int, error) {
	<-b.release
	if b.read || b.data == "" {
		return 0, io.EOF
	}
	b.read = true
	return copy(p, b.data), nil
}

func (b *stallBody) Close() error { return nil }

type scriptedTransport struct {
	mu     sync.Mutex
	bodies []io.ReadCloser
	ctxs   []context.Context
}

func (tr *scriptedTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.bodies) == 0 {
		return nil, errors.New("no scripted response left")
	}
	body := tr.bodies[0]
	tr.bodies = tr.bodies[1:]
	tr.ctxs = append(tr.ctxs, r.Context())
	return &http.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: body, Request: r}, nil
}

func (tr *scriptedTransport) requests() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.ctxs)
}

func (tr *scriptedTransport) ctx(i int) context.Context {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.ctxs[i]
}

func waitRequests(t *testing.T, tr *scriptedTransport, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if tr.requests() >= want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("request %d never started", want)
}

// A cancelled send whose request is still draining must not clobber the
// state of a send started after the cancellation: the new request keeps
// its context, the busy guard stays up, and a third send is rejected.
func TestSendMessage_CancelThenResendKeepsSecondRequestAlive(t *testing.T) {
	release1 := make(chan struct{})
	release2 := make(chan struct{})
	tr := &scriptedTransport{bodies: []io.ReadCloser{
		&stallBody{release: release1},
		&stallBody{release: release2, data: "data: {\"choices\":[{\"delta\":{\"content\":\"fresh reply\"}}]}\n\ndata: [DONE]\n\n"},
	}}
	s := NewSession(Options{
		Endpoint: "http://gateway.test/ai/chat",
		Action:   "general_chat",
		HTTP:     &http.Client{Transport: tr},
	}, zerolog.Nop())

	done1 := make(chan error, 1)
	go func() { done1 <- s.SendMessage(context.Background(), "first") }()
	waitLoading(t, s, true)

	s.CancelRequest()

	done2 := make(chan error, 1)
	go func() { done2 <- s.SendMessage(context.Background(), "second") }()
	waitLoading(t, s, true)
	waitRequests(t, tr, 2)

	// The first request unblocks only now, after the second is in flight.
	close(release1)
	if err := <-done1; err != nil {
		t.Fatalf("cancelled send returned %v", err)
	}

	if err := tr.ctx(1).Err(); err != nil {
		t.Fatalf("second request's context cancelled by the first send's cleanup: %v", err)
	}
	if !s.IsLoading() {
		t.Fatalf("busy guard dropped while the second send is still in flight")
	}
	if err := s.SendMessage(context.Background(), "third"); !errors.Is(err, ErrBusy) {
		t.Fatalf("overlap during second send: got %v, want ErrBusy", err)
	}

	close(release2)
	if err := <-done2; err != nil {
		t.Fatalf("second send failed: %v", err)
	}
	msgs := s.Messages()
	last := msgs[len(msgs)-1]
	if last.Role != "assistant" || last.Content != "fresh reply" {
		t.Fatalf("second send's reply = %+v", last)
	}
}
