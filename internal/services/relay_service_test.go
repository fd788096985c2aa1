package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tbourn/go-chat-relay/internal/domain"
	"github.com/tbourn/go-chat-relay/internal/observability"
)

// ---------- test doubles ----------

type completerCall struct{ persona, text string }

type fakeCompleter struct {
	mu    sync.Mutex
	calls []completerCall
	reply string
	err   error
	wait  bool // block until ctx is done
}

func (f *fakeCompleter) Generate(ctx context.Context, persona, text string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, completerCall{persona, text})
	f.mu.Unlock()
	if f.wait {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.reply, f.err
}

type sendCall struct {
	chatID domain.ConversationID
	text   string
}

type fakeSender struct {
	mu    sync.Mutex
	calls []sendCall
	err   error
}

func (f *fakeSender) Send(_ context.Context, chatID domain.ConversationID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sendCall{chatID, text})
	return f.err
}

type fakeRecorder struct {
	rows []*domain.Delivery
	err  error
}

func (f *fakeRecorder) RecordDelivery(_ context.Context, d *domain.Delivery) error {
	f.rows = append(f.rows, d)
	return f.err
}

func newSvc(c *fakeCompleter, s *fakeSender) *RelayService {
	svc := NewRelayService(c, s)
	svc.Persona = "PERSONA"
	return svc
}

// ---------- scenarios ----------

func TestHandle_ScenarioA_HelpCommand(t *testing.T) {
	c := &fakeCompleter{reply: "unused"}
	s := &fakeSender{}
	svc := newSvc(c, s)

	out, err := svc.Handle(context.Background(), []byte(`{"message":{"chat":{"id":42},"text":"/help"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.calls) != 0 {
		t.Fatalf("provider must not be called for /help, got %d calls", len(c.calls))
	}
	if len(s.calls) != 1 || s.calls[0] != (sendCall{"42", DefaultReplies().Help}) {
		t.Fatalf("unexpected sends: %+v", s.calls)
	}
	if out.Route != domain.RouteHelp || !out.Delivered || out.Degraded {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestHandle_StartCommand(t *testing.T) {
	c := &fakeCompleter{}
	s := &fakeSender{}
	svc := newSvc(c, s)

	if _, err := svc.Handle(context.Background(), []byte(`{"message":{"chat":{"id":5},"text":" /start "}}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.calls) != 0 {
		t.Fatalf("provider must not be called for /start")
	}
	if len(s.calls) != 1 || s.calls[0].text != DefaultReplies().Welcome {
		t.Fatalf("unexpected sends: %+v", s.calls)
	}
}

func TestHandle_ScenarioB_ContentRequest(t *testing.T) {
	c := &fakeCompleter{reply: "  Generated content\n"}
	s := &fakeSender{}
	svc := newSvc(c, s)

	out, err := svc.Handle(context.Background(), []byte(`{"message":{"chat":{"id":7},"text":"Write a post about new housing law"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.calls) != 1 || c.calls[0] != (completerCall{"PERSONA", "Write a post about new housing law"}) {
		t.Fatalf("unexpected provider calls: %+v", c.calls)
	}
	if len(s.calls) != 1 || s.calls[0] != (sendCall{"7", "Generated content"}) {
		t.Fatalf("unexpected sends: %+v", s.calls)
	}
	if out.Reply != "Generated content" || out.Route != domain.RouteContent {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestHandle_ScenarioC_InvalidEvents_NoDownstreamCalls(t *testing.T) {
	for _, raw := range []string{`{}`, ``, `null`, `{"message":{"text":"x"}}`, `{"message":{"chat":{}}}`, `{bad`} {
		c := &fakeCompleter{reply: "x"}
		s := &fakeSender{}
		rec := &fakeRecorder{}
		svc := newSvc(c, s)
		svc.Recorder = rec

		_, err := svc.Handle(context.Background(), []byte(raw))
		var ve *domain.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("Handle(%q) err = %v; want validation error", raw, err)
		}
		if len(c.calls) != 0 || len(s.calls) != 0 || len(rec.rows) != 0 {
			t.Fatalf("Handle(%q) made downstream calls: provider=%d send=%d journal=%d", raw, len(c.calls), len(s.calls), len(rec.rows))
		}
	}
}

// ---------- properties ----------

func TestHandle_EmptyTextIsContent(t *testing.T) {
	c := &fakeCompleter{reply: "ok"}
	s := &fakeSender{}
	svc := newSvc(c, s)

	if _, err := svc.Handle(context.Background(), []byte(`{"message":{"chat":{"id":1}}}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.calls) != 1 || c.calls[0].text != "" || c.calls[0].persona != "PERSONA" {
		t.Fatalf("empty text must be forwarded once: %+v", c.calls)
	}
}

func TestHandle_ProviderFailure_SendsApology(t *testing.T) {
	kinds := []domain.ProviderErrorKind{
		domain.ProviderUnauthorized, domain.ProviderRateLimited, domain.ProviderTimeout,
		domain.ProviderMalformedResponse, domain.ProviderUnknown,
	}
	for _, k := range kinds {
		secret := "upstream said: invalid key sk-123"
		c := &fakeCompleter{err: &domain.ProviderError{Kind: k, Provider: "openai", Err: errors.New(secret)}}
		s := &fakeSender{}
		svc := newSvc(c, s)

		out, err := svc.Handle(context.Background(), []byte(`{"message":{"chat":{"id":9},"text":"post"}}`))
		if err != nil {
			t.Fatalf("%s: provider failure must not fail the outcome: %v", k, err)
		}
		if len(s.calls) != 1 || s.calls[0].text != DefaultReplies().Apology {
			t.Fatalf("%s: expected apology, got %+v", k, s.calls)
		}
		if strings.Contains(s.calls[0].text, "sk-123") {
			t.Fatalf("%s: provider detail leaked to chat", k)
		}
		if !out.Degraded || !out.Delivered {
			t.Fatalf("%s: unexpected outcome %+v", k, out)
		}
	}
}

func TestHandle_EmptyCompletion_SendsApology(t *testing.T) {
	c := &fakeCompleter{reply: "  \n "}
	s := &fakeSender{}
	svc := newSvc(c, s)

	out, err := svc.Handle(context.Background(), []byte(`{"message":{"chat":{"id":9},"text":"post"}}`))
	if err != nil || !out.Degraded {
		t.Fatalf("blank completion should degrade: out=%+v err=%v", out, err)
	}
	if s.calls[0].text != DefaultReplies().Apology {
		t.Fatalf("expected apology, got %q", s.calls[0].text)
	}
}

func TestHandle_CompletionTimeout(t *testing.T) {
	c := &fakeCompleter{wait: true}
	s := &fakeSender{}
	rec := &fakeRecorder{}
	svc := newSvc(c, s)
	svc.CompletionTimeout = 20 * time.Millisecond
	svc.Recorder = rec

	out, err := svc.Handle(context.Background(), []byte(`{"message":{"chat":{"id":3},"text":"slow"}}`))
	if err != nil {
		t.Fatalf("timeout must not fail the outcome: %v", err)
	}
	if !out.Degraded || s.calls[0].text != DefaultReplies().Apology {
		t.Fatalf("timeout should produce apology: %+v / %+v", out, s.calls)
	}
	if len(rec.rows) != 1 || rec.rows[0].ProviderError != string(domain.ProviderTimeout) {
		t.Fatalf("journal should record timeout kind: %+v", rec.rows)
	}
}

func TestHandle_TransportFailure_OutcomeUnaffected(t *testing.T) {
	c := &fakeCompleter{reply: "text"}
	s := &fakeSender{err: &domain.TransportError{Status: 403, Body: "Forbidden: bot was blocked by the user"}}
	rec := &fakeRecorder{}
	svc := newSvc(c, s)
	svc.Recorder = rec

	out, err := svc.Handle(context.Background(), []byte(`{"update_id":77,"message":{"chat":{"id":11},"text":"post"}}`))
	if err != nil {
		t.Fatalf("transport failure must not fail the outcome: %v", err)
	}
	if out.Delivered || out.Degraded {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if len(rec.rows) != 1 {
		t.Fatalf("expected one journal row, got %d", len(rec.rows))
	}
	row := rec.rows[0]
	if row.TransportStatus != 403 || row.Delivered || row.ChatID != "11" || row.UpdateID != 77 || row.Route != "content" {
		t.Fatalf("unexpected journal row: %+v", row)
	}
}

func TestHandle_Idempotent(t *testing.T) {
	c := &fakeCompleter{reply: "fixed"}
	s := &fakeSender{}
	svc := newSvc(c, s)
	raw := []byte(`{"message":{"chat":{"id":"@chan"},"text":"same"}}`)

	for i := 0; i < 3; i++ {
		if _, err := svc.Handle(context.Background(), raw); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	for i, call := range s.calls {
		if call != s.calls[0] {
			t.Fatalf("call %d differs: %+v vs %+v", i, call, s.calls[0])
		}
	}
	if s.calls[0] != (sendCall{"@chan", "fixed"}) {
		t.Fatalf("unexpected send: %+v", s.calls[0])
	}
}

func TestHandle_ConcurrentInvocations(t *testing.T) {
	c := &fakeCompleter{reply: "r"}
	s := &fakeSender{}
	svc := newSvc(c, s)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Handle(context.Background(), []byte(`{"message":{"chat":{"id":1},"text":"x"}}`))
		}()
	}
	wg.Wait()
	if len(c.calls) != 16 || len(s.calls) != 16 {
		t.Fatalf("expected 16 calls each, got provider=%d send=%d", len(c.calls), len(s.calls))
	}
}

func TestHandle_JournalFailureIsLoggedOnly(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)
	ctx := l.WithContext(context.Background())

	svc := newSvc(&fakeCompleter{reply: "r"}, &fakeSender{})
	svc.Recorder = &fakeRecorder{err: errors.New("disk full")}

	out, err := svc.Handle(ctx, []byte(`{"message":{"chat":{"id":1},"text":"/start"}}`))
	if err != nil || !out.Delivered {
		t.Fatalf("journal failure must not affect outcome: %+v %v", out, err)
	}
	if !strings.Contains(buf.String(), "delivery journal write failed") {
		t.Fatalf("expected journal warning in logs, got: %s", buf.String())
	}
}

func TestHandle_LogsProviderKindNotReply(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)
	ctx := l.WithContext(context.Background())

	c := &fakeCompleter{err: &domain.ProviderError{Kind: domain.ProviderRateLimited, Provider: "openai", Status: 429, Err: errors.New("slow down")}}
	svc := newSvc(c, &fakeSender{})

	if _, err := svc.Handle(ctx, []byte(`{"message":{"chat":{"id":1},"text":"post"}}`)); err != nil {
		t.Fatal(err)
	}
	logs := buf.String()
	if !strings.Contains(logs, `"kind":"rate_limited"`) || !strings.Contains(logs, "completion failed") {
		t.Fatalf("expected provider kind in logs, got: %s", logs)
	}
}

func TestHandle_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewRelayMetrics(reg)

	c := &fakeCompleter{err: &domain.ProviderError{Kind: domain.ProviderUnauthorized, Provider: "openai", Status: 401, Err: errors.New("no")}}
	s := &fakeSender{err: &domain.TransportError{Status: 400, Body: "chat not found"}}
	svc := newSvc(c, s)
	svc.Metrics = m

	_, _ = svc.Handle(context.Background(), []byte(`{"message":{"chat":{"id":1},"text":"post"}}`))
	_, _ = svc.Handle(context.Background(), []byte(`{}`))

	n, err := testutil.GatherAndCount(reg,
		"relay_updates_total", "relay_completion_errors_total", "relay_delivery_failures_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 series (2 updates, 1 error kind, 1 failure counter), got %d", n)
	}
}

// recordSpans installs a recording tracer provider for the duration of t.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

func spansByName(sr *tracetest.SpanRecorder) map[string]sdktrace.ReadOnlySpan {
	out := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range sr.Ended() {
		out[s.Name()] = s
	}
	return out
}

func TestHandle_EmitsPipelineSpans(t *testing.T) {
	sr := recordSpans(t)
	svc := newSvc(&fakeCompleter{reply: "post"}, &fakeSender{})

	if _, err := svc.Handle(context.Background(), []byte(`{"update_id":9,"message":{"chat":{"id":42},"text":"write"}}`)); err != nil {
		t.Fatal(err)
	}

	spans := spansByName(sr)
	root, ok := spans["Handle"]
	if !ok || len(spans) != 3 {
		t.Fatalf("expected Handle, generate and send spans, got %d", len(sr.Ended()))
	}
	if root.InstrumentationScope().Name != observability.RelayTracerName {
		t.Fatalf("scope = %q", root.InstrumentationScope().Name)
	}
	for _, name := range []string{"generate", "send"} {
		child, ok := spans[name]
		if !ok || child.Parent().SpanID() != root.SpanContext().SpanID() {
			t.Fatalf("%s span missing or not under Handle", name)
		}
		if child.Status().Code == codes.Error {
			t.Fatalf("%s unexpectedly failed", name)
		}
	}

	attrs := map[string]string{}
	for _, kv := range root.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs["chat.id"] != "42" || attrs["relay.route"] != "content" || attrs["update.id"] != "9" {
		t.Fatalf("unexpected Handle attributes: %v", attrs)
	}
}

func TestHandle_SpansOnCommandAndFailures(t *testing.T) {
	t.Run("command skips generate", func(t *testing.T) {
		sr := recordSpans(t)
		svc := newSvc(&fakeCompleter{}, &fakeSender{})
		_, _ = svc.Handle(context.Background(), []byte(`{"message":{"chat":{"id":1},"text":"/help"}}`))

		spans := spansByName(sr)
		if _, ok := spans["generate"]; ok {
			t.Fatalf("commands must not open a generate span")
		}
		if _, ok := spans["send"]; !ok {
			t.Fatalf("send span missing")
		}
	})

	t.Run("provider and transport errors mark spans", func(t *testing.T) {
		sr := recordSpans(t)
		c := &fakeCompleter{err: &domain.ProviderError{Kind: domain.ProviderRateLimited, Provider: "openai", Status: 429, Err: errors.New("slow down")}}
		s := &fakeSender{err: &domain.TransportError{Status: 403, Body: "bot was blocked"}}
		_, _ = newSvc(c, s).Handle(context.Background(), []byte(`{"message":{"chat":{"id":1},"text":"post"}}`))

		spans := spansByName(sr)
		if st := spans["generate"].Status(); st.Code != codes.Error || st.Description != "rate_limited" {
			t.Fatalf("generate status = %+v", st)
		}
		if spans["send"].Status().Code != codes.Error {
			t.Fatalf("send status should be error")
		}
		if spans["Handle"].Status().Code == codes.Error {
			t.Fatalf("acknowledged updates must not fail the Handle span")
		}
	})

	t.Run("invalid payload fails Handle only", func(t *testing.T) {
		sr := recordSpans(t)
		_, _ = newSvc(&fakeCompleter{}, &fakeSender{}).Handle(context.Background(), []byte(`{}`))

		spans := spansByName(sr)
		if len(spans) != 1 || spans["Handle"].Status().Code != codes.Error {
			t.Fatalf("expected a single failed Handle span, got %d spans", len(spans))
		}
	})
}
