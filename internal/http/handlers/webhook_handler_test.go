package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-chat-relay/internal/domain"
	"github.com/tbourn/go-chat-relay/internal/http/middleware"
	"github.com/tbourn/go-chat-relay/internal/services"
)

// ---------- test plumbing ----------

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

type stubRelay struct {
	mu     sync.Mutex
	calls  int
	bodies [][]byte
	handle func(ctx context.Context, raw []byte) (domain.Outcome, error)
}

func (s *stubRelay) Handle(ctx context.Context, raw []byte) (domain.Outcome, error) {
	s.mu.Lock()
	s.calls++
	s.bodies = append(s.bodies, raw)
	s.mu.Unlock()
	if s.handle == nil {
		return domain.Outcome{Delivered: true}, nil
	}
	return s.handle(ctx, raw)
}

func newWebhookRouter(relay Relay, maxBody int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Logger(middleware.LogOptions{}))
	if maxBody > 0 {
		r.Use(middleware.LimitBody(maxBody))
	}
	h := New(relay)
	r.POST("/webhook", h.Webhook)
	return r
}

func postWebhook(r http.Handler, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

// ---------- tests ----------

func TestWebhook_OKPassesRawBody(t *testing.T) {
	captureLogs(t)
	relay := &stubRelay{}
	r := newWebhookRouter(relay, 0)

	body := `{"message":{"chat":{"id":42},"text":"hi"}}`
	w := postWebhook(r, body)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp WebhookResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Status != "ok" {
		t.Fatalf("unexpected body: %s (%v)", w.Body.String(), err)
	}
	if relay.calls != 1 || string(relay.bodies[0]) != body {
		t.Fatalf("relay should get the raw body once, got %d calls", relay.calls)
	}
}

func TestWebhook_DegradedAndUndeliveredStillAcknowledged(t *testing.T) {
	captureLogs(t)
	for _, out := range []domain.Outcome{
		{ConversationID: "1", Route: domain.RouteContent, Degraded: true, Delivered: true},
		{ConversationID: "1", Route: domain.RouteContent, Delivered: false},
	} {
		out := out
		relay := &stubRelay{handle: func(context.Context, []byte) (domain.Outcome, error) { return out, nil }}
		w := postWebhook(newWebhookRouter(relay, 0), `{"message":{"chat":{"id":1},"text":"x"}}`)
		if w.Code != http.StatusOK {
			t.Fatalf("outcome %+v: status=%d", out, w.Code)
		}
	}
}

func TestWebhook_ValidationErrorsMapTo400(t *testing.T) {
	captureLogs(t)
	cases := []struct {
		err      error
		wantCode string
		wantMsg  string
	}{
		{services.ErrMissingMessage, ErrCodeMissingMessage, "No message received"},
		{services.ErrMissingChatID, ErrCodeMissingChatID, "No chat id received"},
		{services.ErrMalformedPayload, ErrCodeMalformedPayload, "Payload is not valid JSON"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.wantCode, func(t *testing.T) {
			relay := &stubRelay{handle: func(context.Context, []byte) (domain.Outcome, error) {
				return domain.Outcome{}, tc.err
			}}
			w := postWebhook(newWebhookRouter(relay, 0), `{}`)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status=%d", w.Code)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("json: %v", err)
			}
			if resp.Code != tc.wantCode || resp.Message != tc.wantMsg || resp.RequestID == "" {
				t.Fatalf("unexpected envelope: %+v", resp)
			}
		})
	}
}

func TestWebhook_RealRelayRejectsWithoutDownstreamCalls(t *testing.T) {
	captureLogs(t)
	var downstream int
	svc := services.NewRelayService(
		completerFunc(func(context.Context, string, string) (string, error) { downstream++; return "", nil }),
		senderFunc(func(context.Context, domain.ConversationID, string) error { downstream++; return nil }),
	)
	r := newWebhookRouter(svc, 0)

	for _, body := range []string{``, `{}`, `{"message":{}}`, `{"message":{"text":"hi"}}`, `not json`} {
		w := postWebhook(r, body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status=%d", body, w.Code)
		}
	}
	if downstream != 0 {
		t.Fatalf("invalid events must not reach provider or transport, got %d calls", downstream)
	}
}

func TestWebhook_BodyTooLarge(t *testing.T) {
	captureLogs(t)
	relay := &stubRelay{}
	r := newWebhookRouter(relay, 16)

	w := postWebhook(r, `{"message":{"chat":{"id":42},"text":"`+strings.Repeat("a", 64)+`"}}`)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status=%d", w.Code)
	}
	var resp ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Code != ErrCodePayloadTooLarge {
		t.Fatalf("code=%q", resp.Code)
	}
	if relay.calls != 0 {
		t.Fatalf("relay must not be called for oversized bodies")
	}
}

func TestWebhook_UnexpectedErrorIs500AndLogged(t *testing.T) {
	buf := captureLogs(t)
	relay := &stubRelay{handle: func(context.Context, []byte) (domain.Outcome, error) {
		return domain.Outcome{}, errors.New("wiring broke")
	}}
	w := postWebhook(newWebhookRouter(relay, 0), `{}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
	if strings.Contains(w.Body.String(), "wiring broke") {
		t.Fatalf("internal error text leaked: %s", w.Body.String())
	}
	if !strings.Contains(buf.String(), "api error") {
		t.Fatalf("5xx should be logged, got %s", buf.String())
	}
}

func TestHealthEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", Root)
	r.GET("/health", Health)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK || w.Body.String() != LivenessText {
		t.Fatalf("GET / = %d %q", w.Code, w.Body.String())
	}

	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w2.Code != http.StatusOK || !strings.Contains(w2.Body.String(), `"status":"ok"`) {
		t.Fatalf("GET /health = %d %q", w2.Code, w2.Body.String())
	}
}

// ---------- func adapters for the real service ----------

type completerFunc func(ctx context.Context, persona, text string) (string, error)

func (f completerFunc) Generate(ctx context.Context, persona, text string) (string, error) {
	return f(ctx, persona, text)
}

type senderFunc func(ctx context.Context, chatID domain.ConversationID, text string) error

func (f senderFunc) Send(ctx context.Context, chatID domain.ConversationID, text string) error {
	return f(ctx, chatID, text)
}
