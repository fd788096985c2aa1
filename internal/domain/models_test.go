package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:domain_models?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func TestConversationID_Int64(t *testing.T) {
	cases := []struct {
		in     ConversationID
		want   int64
		wantOK bool
	}{
		{"42", 42, true},
		{"-1001234567890", -1001234567890, true},
		{"@channel", 0, false},
		{"", 0, false},
		{"4.2", 0, false},
	}
	for _, tc := range cases {
		got, ok := tc.in.Int64()
		if got != tc.want || ok != tc.wantOK {
			t.Errorf("%q.Int64() = (%d,%v); want (%d,%v)", tc.in, got, ok, tc.want, tc.wantOK)
		}
	}
	if ConversationID("7").String() != "7" {
		t.Fatalf("String() should return lexical form")
	}
}

func TestProviderError_KindAndUnwrap(t *testing.T) {
	base := errors.New("boom")
	err := fmt.Errorf("wrapped: %w", &ProviderError{Kind: ProviderRateLimited, Provider: "openai", Status: 429, Err: base})

	if got := ProviderErrorKindOf(err); got != ProviderRateLimited {
		t.Fatalf("ProviderErrorKindOf = %q; want rate_limited", got)
	}
	if !errors.Is(err, base) {
		t.Fatalf("ProviderError must unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "status 429") {
		t.Fatalf("message should include status: %q", err.Error())
	}
	if got := ProviderErrorKindOf(errors.New("plain")); got != ProviderUnknown {
		t.Fatalf("plain errors are unknown, got %q", got)
	}
}

func TestTransportError_Message(t *testing.T) {
	e := &TransportError{Status: 400, Body: "Bad Request: chat not found"}
	if !strings.Contains(e.Error(), "chat not found") {
		t.Fatalf("unexpected message %q", e.Error())
	}
	cause := errors.New("dial tcp: refused")
	e = &TransportError{Err: cause}
	if !errors.Is(e, cause) || !strings.Contains(e.Error(), "refused") {
		t.Fatalf("transport error should wrap cause: %q", e.Error())
	}
}

func TestDelivery_TableAndIndexes(t *testing.T) {
	if (Delivery{}).TableName() != "deliveries" {
		t.Fatalf("Delivery.TableName() = %q", (Delivery{}).TableName())
	}
	db := newDomainDB(t)
	if err := db.AutoMigrate(&Delivery{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()
	if !m.HasTable(&Delivery{}) {
		t.Fatalf("expected deliveries table")
	}
	if !m.HasIndex(&Delivery{}, "idx_delivery_chat") {
		t.Fatalf("expected idx_delivery_chat index")
	}
	for _, col := range []string{"provider_error", "transport_status", "latency_ms"} {
		if !m.HasColumn(&Delivery{}, col) {
			t.Fatalf("expected column %s", col)
		}
	}
	if m.HasColumn(&Delivery{}, "text") {
		t.Fatalf("journal must not store message text")
	}
}
