// Package telegram implements the chat transport on top of the Telegram Bot
// API. It delivers replies with a single sendMessage call and manages the
// bot's webhook registration for the CLI.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-chat-relay/internal/domain"
)

// Options configures a Transport.
type Options struct {
	Token     string
	Endpoint  string // format with two %s verbs: token, method
	Timeout   time.Duration
	ParseMode string

	HTTPClient *http.Client
}

// Transport sends messages through one bot. It is safe for concurrent use.
type Transport struct {
	bot       *tgbotapi.BotAPI
	token     string
	parseMode string
}

// WebhookStatus is the subset of getWebhookInfo reported by the CLI.
type WebhookStatus struct {
	URL              string `json:"url"`
	PendingUpdates   int    `json:"pending_update_count"`
	LastErrorDate    int    `json:"last_error_date,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
	MaxConnections   int    `json:"max_connections,omitempty"`
}

// New connects to the Bot API and verifies the token with getMe.
func New(o Options) (*Transport, error) {
	client := o.HTTPClient
	if client == nil {
		timeout := o.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	endpoint := o.Endpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	bot, err := tgbotapi.NewBotAPIWithClient(o.Token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram getMe: %w", toTransportError(err, o.Token))
	}
	return &Transport{bot: bot, token: o.Token, parseMode: o.ParseMode}, nil
}

// Username returns the bot's @username as reported by getMe.
func (t *Transport) Username() string { return t.bot.Self.UserName }

// Send delivers text to chatID with one sendMessage call. Numeric ids are
// sent as chat ids, anything else as a channel username.
func (t *Transport) Send(ctx context.Context, chatID domain.ConversationID, text string) error {
	tr := otel.Tracer("telegram/Transport")
	_, span := tr.Start(ctx, "sendMessage",
		trace.WithAttributes(attribute.String("chat.id", chatID.String())),
	)
	defer span.End()

	if err := ctx.Err(); err != nil {
		return &domain.TransportError{Err: err}
	}

	msg := newMessage(chatID, text)
	msg.ParseMode = t.parseMode

	if _, err := t.bot.Send(msg); err != nil {
		te := toTransportError(err, t.token)
		span.SetAttributes(attribute.Int("telegram.error_code", te.Status))
		return te
	}
	return nil
}

func newMessage(chatID domain.ConversationID, text string) tgbotapi.MessageConfig {
	if n, ok := chatID.Int64(); ok {
		return tgbotapi.NewMessage(n, text)
	}
	return tgbotapi.MessageConfig{
		BaseChat: tgbotapi.BaseChat{ChannelUsername: chatID.String()},
		Text:     text,
	}
}

// RegisterWebhook points the bot's updates at url.
func (t *Transport) RegisterWebhook(url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("webhook url: %w", err)
	}
	if _, err := t.bot.Request(wh); err != nil {
		return toTransportError(err, t.token)
	}
	return nil
}

// DeleteWebhook removes the webhook, optionally dropping queued updates.
func (t *Transport) DeleteWebhook(dropPending bool) error {
	if _, err := t.bot.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: dropPending}); err != nil {
		return toTransportError(err, t.token)
	}
	return nil
}

// WebhookInfo returns the current webhook registration.
func (t *Transport) WebhookInfo() (WebhookStatus, error) {
	info, err := t.bot.GetWebhookInfo()
	if err != nil {
		return WebhookStatus{}, toTransportError(err, t.token)
	}
	return WebhookStatus{
		URL:              info.URL,
		PendingUpdates:   info.PendingUpdateCount,
		LastErrorDate:    info.LastErrorDate,
		LastErrorMessage: info.LastErrorMessage,
		MaxConnections:   info.MaxConnections,
	}, nil
}

// toTransportError maps Bot API failures to *domain.TransportError, keeping
// Telegram's error_code and description. Request URLs embed the bot token, so
// network errors are rebuilt with the token masked.
func toTransportError(err error, token string) *domain.TransportError {
	var te *domain.TransportError
	if errors.As(err, &te) {
		return te
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return &domain.TransportError{Status: apiErr.Code, Body: apiErr.Message, Err: err}
	}
	var apiErrV tgbotapi.Error
	if errors.As(err, &apiErrV) {
		return &domain.TransportError{Status: apiErrV.Code, Body: apiErrV.Message, Err: err}
	}
	return &domain.TransportError{Err: maskToken(err, token)}
}

// maskToken returns err with every occurrence of token replaced. A *url.Error
// keeps its inner error in the chain so errors.Is on timeouts still works.
func maskToken(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	var ue *url.Error
	if errors.As(err, &ue) && !strings.Contains(ue.Err.Error(), token) {
		return fmt.Errorf("%s %q: %w", ue.Op, strings.ReplaceAll(ue.URL, token, redactedToken), ue.Err)
	}
	return errors.New(strings.ReplaceAll(err.Error(), token, redactedToken))
}

const redactedToken = "<redacted>"
