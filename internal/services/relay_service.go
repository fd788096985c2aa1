// Package services – RelayService
//
// This file implements RelayService, the orchestrator invoked once per webhook
// call. It parses the inbound event, routes it, obtains the reply text (canned
// or generated), and attempts delivery through the chat transport.
//
// Failure policy:
//   - validation errors are returned to the caller and stop the pipeline
//     before any outbound call;
//   - completion failures are replaced by the apology text and never shown
//     to the chat user;
//   - delivery failures are logged and counted but leave the outcome
//     successful.
//
// Observability: Handle and its two outbound calls are OpenTelemetry spans;
// the request logger is taken from the context (zerolog.Ctx).

package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-chat-relay/internal/domain"
	"github.com/tbourn/go-chat-relay/internal/observability"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Completer generates text for a persona and a user prompt. Implementations
// return *domain.ProviderError on failure.
type Completer interface {
	Generate(ctx context.Context, persona, userText string) (string, error)
}

// Sender delivers a reply to a chat. Implementations return
// *domain.TransportError on failure and make a single attempt.
type Sender interface {
	Send(ctx context.Context, chatID domain.ConversationID, text string) error
}

// Recorder persists delivery journal rows.
type Recorder interface {
	RecordDelivery(ctx context.Context, d *domain.Delivery) error
}

// Outcome labels used for metrics.
const (
	outcomeOK          = "ok"
	outcomeDegraded    = "degraded"
	outcomeUndelivered = "undelivered"
	outcomeRejected    = "rejected"
)

// RelayService wires the relay pipeline. All fields are set once at startup;
// the service is safe for concurrent use.
type RelayService struct {
	Completer Completer
	Sender    Sender
	Persona   string
	Replies   Replies

	// Upper bound for one completion call; 0 means the caller's context only.
	CompletionTimeout time.Duration

	// Optional
	Recorder Recorder
	Metrics  *observability.RelayMetrics
}

// NewRelayService returns a service with the default persona and reply
// catalog; callers may override fields before use.
func NewRelayService(c Completer, s Sender) *RelayService {
	return &RelayService{
		Completer:         c,
		Sender:            s,
		Persona:           DefaultPersonaPrompt,
		Replies:           DefaultReplies(),
		CompletionTimeout: 60 * time.Second,
	}
}

// Handle runs the pipeline for one raw webhook body. It returns a
// *domain.ValidationError for invalid events and a nil error otherwise,
// whatever happened to the completion or delivery calls.
func (s *RelayService) Handle(ctx context.Context, raw []byte) (domain.Outcome, error) {
	tr := otel.Tracer(observability.RelayTracerName)
	ctx, span := tr.Start(ctx, "Handle")
	defer span.End()

	start := time.Now()
	log := zerolog.Ctx(ctx)

	msg, err := ParsePayload(raw)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.Metrics.ObserveUpdate("invalid", outcomeRejected)
		log.Info().Err(err).Msg("webhook payload rejected")
		return domain.Outcome{}, err
	}
	span.SetAttributes(
		attribute.String("chat.id", msg.ConversationID.String()),
		attribute.Int64("update.id", msg.UpdateID),
	)

	decision := Route(msg.Text)
	span.SetAttributes(attribute.String("relay.route", string(decision.Kind)))

	out := domain.Outcome{ConversationID: msg.ConversationID, Route: decision.Kind}
	var providerKind domain.ProviderErrorKind

	if reply, ok := s.Replies.For(decision.Kind); ok {
		out.Reply = reply
	} else {
		text, gerr := s.generate(ctx, decision.Text)
		if gerr != nil {
			providerKind = domain.ProviderErrorKindOf(gerr)
			out.Reply = s.Replies.Apology
			out.Degraded = true
			log.Warn().
				Err(gerr).
				Str("chat_id", msg.ConversationID.String()).
				Str("kind", string(providerKind)).
				Msg("completion failed; sending apology")
		} else {
			out.Reply = text
		}
	}

	serr := s.send(ctx, msg.ConversationID, out.Reply)
	out.Delivered = serr == nil
	if serr != nil {
		s.Metrics.ObserveDeliveryFailure()
		log.Error().
			Err(serr).
			Str("chat_id", msg.ConversationID.String()).
			Msg("reply delivery failed")
	}

	outcome := outcomeOK
	switch {
	case !out.Delivered:
		outcome = outcomeUndelivered
	case out.Degraded:
		outcome = outcomeDegraded
	}
	s.Metrics.ObserveUpdate(string(decision.Kind), outcome)

	s.record(ctx, msg, out, providerKind, serr, time.Since(start))

	log.Info().
		Str("chat_id", msg.ConversationID.String()).
		Str("route", string(decision.Kind)).
		Bool("degraded", out.Degraded).
		Bool("delivered", out.Delivered).
		Dur("latency", time.Since(start)).
		Msg("update relayed")

	return out, nil
}

// generate calls the completion provider once, bounded by CompletionTimeout.
func (s *RelayService) generate(ctx context.Context, text string) (string, error) {
	tr := otel.Tracer(observability.RelayTracerName)
	ctx, span := tr.Start(ctx, "generate",
		trace.WithAttributes(attribute.Int("prompt.len", len(text))),
	)
	defer span.End()

	if s.CompletionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.CompletionTimeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := s.Completer.Generate(ctx, s.Persona, text)
	if err == nil {
		reply = strings.TrimSpace(reply)
		if reply == "" {
			err = &domain.ProviderError{Kind: domain.ProviderMalformedResponse, Provider: "relay", Err: errors.New("empty completion")}
		}
	}
	if err != nil {
		var pe *domain.ProviderError
		if !errors.As(err, &pe) {
			kind := domain.ProviderUnknown
			if errors.Is(err, context.DeadlineExceeded) {
				kind = domain.ProviderTimeout
			}
			err = &domain.ProviderError{Kind: kind, Provider: "relay", Err: err}
		}
		span.SetStatus(codes.Error, string(domain.ProviderErrorKindOf(err)))
		s.Metrics.ObserveCompletion(time.Since(start), string(domain.ProviderErrorKindOf(err)))
		return "", err
	}
	s.Metrics.ObserveCompletion(time.Since(start), "")
	return reply, nil
}

func (s *RelayService) send(ctx context.Context, chatID domain.ConversationID, text string) error {
	tr := otel.Tracer(observability.RelayTracerName)
	ctx, span := tr.Start(ctx, "send",
		trace.WithAttributes(attribute.String("chat.id", chatID.String())),
	)
	defer span.End()

	if err := s.Sender.Send(ctx, chatID, text); err != nil {
		span.SetStatus(codes.Error, "send failed")
		return err
	}
	return nil
}

// record writes a journal row when a Recorder is configured. Failures are
// logged only.
func (s *RelayService) record(ctx context.Context, msg domain.ParsedMessage, out domain.Outcome, kind domain.ProviderErrorKind, serr error, latency time.Duration) {
	if s.Recorder == nil {
		return
	}
	d := &domain.Delivery{
		UpdateID:      msg.UpdateID,
		ChatID:        msg.ConversationID.String(),
		Route:         string(out.Route),
		ProviderError: string(kind),
		Delivered:     out.Delivered,
		LatencyMS:     latency.Milliseconds(),
	}
	if serr != nil {
		d.TransportError = serr.Error()
		var te *domain.TransportError
		if errors.As(serr, &te) {
			d.TransportStatus = te.Status
		}
	}
	if err := s.Recorder.RecordDelivery(ctx, d); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("delivery journal write failed")
	}
}
