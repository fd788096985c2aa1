// Webhook HTTP handlers.
//
// This file exposes the inbound chat endpoint:
//   - POST {WEBHOOK_PATH}   (one Telegram update per call)
//
// The handler is transport-thin: it reads the body, hands the raw bytes to
// the relay, and maps the result onto the response. Provider and transport
// failures are absorbed by the relay, so any well-formed event is
// acknowledged with 200 and the chat platform does not redeliver it.
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chat-relay/internal/domain"
	"github.com/tbourn/go-chat-relay/internal/http/middleware"
)

// Relay processes one raw inbound event end to end.
type Relay interface {
	Handle(ctx context.Context, raw []byte) (domain.Outcome, error)
}

// Handlers aggregates the dependencies of the HTTP handlers.
type Handlers struct {
	relay Relay
}

// New constructs and returns a Handlers instance bound to the given relay.
func New(relay Relay) *Handlers {
	return &Handlers{relay: relay}
}

// WebhookResponse is the acknowledgement returned for every valid event.
type WebhookResponse struct {
	Status string `json:"status" example:"ok"`
}

// Webhook godoc
// @ID          postWebhook
// @Summary     Relay a chat event
// @Description Accepts one Telegram update, answers /start and /help with canned
// @Description replies, forwards other text to the completion provider and sends
// @Description the reply back to the same chat. Provider and delivery failures are
// @Description logged and still acknowledged with 200.
// @Tags        Webhook
// @Accept      json
// @Produce     json
//
// @Param       body  body  object  true  "Telegram update, e.g. {\"message\":{\"chat\":{\"id\":42},\"text\":\"hi\"}}"
//
// @Success     200  {object}  handlers.WebhookResponse  "Event accepted"
// @Failure     400  {object}  handlers.ErrorResponse    "Missing message, missing chat id or malformed JSON"
// @Failure     413  {object}  handlers.ErrorResponse    "Body too large"
// @Failure     500  {object}  handlers.ErrorResponse    "Internal error"
// @Router      /webhook [post]
func (h *Handlers) Webhook(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "request body too large")
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "could not read request body")
		return
	}

	out, err := h.relay.Handle(c.Request.Context(), raw)
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			fail(c, http.StatusBadRequest, ve.Code, ve.Reason)
			return
		}
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
		return
	}

	middleware.LoggerFrom(c).Debug().
		Str("chat_id", out.ConversationID.String()).
		Str("route", string(out.Route)).
		Bool("degraded", out.Degraded).
		Bool("delivered", out.Delivered).
		Msg("webhook handled")

	ok(c, http.StatusOK, WebhookResponse{Status: "ok"})
}
