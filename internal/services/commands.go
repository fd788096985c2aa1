package services

import (
	"golang.org/x/text/language"

	"github.com/tbourn/go-chat-relay/internal/domain"
)

// Recognized control commands. Matching is exact and case-sensitive.
const (
	CommandStart = "/start"
	CommandHelp  = "/help"
)

// Route classifies a parsed message text. It is total: anything that is not an
// exact command token, including the empty string, is a content request.
func Route(text string) domain.RouteDecision {
	switch text {
	case CommandStart:
		return domain.RouteDecision{Kind: domain.RouteStart}
	case CommandHelp:
		return domain.RouteDecision{Kind: domain.RouteHelp}
	default:
		return domain.RouteDecision{Kind: domain.RouteContent, Text: text}
	}
}

// Replies holds the canned texts sent without contacting the completion
// provider. A catalog is chosen once at startup and never mutated.
type Replies struct {
	Welcome string
	Help    string
	Apology string
}

// For returns the canned reply of a command decision.
func (r Replies) For(kind domain.RouteKind) (string, bool) {
	switch kind {
	case domain.RouteStart:
		return r.Welcome, true
	case domain.RouteHelp:
		return r.Help, true
	default:
		return "", false
	}
}

var (
	repliesRU = Replies{
		Welcome: "Добро пожаловать! Напишите мне что-нибудь, и я помогу создать пост для Telegram.",
		Help:    "Список команд:\n/start - начать работу\n/help - помощь\nВведите текст для генерации.",
		Apology: "Извините, произошла ошибка при обработке вашего запроса.",
	}
	repliesEN = Replies{
		Welcome: "Welcome! Send me anything and I will help you write a Telegram post.",
		Help:    "Commands:\n/start - get started\n/help - help\nType any text to generate a post.",
		Apology: "Sorry, something went wrong while processing your request.",
	}

	replyTags    = []language.Tag{language.Russian, language.English}
	replyCatalog = []Replies{repliesRU, repliesEN}
	replyMatcher = language.NewMatcher(replyTags)
)

// DefaultReplies returns the Russian catalog.
func DefaultReplies() Replies { return repliesRU }

// RepliesFor picks the catalog closest to the given BCP 47 locale. Unknown or
// unparsable locales fall back to Russian.
func RepliesFor(locale string) Replies {
	tag, err := language.Parse(locale)
	if err != nil {
		return repliesRU
	}
	_, idx, conf := replyMatcher.Match(tag)
	if conf == language.No {
		return repliesRU
	}
	return replyCatalog[idx]
}
