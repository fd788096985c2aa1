package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// zerologAdapter routes the Bot API library's log lines to zerolog at debug
// level.
type zerologAdapter struct {
	l zerolog.Logger
}

func (a zerologAdapter) Println(v ...interface{}) {
	a.l.Debug().Msg(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func (a zerologAdapter) Printf(format string, v ...interface{}) {
	a.l.Debug().Msg(strings.TrimSuffix(fmt.Sprintf(format, v...), "\n"))
}

// UseLogger installs l as the Bot API library logger.
func UseLogger(l zerolog.Logger) error {
	return tgbotapi.SetLogger(zerologAdapter{l: l.With().Str("component", "tgbotapi").Logger()})
}
