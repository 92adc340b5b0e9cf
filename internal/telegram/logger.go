package telegram

import (
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// apiLogger направляет журнал tgbotapi в slog. Ошибки опроса обновлений
// содержат адрес запроса, токен из текста вырезается.
type apiLogger struct {
	log   *slog.Logger
	token string
}

// NewAPILogger создаёт журнал для tgbotapi.SetLogger.
func NewAPILogger(log *slog.Logger, token string) tgbotapi.BotLogger {
	return &apiLogger{log: log.With(slog.String("component", "tgbotapi")), token: token}
}

func (l *apiLogger) Println(v ...interface{}) {
	l.write(fmt.Sprintln(v...))
}

func (l *apiLogger) Printf(format string, v ...interface{}) {
	l.write(fmt.Sprintf(format, v...))
}

func (l *apiLogger) write(msg string) {
	msg = strings.TrimSpace(msg)
	if l.token != "" {
		msg = strings.ReplaceAll(msg, l.token, "<token>")
	}
	l.log.Warn(msg)
}
