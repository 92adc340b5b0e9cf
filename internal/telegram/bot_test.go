package telegram

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/tutor-bot/internal/config"
	"github.com/magabrotheeeer/tutor-bot/internal/lib/date"
	"github.com/magabrotheeeer/tutor-bot/internal/models"
	"github.com/magabrotheeeer/tutor-bot/internal/services/gate"
)

type fakeSender struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	sendErr  error
}

func (s *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return tgbotapi.Message{}, s.sendErr
	}
	s.sent = append(s.sent, c)
	return tgbotapi.Message{}, nil
}

func (s *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (s *fakeSender) messages() []tgbotapi.MessageConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []tgbotapi.MessageConfig
	for _, c := range s.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m)
		}
	}
	return out
}

type HandlerMock struct{ mock.Mock }

func (m *HandlerMock) Handle(ctx context.Context, action models.Action) gate.Outcome {
	return m.Called(ctx, action).Get(0).(gate.Outcome)
}

type limiterStub struct{ allow bool }

func (l limiterStub) Allow(int64) bool { return l.allow }

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func newTestBot(sender Sender, handler Handler, limiter Limiter) *Bot {
	return New(sender, handler, limiter, config.Telegram{
		ProviderToken:  "provider-token",
		Workers:        2,
		RequestTimeout: time.Second,
	}, plan, newNoopLogger())
}

func kindIs(kind models.ActionKind) any {
	return mock.MatchedBy(func(a models.Action) bool { return a.Kind == kind })
}

func TestBot_HandleUpdate_Reply(t *testing.T) {
	sender := &fakeSender{}
	handler := new(HandlerMock)
	handler.On("Handle", mock.Anything, mock.MatchedBy(func(a models.Action) bool {
		return a.Kind == models.ActionSolve && a.Payload == "2+2" && a.RequestID != ""
	})).Return(gate.Outcome{Kind: gate.OutcomeReply, Text: "4"}).Once()

	bot := newTestBot(sender, handler, limiterStub{allow: true})
	bot.HandleUpdate(context.Background(), command("/solve 2+2", 6))

	msgs := sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(4242), msgs[0].ChatID)
	assert.Equal(t, 11, msgs[0].ReplyToMessageID)
	assert.Equal(t, "4", msgs[0].Text)
	handler.AssertExpectations(t)
}

func TestBot_HandleUpdate_LongReplyIsSplit(t *testing.T) {
	sender := &fakeSender{}
	handler := new(HandlerMock)
	handler.On("Handle", mock.Anything, kindIs(models.ActionExplain)).
		Return(gate.Outcome{Kind: gate.OutcomeReply, Text: strings.Repeat("a", messageLimit+10)}).Once()

	bot := newTestBot(sender, handler, limiterStub{allow: true})
	bot.HandleUpdate(context.Background(), command("/explain дроби", 8))

	msgs := sender.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, 11, msgs[0].ReplyToMessageID)
	assert.Zero(t, msgs[1].ReplyToMessageID)
	assert.Len(t, msgs[1].Text, 10)
}

func TestBot_HandleUpdate_Invoice(t *testing.T) {
	sender := &fakeSender{}
	handler := new(HandlerMock)
	handler.On("Handle", mock.Anything, kindIs(models.ActionSubscribe)).
		Return(gate.Outcome{Kind: gate.OutcomeInvoice}).Once()

	bot := newTestBot(sender, handler, limiterStub{allow: true})
	bot.HandleUpdate(context.Background(), command("/subscribe", 10))

	require.Len(t, sender.sent, 1)
	invoice, ok := sender.sent[0].(tgbotapi.InvoiceConfig)
	require.True(t, ok)
	assert.Equal(t, int64(4242), invoice.ChatID)
	assert.Equal(t, "monthly_subscription", invoice.Payload)
	assert.Equal(t, "provider-token", invoice.ProviderToken)
	assert.Equal(t, "RUB", invoice.Currency)
	assert.Equal(t, []tgbotapi.LabeledPrice{{Label: "Подписка", Amount: 50000}}, invoice.Prices)
	assert.NotNil(t, invoice.SuggestedTipAmounts)
}

func TestBot_HandleUpdate_InvoiceFailure(t *testing.T) {
	sender := &fakeSender{sendErr: errors.New("network")}
	handler := new(HandlerMock)
	handler.On("Handle", mock.Anything, kindIs(models.ActionSubscribe)).
		Return(gate.Outcome{Kind: gate.OutcomeInvoice}).Once()

	bot := newTestBot(sender, handler, limiterStub{allow: true})
	bot.HandleUpdate(context.Background(), command("/subscribe", 10))

	assert.Empty(t, sender.sent)
	handler.AssertExpectations(t)
}

func TestBot_HandleUpdate_PreCheckout(t *testing.T) {
	tests := []struct {
		name    string
		outcome gate.OutcomeKind
		wantOK  bool
	}{
		{name: "accepted", outcome: gate.OutcomeCheckoutAccepted, wantOK: true},
		{name: "rejected", outcome: gate.OutcomeInvalidInput, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{}
			handler := new(HandlerMock)
			handler.On("Handle", mock.Anything, kindIs(models.ActionPreCheckout)).
				Return(gate.Outcome{Kind: tt.outcome}).Once()

			// Платёжные обновления не ограничиваются по частоте.
			bot := newTestBot(sender, handler, limiterStub{allow: false})
			bot.HandleUpdate(context.Background(), tgbotapi.Update{PreCheckoutQuery: &tgbotapi.PreCheckoutQuery{
				ID:   "query-1",
				From: &tgbotapi.User{ID: 42},
			}})

			require.Len(t, sender.requests, 1)
			answer, ok := sender.requests[0].(tgbotapi.PreCheckoutConfig)
			require.True(t, ok)
			assert.Equal(t, "query-1", answer.PreCheckoutQueryID)
			assert.Equal(t, tt.wantOK, answer.OK)
			assert.Empty(t, sender.sent)
		})
	}
}

func TestBot_HandleUpdate_RateLimited(t *testing.T) {
	sender := &fakeSender{}
	handler := new(HandlerMock)

	bot := newTestBot(sender, handler, limiterStub{allow: false})
	bot.HandleUpdate(context.Background(), command("/solve 2+2", 6))

	msgs := sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, textRateLimited, msgs[0].Text)
	handler.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything)
}

func TestBot_HandleUpdate_IgnoresUnrelated(t *testing.T) {
	sender := &fakeSender{}
	handler := new(HandlerMock)

	bot := newTestBot(sender, handler, limiterStub{allow: true})
	bot.HandleUpdate(context.Background(), tgbotapi.Update{Message: message("просто текст")})

	assert.Empty(t, sender.sent)
	handler.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything)
}

func TestBot_Run(t *testing.T) {
	sender := &fakeSender{}
	handler := new(HandlerMock)
	handler.On("Handle", mock.Anything, kindIs(models.ActionHelp)).
		Return(gate.Outcome{Kind: gate.OutcomeHelp}).Times(5)

	updates := make(chan tgbotapi.Update, 5)
	for range 5 {
		updates <- command("/help", 5)
	}
	close(updates)

	bot := newTestBot(sender, handler, limiterStub{allow: true})
	require.NoError(t, bot.Run(context.Background(), updates))

	assert.Len(t, sender.messages(), 5)
	handler.AssertExpectations(t)
}

func TestBot_RunStopsOnCancel(t *testing.T) {
	bot := newTestBot(&fakeSender{}, new(HandlerMock), limiterStub{allow: true})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- bot.Run(ctx, make(chan tgbotapi.Update)) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

type subsStub struct {
	sub *models.Subscription
	err error
}

func (s subsStub) Get(context.Context, int64) (*models.Subscription, error) { return s.sub, s.err }

func window(end time.Time) subsStub {
	return subsStub{sub: &models.Subscription{UserID: 42, StartDate: end.AddDate(0, 0, -3), EndDate: end}}
}

// tokenErr ошибка транспорта в том виде, в каком её возвращает net/http.
var tokenErr = &url.Error{
	Op:  "Post",
	URL: "https://api.telegram.org/bot123:SECRET/sendMessage",
	Err: errors.New("dial tcp: connection refused"),
}

func TestBot_ExpiryNoticeHandler(t *testing.T) {
	const notice = `{"user_id":42,"end_date":"2024-05-04"}`
	endDate := date.Of(2024, 5, 4)

	t.Run("sends reminder", func(t *testing.T) {
		sender := &fakeSender{}
		handle := newTestBot(sender, nil, nil).ExpiryNoticeHandler(window(endDate))

		require.NoError(t, handle([]byte(notice)))
		msgs := sender.messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, int64(42), msgs[0].ChatID)
		assert.Equal(t, RenderExpiryNotice(endDate), msgs[0].Text)
	})

	t.Run("malformed message is dropped", func(t *testing.T) {
		sender := &fakeSender{}
		handle := newTestBot(sender, nil, nil).ExpiryNoticeHandler(window(endDate))

		assert.NoError(t, handle([]byte(`{not json`)))
		assert.NoError(t, handle([]byte(`{"user_id":42,"end_date":"04.05.2024"}`)))
		assert.Empty(t, sender.sent)
	})

	t.Run("window extended after scan is skipped", func(t *testing.T) {
		sender := &fakeSender{}
		handle := newTestBot(sender, nil, nil).ExpiryNoticeHandler(window(date.Of(2024, 6, 3)))

		assert.NoError(t, handle([]byte(notice)))
		assert.Empty(t, sender.sent)
	})

	t.Run("absent record is skipped", func(t *testing.T) {
		sender := &fakeSender{}
		handle := newTestBot(sender, nil, nil).ExpiryNoticeHandler(subsStub{})

		assert.NoError(t, handle([]byte(notice)))
		assert.Empty(t, sender.sent)
	})

	t.Run("store failure is retried", func(t *testing.T) {
		sender := &fakeSender{}
		handle := newTestBot(sender, nil, nil).ExpiryNoticeHandler(subsStub{err: errors.New("store unavailable")})

		assert.Error(t, handle([]byte(notice)))
		assert.Empty(t, sender.sent)
	})

	t.Run("api rejection is dropped", func(t *testing.T) {
		sender := &fakeSender{sendErr: &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}}
		handle := newTestBot(sender, nil, nil).ExpiryNoticeHandler(window(endDate))

		assert.NoError(t, handle([]byte(notice)))
	})

	t.Run("network error is retried without token", func(t *testing.T) {
		sender := &fakeSender{sendErr: tokenErr}
		handle := newTestBot(sender, nil, nil).ExpiryNoticeHandler(window(endDate))

		err := handle([]byte(notice))
		require.Error(t, err)
		assert.NotContains(t, err.Error(), "SECRET")
	})
}

func TestBot_SendErrorsHideToken(t *testing.T) {
	tests := []struct {
		name    string
		cmd     string
		outcome gate.Outcome
	}{
		{name: "reply", cmd: "/help", outcome: gate.Outcome{Kind: gate.OutcomeHelp}},
		{name: "invoice", cmd: "/subscribe", outcome: gate.Outcome{Kind: gate.OutcomeInvoice}},
		{name: "long reply", cmd: "/help", outcome: gate.Outcome{Kind: gate.OutcomeReply, Text: strings.Repeat("a", messageLimit+1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			handler := new(HandlerMock)
			handler.On("Handle", mock.Anything, mock.Anything).Return(tt.outcome).Once()

			bot := New(&fakeSender{sendErr: tokenErr}, handler, limiterStub{allow: true}, config.Telegram{Workers: 1},
				plan, slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{})))
			bot.HandleUpdate(context.Background(), command(tt.cmd, len(tt.cmd)))

			assert.Contains(t, buf.String(), "connection refused")
			assert.NotContains(t, buf.String(), "SECRET")
		})
	}
}
