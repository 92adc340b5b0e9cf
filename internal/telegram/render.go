package telegram

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/magabrotheeeer/tutor-bot/internal/config"
	"github.com/magabrotheeeer/tutor-bot/internal/models"
	"github.com/magabrotheeeer/tutor-bot/internal/services/gate"
)

const displayLayout = "02.01.2006"

const helpText = `Я цифровой учитель! Вот что я умею:

/solve [задача] - решить задачу
/explain [тема] - объяснить тему
Отправьте мне фото с текстом, и я его распознаю

/status - состояние подписки
/subscribe - оформить подписку`

const (
	textDenied        = "Для использования этой функции необходима активная подписка. Оформить: /subscribe"
	textStoreFailure  = "Сервис временно недоступен. Попробуйте позже."
	textCollaborator  = "Извините, произошла ошибка при обработке вашего запроса."
	textNoText        = "Не удалось распознать текст на изображении."
	textInvalidSolve  = "Пожалуйста, укажите задачу после команды /solve."
	textInvalidTopic  = "Пожалуйста, укажите тему после команды /explain."
	textInvalidOther  = "Не удалось разобрать запрос. Список команд: /help"
	textNoSub         = "У вас ещё нет подписки. Отправьте /start, чтобы активировать пробный период."
	textRateLimited   = "Слишком много запросов. Подождите немного."
	textCheckoutError = "Не удалось обработать платёж. Попробуйте позже."
)

func day(t time.Time) string {
	return t.Format(displayLayout)
}

// Render возвращает текст ответа на действие kind с результатом out.
func Render(kind models.ActionKind, out gate.Outcome, plan config.Plan) string {
	sub := out.Subscription

	switch out.Kind {
	case gate.OutcomeReply:
		if kind == models.ActionImage {
			return "Распознанный текст:\n\n" + out.Text
		}
		return out.Text
	case gate.OutcomeDenied:
		return textDenied
	case gate.OutcomeStoreFailure:
		return textStoreFailure
	case gate.OutcomeCollaboratorFailure:
		return textCollaborator
	case gate.OutcomeNoTextFound:
		return textNoText
	case gate.OutcomeInvalidInput:
		switch kind {
		case models.ActionSolve:
			return textInvalidSolve
		case models.ActionExplain:
			return textInvalidTopic
		}
		return textInvalidOther
	case gate.OutcomeHelp:
		return helpText
	case gate.OutcomeTrialActivated:
		return fmt.Sprintf("Добро пожаловать! Ваш %d-дневный пробный период активирован до %s.", plan.TrialDays, day(sub.EndDate))
	case gate.OutcomeWelcomeBack:
		return fmt.Sprintf("С возвращением! Ваша подписка активна до %s.", day(sub.EndDate))
	case gate.OutcomeExpired:
		return fmt.Sprintf("Срок вашей подписки истёк %s. Оформить подписку: /subscribe", day(sub.EndDate))
	case gate.OutcomeStatus:
		switch {
		case sub == nil:
			return textNoSub
		case out.Entitled:
			return fmt.Sprintf("Подписка активна с %s по %s включительно.", day(sub.StartDate), day(sub.EndDate))
		default:
			return fmt.Sprintf("Подписка истекла %s. Оформить подписку: /subscribe", day(sub.EndDate))
		}
	case gate.OutcomeAlreadySubscribed:
		return fmt.Sprintf("У вас уже есть активная подписка до %s.", day(sub.EndDate))
	case gate.OutcomePaymentApplied:
		return fmt.Sprintf("Спасибо за подписку! Ваша подписка активирована на %d дней, до %s.", plan.PaidDays, day(sub.EndDate))
	case gate.OutcomePaymentDuplicate:
		if sub == nil {
			return "Этот платёж уже учтён."
		}
		return fmt.Sprintf("Этот платёж уже учтён. Подписка активна до %s.", day(sub.EndDate))
	}
	return textInvalidOther
}

// RenderExpiryNotice текст напоминания об окончании доступа.
func RenderExpiryNotice(endDate time.Time) string {
	return fmt.Sprintf("Ваша подписка действует последний день (%s). Продлить: /subscribe", day(endDate))
}

// split делит текст на части не длиннее limit. Длина считается в кодовых
// единицах UTF-16, как её считает Bot API.
func split(text string, limit int) []string {
	var (
		parts []string
		part  strings.Builder
		units int
	)
	for _, r := range text {
		n := utf16.RuneLen(r)
		if units+n > limit && part.Len() > 0 {
			parts = append(parts, part.String())
			part.Reset()
			units = 0
		}
		part.WriteRune(r)
		units += n
	}
	if part.Len() > 0 || len(parts) == 0 {
		parts = append(parts, part.String())
	}
	return parts
}
