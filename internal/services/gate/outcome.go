package gate

import "github.com/magabrotheeeer/tutor-bot/internal/models"

// OutcomeKind тип результата обработки действия.
type OutcomeKind string

const (
	OutcomeReply               OutcomeKind = "reply"
	OutcomeDenied              OutcomeKind = "denied"
	OutcomeInvalidInput        OutcomeKind = "invalid_input"
	OutcomeStoreFailure        OutcomeKind = "store_failure"
	OutcomeCollaboratorFailure OutcomeKind = "collaborator_failure"
	OutcomeNoTextFound         OutcomeKind = "no_text_found"
	OutcomeTrialActivated      OutcomeKind = "trial_activated"
	OutcomeWelcomeBack         OutcomeKind = "welcome_back"
	OutcomeExpired             OutcomeKind = "expired"
	OutcomeHelp                OutcomeKind = "help"
	OutcomeStatus              OutcomeKind = "status"
	OutcomeInvoice             OutcomeKind = "invoice"
	OutcomeAlreadySubscribed   OutcomeKind = "already_subscribed"
	OutcomeCheckoutAccepted    OutcomeKind = "checkout_accepted"
	OutcomePaymentApplied      OutcomeKind = "payment_applied"
	OutcomePaymentDuplicate    OutcomeKind = "payment_duplicate"
)

// Outcome результат обработки одного действия. Транспорт превращает его в ответ пользователю.
type Outcome struct {
	Kind OutcomeKind
	// Text ответ внешнего сервиса для OutcomeReply.
	Text string
	// Subscription текущее окно доступа, если оно известно.
	Subscription *models.Subscription
	// Entitled действует ли доступ на момент действия.
	Entitled bool
}
