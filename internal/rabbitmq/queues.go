package rabbitmq

// Exchange обменник для событий подписок.
const Exchange = "subscriptions"

// Ключи маршрутизации.
const (
	RoutingTrialActivated   = "trial.activated"
	RoutingPaymentConfirmed = "payment.confirmed"
	RoutingExpiring         = "expiring"
)

// Очереди.
const (
	QueueExpiring = "subscriptions.expiring"
	QueueGrants   = "subscriptions.grants"
)

// QueueConfig описывает очередь и ключи, которыми она привязана к обменнику.
type QueueConfig struct {
	QueueName   string
	RoutingKeys []string
}

// GetSubscriptionQueues возвращает очереди, которые нужны боту и планировщику.
func GetSubscriptionQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: QueueExpiring, RoutingKeys: []string{RoutingExpiring}},
		{QueueName: QueueGrants, RoutingKeys: []string{RoutingTrialActivated, RoutingPaymentConfirmed}},
	}
}
