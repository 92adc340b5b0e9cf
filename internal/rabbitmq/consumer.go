package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/tutor-bot/internal/lib/sl"
)

// RequeueDelay пауза перед возвратом сообщения в очередь после ошибки обработчика.
// Пока она идёт, worker занят, поэтому при недоступности внешнего сервиса
// повторные доставки идут не чаще workers сообщений за RequeueDelay.
const RequeueDelay = 3 * time.Second

// ConsumerMessage запускает потребителя очереди queueName.
// Сообщение подтверждается, если handler вернул nil, иначе возвращается в очередь
// через RequeueDelay. Одновременно обрабатывается не больше workers сообщений.
func ConsumerMessage(ctx context.Context, ch *amqp.Channel, queueName string, workers int, log *slog.Logger, handler func([]byte) error) error {
	const op = "rabbitmq.ConsumerMessage"
	delivery, err := ch.Consume(
		queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if workers < 1 {
		workers = 1
	}
	log = log.With(slog.String("op", op), slog.String("queue", queueName))

	sem := make(chan struct{}, workers)
	go func() {
		for {
			select {
			case d, ok := <-delivery:
				if !ok {
					return
				}
				sem <- struct{}{}
				go func(delivery amqp.Delivery) {
					defer func() { <-sem }()
					if err := handler(delivery.Body); err != nil {
						log.Warn("handler failed, requeue message", sl.Err(err))
						wait(ctx, RequeueDelay)
						if nackErr := delivery.Nack(false, true); nackErr != nil {
							log.Error("failed to nack message", sl.Err(nackErr))
						}
						return
					}
					if ackErr := delivery.Ack(false); ackErr != nil {
						log.Error("failed to ack message", sl.Err(ackErr))
					}
				}(d)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func wait(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
