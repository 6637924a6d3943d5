package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"

	"github.com/rivve/boarding-house/internal/lib/sl"
)

// Consumer канал, из которого можно потреблять сообщения. Реализуется *amqp.Channel.
type Consumer interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// maxInFlight предел одновременно обрабатываемых сообщений.
const maxInFlight = 10

// ConsumerMessage запускает потребителя очереди queueName.
// Сообщение подтверждается при успешной обработке и возвращается в очередь при ошибке.
// Возвращаемая функция wait блокируется до остановки потребителя и завершения обработчиков.
func ConsumerMessage(ctx context.Context, ch Consumer, queueName string, log *slog.Logger, handler func([]byte) error) (wait func(), err error) {
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
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log = log.With(slog.String("op", op), slog.String("queue", queueName))
	sem := make(chan struct{}, maxInFlight)
	var wg sync.WaitGroup
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case d, ok := <-delivery:
				if !ok {
					return
				}
				sem <- struct{}{}
				wg.Add(1)
				go func(d amqp.Delivery) {
					defer func() {
						<-sem
						wg.Done()
					}()
					if err := handler(d.Body); err != nil {
						log.Error("handler failed, requeue", sl.Err(err))
						if nackErr := d.Nack(false, true); nackErr != nil {
							log.Error("failed to nack message", sl.Err(nackErr))
						}
						return
					}
					if ackErr := d.Ack(false); ackErr != nil {
						log.Error("failed to ack message", sl.Err(ackErr))
					}
				}(d)
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		<-done
		wg.Wait()
	}, nil
}
