package rabbitmq

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

// AppID отправитель, проставляемый в свойствах сообщений.
const AppID = "boardinghouse"

// Publisher канал, в который можно публиковать сообщения. Реализуется *amqp.Channel.
type Publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// PublishMessage сериализует message в JSON и публикует его как persistent-сообщение.
// messageType попадает в свойство type, MessageId уникален для каждой публикации.
func PublishMessage(ch Publisher, exchange, routingKey, messageType string, message any) error {
	const op = "rabbitmq.PublishMessage"
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Type:         messageType,
		AppId:        AppID,
		Body:         body,
	}
	if err := ch.Publish(exchange, routingKey, false, false, msg); err != nil {
		return fmt.Errorf("%s: %s: %w", op, messageType, err)
	}
	return nil
}
