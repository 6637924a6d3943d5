package rabbitmq

// QueueConfig очередь и ключ маршрутизации в обменнике уведомлений.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

const (
	// EmailQueue очередь писем для сервиса отправки
	EmailQueue = "notifications.email"
	// EmailRoutingKey ключ маршрутизации писем
	EmailRoutingKey = "email"
)

// GetNotificationQueues возвращает очереди, которые объявляют все процессы.
func GetNotificationQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: EmailQueue, RoutingKey: EmailRoutingKey},
	}
}
