package models

import "time"

// Message сообщение личной переписки.
type Message struct {
	ID        int64     `json:"id"`
	SenderUID string    `json:"sender_uid"`
	ToUID     string    `json:"to_uid"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// ConversationMessage сообщение переписки с точки зрения читающего.
type ConversationMessage struct {
	ID        int64     `json:"id"`
	FromSelf  bool      `json:"from_self"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
