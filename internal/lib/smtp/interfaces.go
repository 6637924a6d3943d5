// Package smtp предоставляет SMTP транспорт для отправки писем.
package smtp

import (
	"io"
	"net/mail"
)

// Client открытая SMTP-сессия.
type Client interface {
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
}

// Dialer открывает SMTP-сессии от имени одного отправителя.
type Dialer interface {
	Connect() (Client, error)
	From() mail.Address
}
