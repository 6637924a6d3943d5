package smtp

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/mail"
	"net/smtp"

	"github.com/rivve/boarding-house/internal/config"
	"github.com/rivve/boarding-house/internal/lib/sl"
)

// Transport открывает сессии к SMTP серверу из конфига.
// *smtp.Client удовлетворяет интерфейсу Client напрямую.
type Transport struct {
	cfg  config.SMTP
	from mail.Address
	log  *slog.Logger
}

// NewTransport создает новый экземпляр Transport.
func NewTransport(cfg config.SMTP, log *slog.Logger) *Transport {
	address := cfg.FromAddress
	if address == "" {
		address = cfg.User
	}
	return &Transport{
		cfg:  cfg,
		from: mail.Address{Name: cfg.FromName, Address: address},
		log:  log.With(slog.String("component", "smtp")),
	}
}

// From возвращает отправителя писем.
func (t *Transport) From() mail.Address {
	return t.from
}

// Connect устанавливает соединение с SMTP сервером.
// Вне режима Insecure требует STARTTLS и авторизуется, если задан пользователь.
func (t *Transport) Connect() (Client, error) {
	const op = "smtp.Connect"
	addr := net.JoinHostPort(t.cfg.Host, t.cfg.Port)
	log := t.log.With(slog.String("op", op), slog.String("addr", addr))

	conn, err := net.DialTimeout("tcp", addr, t.cfg.DialTimeout)
	if err != nil {
		log.Error("failed to dial SMTP server", sl.Err(err))
		return nil, fmt.Errorf("%s: failed to dial SMTP server: %w", op, err)
	}

	client, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		_ = conn.Close()
		log.Error("failed to create SMTP client", sl.Err(err))
		return nil, fmt.Errorf("%s: failed to create SMTP client: %w", op, err)
	}

	if err := t.secure(client); err != nil {
		_ = client.Close()
		log.Error("failed to secure SMTP session", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return client, nil
}

func (t *Transport) secure(client *smtp.Client) error {
	if t.cfg.Insecure {
		return nil
	}
	if ok, _ := client.Extension("STARTTLS"); !ok {
		return fmt.Errorf("smtp server does not support STARTTLS")
	}
	if err := client.StartTLS(&tls.Config{ServerName: t.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}
	if t.cfg.User == "" {
		return nil
	}
	if err := client.Auth(smtp.PlainAuth("", t.cfg.User, t.cfg.Password, t.cfg.Host)); err != nil {
		return fmt.Errorf("smtp auth failed: %w", err)
	}
	return nil
}
