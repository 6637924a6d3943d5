// Package sender получает письма из очереди, подставляет данные в шаблон
// и отправляет их через SMTP.
package sender

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"strings"
	"text/template"

	"github.com/rivve/boarding-house/internal/lib/sl"
	"github.com/rivve/boarding-house/internal/lib/smtp"
	"github.com/rivve/boarding-house/internal/models"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// ErrUnknownTemplate шаблон с таким именем не найден.
var ErrUnknownTemplate = errors.New("sender: unknown template")

type SenderService struct {
	transport smtp.Dialer
	templates *template.Template
	log       *slog.Logger
}

// NewSenderService создает новый экземпляр SenderService.
func NewSenderService(transport smtp.Dialer, log *slog.Logger) (*SenderService, error) {
	const op = "sender.NewSenderService"
	tmpl, err := template.New("").Option("missingkey=zero").ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &SenderService{
		transport: transport,
		templates: tmpl,
		log:       log,
	}, nil
}

// Render подставляет данные письма в шаблон.
func (s *SenderService) Render(n models.Notification) (string, error) {
	const op = "sender.Render"
	tmpl := s.templates.Lookup(n.Template + ".tmpl")
	if tmpl == nil {
		return "", fmt.Errorf("%s: %q: %w", op, n.Template, ErrUnknownTemplate)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, n.Data); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return buf.String(), nil
}

// HandleMessage обработчик очереди писем.
// Некорректные сообщения логируются и подтверждаются, ошибки SMTP возвращаются для повторной доставки.
func (s *SenderService) HandleMessage(body []byte) error {
	const op = "sender.HandleMessage"
	log := s.log.With(slog.String("op", op))

	var n models.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		log.Error("failed to unmarshal message body, dropping", sl.Err(err))
		return nil
	}
	if n.Email == "" {
		log.Error("message without recipient, dropping", slog.String("template", n.Template))
		return nil
	}
	text, err := s.Render(n)
	if err != nil {
		log.Error("failed to render message, dropping", slog.String("template", n.Template), sl.Err(err))
		return nil
	}
	return s.sendEmail([]string{n.Email}, n.Subject, text)
}

func (s *SenderService) sendEmail(to []string, subject, bodyText string) error {
	from := s.transport.From()
	msg := strings.Join([]string{
		"From: " + from.String(),
		"To: " + strings.Join(to, ", "),
		"Subject: " + mime.QEncoding.Encode("utf-8", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect()
	if err != nil {
		s.log.Error("Failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer func() { _ = client.Close() }()

	if err := client.Mail(from.Address); err != nil {
		s.log.Error("Failed to set MAIL FROM", slog.String("from", from.Address), sl.Err(err))
		return err
	}

	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			s.log.Error("Failed to set RCPT TO", slog.String("recipient", addr), sl.Err(err))
			return err
		}
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("Failed to get Data writer", sl.Err(err))
		return err
	}

	if _, err = wc.Write([]byte(msg)); err != nil {
		s.log.Error("Failed to write email body", sl.Err(err))
		return err
	}

	if err = wc.Close(); err != nil {
		s.log.Error("Failed to close Data writer", sl.Err(err))
		return err
	}

	if err = client.Quit(); err != nil {
		s.log.Error("Failed to quit SMTP client", sl.Err(err))
		return err
	}

	s.log.Info("email sent successfully", slog.Any("to", to))
	return nil
}
