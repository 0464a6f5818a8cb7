package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Notifier envía alertas a canales externos.
type Notifier interface {
	Notify(ctx context.Context, msg AlertMessage) error
}

// AlertMessage describe una alerta operativa.
type AlertMessage struct {
	Title    string
	Text     string
	Severity string
}

// SlackNotifier publica alertas en un webhook de Slack.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewSlackNotifier crea el notificador; sin webhook devuelve nil y las
// alertas se quedan en el log.
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	if webhookURL == "" {
		return nil
	}
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 5 * time.Second},
	}
}

// Notify publica el mensaje en el webhook.
func (s *SlackNotifier) Notify(ctx context.Context, msg AlertMessage) error {
	if s == nil || s.webhookURL == "" {
		return errors.New("notificador de slack sin configurar")
	}

	payload := map[string]any{
		"text": formatSlackMessage(msg),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return errors.New("la notificación a slack falló")
	}
	return nil
}

// Alert publica una alerta de aviso; los fallos solo se registran para no
// encadenar un segundo incidente al primero.
func (s *SlackNotifier) Alert(ctx context.Context, message string) {
	if s == nil {
		log.Warn().Str("alert", message).Msg("alerta sin canal de notificación")
		return
	}
	if err := s.Notify(ctx, AlertMessage{Title: "vtramit", Text: message, Severity: "warning"}); err != nil {
		log.Error().Err(err).Str("alert", message).Msg("no se pudo publicar la alerta")
	}
}

func formatSlackMessage(msg AlertMessage) string {
	emoji := ":information_source:"
	switch msg.Severity {
	case "warning":
		emoji = ":warning:"
	case "critical":
		emoji = ":rotating_light:"
	}
	if msg.Title != "" {
		return emoji + " *" + msg.Title + "*\n" + msg.Text
	}
	return emoji + " " + msg.Text
}
