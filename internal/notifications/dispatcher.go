// internal/notifications/dispatcher.go - Transition alerts over the message gateway
package notifications

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
	"time"

	"github.com/sirupsen/logrus"

	"solarwatch/internal/config"
	"solarwatch/internal/status"
)

// The operators are Brazilian; the message keeps the wording their phones
// have always received.
const defaultTemplate = `ALERTA MONITORAMENTO SOLAR

Usina: {{.Site}}
Status atual: {{.New}}
Responsável técnico: {{if .Contact}}{{.Contact}}{{else}}não cadastrado{{end}}
Data/hora: {{.Timestamp.Format "02/01/2006 15:04:05"}}`

// Event describes one qualifying status transition. It is transient:
// built, dispatched, discarded.
type Event struct {
	Site      string
	Previous  status.Status
	New       status.Status
	Contact   string
	Timestamp time.Time
}

// ShouldAlert implements the single alerting rule: the state must have
// changed from a known previous state, and the new state must be
// degraded. Recoveries and first observations stay quiet.
func ShouldAlert(prev *status.Status, next status.Status) bool {
	if prev == nil || *prev == next {
		return false
	}
	return next == status.Offline || next == status.Error
}

// Dispatcher renders and submits transition alerts. Send failures are
// logged and swallowed: losing one alert must never fail a cycle, and
// there is no retry inside the cycle that produced it.
type Dispatcher struct {
	client *Client
	tmpl   *template.Template
}

func NewDispatcher(cfg config.GatewayConfig, client *Client) (*Dispatcher, error) {
	text := cfg.Template
	if text == "" {
		text = defaultTemplate
	}

	tmpl, err := template.New("alert").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse alert template: %w", err)
	}

	return &Dispatcher{client: client, tmpl: tmpl}, nil
}

// Dispatch sends one alert for the event. Errors are terminal here.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) {
	text, err := d.render(event)
	if err != nil {
		logrus.WithError(err).WithField("site", event.Site).Error("Failed to render alert")
		return
	}

	if err := d.client.SendText(ctx, text); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"site":   event.Site,
			"status": event.New,
		}).Error("Failed to send alert")
		return
	}

	logrus.WithFields(logrus.Fields{
		"site":     event.Site,
		"previous": event.Previous,
		"status":   event.New,
	}).Info("Alert sent")
}

func (d *Dispatcher) render(event Event) (string, error) {
	var buf bytes.Buffer
	if err := d.tmpl.Execute(&buf, event); err != nil {
		return "", fmt.Errorf("failed to execute alert template: %w", err)
	}
	return buf.String(), nil
}
