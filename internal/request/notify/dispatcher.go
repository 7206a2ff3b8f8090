package notify

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// Intent is one message the service wants sent. Intents are produced by the
// lifecycle operations and dispatched after the record store is written.
type Intent struct {
	Recipient string
	Template  string
	Data      Data
}

// Delivery is the outcome of one intent.
type Delivery struct {
	Recipient string `json:"recipient"`
	Template  string `json:"template"`
	Subject   string `json:"subject,omitempty"`
	Sent      bool   `json:"sent"`
	Error     string `json:"error,omitempty"`
}

// DispatcherConfig carries the values every template can use.
type DispatcherConfig struct {
	AppURL       string
	ContactEmail string
	SystemName   string
}

// Dispatcher renders intents and sends each independently.
type Dispatcher struct {
	sender Sender
	cfg    DispatcherConfig
	logger *zap.Logger
}

func NewDispatcher(sender Sender, cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SystemName == "" {
		cfg.SystemName = "Communications Request System"
	}
	return &Dispatcher{sender: sender, cfg: cfg, logger: logger}
}

// Dispatch sends every intent and never stops early. The result has one
// Delivery per intent, in order.
func (d *Dispatcher) Dispatch(ctx context.Context, intents []Intent) []Delivery {
	out := make([]Delivery, 0, len(intents))
	for _, in := range intents {
		del := Delivery{Recipient: in.Recipient, Template: in.Template}
		if strings.TrimSpace(in.Recipient) == "" {
			del.Error = "no recipient"
			out = append(out, del)
			continue
		}

		data := in.Data
		if data.AppURL == "" {
			data.AppURL = d.cfg.AppURL
		}
		if data.ContactEmail == "" {
			data.ContactEmail = d.cfg.ContactEmail
		}
		if data.SystemName == "" {
			data.SystemName = d.cfg.SystemName
		}

		subject, body, err := Render(in.Template, data)
		if err != nil {
			d.logger.Warn("Render mail failed", zap.String("template", in.Template), zap.Error(err))
			del.Error = err.Error()
			out = append(out, del)
			continue
		}
		del.Subject = subject
		del.Sent = d.sender.Send(ctx, in.Recipient, subject, body)
		if !del.Sent {
			del.Error = "send failed"
		}
		out = append(out, del)
	}
	return out
}
