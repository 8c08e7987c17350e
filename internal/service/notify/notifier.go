// Package notify delivers operator notifications: camera escalations, weekly
// reports and manual messages.
package notify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/cropwatch/internal/config"
	"github.com/mamadbah2/cropwatch/internal/domain/models"
	client "github.com/mamadbah2/cropwatch/pkg/clients/whatsapp"
)

const sendTimeout = 10 * time.Second

// ErrNoRecipient is returned when a message has no destination.
var ErrNoRecipient = errors.New("notification recipient is not configured")

// Notifier sends a text to the configured operator.
type Notifier interface {
	Notify(ctx context.Context, message string) error
	SendOutbound(ctx context.Context, req models.OutboundMessageRequest) error
}

// WhatsAppNotifier is backed by the WhatsApp Cloud API.
type WhatsAppNotifier struct {
	recipient string
	client    client.Client
	logger    *zap.Logger
}

// NewWhatsAppNotifier wires a notifier sending to cfg.Recipient by default.
func NewWhatsAppNotifier(cfg config.WhatsAppConfig, client client.Client, logger *zap.Logger) *WhatsAppNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WhatsAppNotifier{recipient: cfg.Recipient, client: client, logger: logger}
}

func (n *WhatsAppNotifier) Notify(ctx context.Context, message string) error {
	return n.SendOutbound(ctx, models.OutboundMessageRequest{To: n.recipient, Message: message})
}

// SendOutbound sends a message; an empty To falls back to the configured recipient.
func (n *WhatsAppNotifier) SendOutbound(ctx context.Context, req models.OutboundMessageRequest) error {
	to := req.To
	if to == "" {
		to = n.recipient
	}
	if to == "" {
		return ErrNoRecipient
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	resp, err := n.client.SendTextMessage(ctxWithTimeout, client.SendTextMessageRequest{
		To:         to,
		Body:       req.Message,
		PreviewURL: req.PreviewURL,
	})
	if err != nil {
		return err
	}

	fields := []zap.Field{zap.String("to", to)}
	if resp != nil && len(resp.Messages) > 0 {
		fields = append(fields, zap.String("message_id", resp.Messages[0].ID))
	}
	n.logger.Info("notification sent", fields...)
	return nil
}

// LogNotifier writes notifications to the log when no messaging channel is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, message string) error {
	n.logger.Info("notification", zap.String("message", message))
	return nil
}

func (n *LogNotifier) SendOutbound(_ context.Context, req models.OutboundMessageRequest) error {
	n.logger.Info("notification", zap.String("to", req.To), zap.String("message", req.Message))
	return nil
}
