package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mamadbah2/cropwatch/internal/config"
	"github.com/mamadbah2/cropwatch/internal/domain/models"
	client "github.com/mamadbah2/cropwatch/pkg/clients/whatsapp"
)

type fakeClient struct {
	sent []client.SendTextMessageRequest
	err  error
}

func (f *fakeClient) SendTextMessage(_ context.Context, req client.SendTextMessageRequest) (*client.SendTextMessageResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, req)
	return &client.SendTextMessageResponse{}, nil
}

func TestNotifySendsToConfiguredRecipient(t *testing.T) {
	fc := &fakeClient{}
	n := NewWhatsAppNotifier(config.WhatsAppConfig{Recipient: "22100000"}, fc, nil)

	require.NoError(t, n.Notify(context.Background(), "camera down"))
	require.Len(t, fc.sent, 1)
	assert.Equal(t, "22100000", fc.sent[0].To)
	assert.Equal(t, "camera down", fc.sent[0].Body)
}

func TestSendOutboundPrefersExplicitRecipient(t *testing.T) {
	fc := &fakeClient{}
	n := NewWhatsAppNotifier(config.WhatsAppConfig{Recipient: "22100000"}, fc, nil)

	require.NoError(t, n.SendOutbound(context.Background(), models.OutboundMessageRequest{To: "22199999", Message: "hi", PreviewURL: true}))
	require.Len(t, fc.sent, 1)
	assert.Equal(t, "22199999", fc.sent[0].To)
	assert.True(t, fc.sent[0].PreviewURL)
}

func TestSendOutboundWithoutRecipient(t *testing.T) {
	n := NewWhatsAppNotifier(config.WhatsAppConfig{}, &fakeClient{}, nil)
	assert.ErrorIs(t, n.Notify(context.Background(), "hi"), ErrNoRecipient)
}

func TestSendOutboundPropagatesClientErrors(t *testing.T) {
	boom := errors.New("rate limited")
	n := NewWhatsAppNotifier(config.WhatsAppConfig{Recipient: "1"}, &fakeClient{err: boom}, nil)
	assert.ErrorIs(t, n.Notify(context.Background(), "hi"), boom)
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	n := NewLogNotifier(zap.New(core))

	require.NoError(t, n.Notify(context.Background(), "weekly report"))
	entries := logs.FilterMessage("notification").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "weekly report", entries[0].ContextMap()["message"])
}
