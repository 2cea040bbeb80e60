package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coreledger/internal/notify/channel"
)

type captureChannel struct {
	sent []channel.Message
}

func (c *captureChannel) Type() channel.ChannelType { return channel.ChannelTypeEmail }
func (c *captureChannel) Send(ctx context.Context, msg channel.Message) error {
	c.sent = append(c.sent, msg)
	return nil
}
func (c *captureChannel) Test(ctx context.Context, recipient string) error { return nil }

func TestDispatcher_SendBillingStatementFeeCharged(t *testing.T) {
	cap := &captureChannel{}
	d := NewDispatcher(cap)

	err := d.Send(context.Background(), Message{
		Kind:         KindBillingStatement,
		Recipient:    "owner@example.com",
		OwnerName:    "Jordan",
		BillingMonth: "July 2026",
		FeeCharged:   true,
		FeeAmount:    "15.00",
	})
	require.NoError(t, err)
	require.Len(t, cap.sent, 1)
	assert.Contains(t, cap.sent[0].Subject, "July 2026")
	assert.Equal(t, []string{"owner@example.com"}, cap.sent[0].Recipients)
}

func TestDispatcher_SendUnknownKind(t *testing.T) {
	cap := &captureChannel{}
	d := NewDispatcher(cap)

	err := d.Send(context.Background(), Message{Kind: "bogus", Recipient: "x@example.com"})
	require.Error(t, err)
}

func TestDispatcher_SendRequiresRecipient(t *testing.T) {
	cap := &captureChannel{}
	d := NewDispatcher(cap)

	err := d.Send(context.Background(), Message{Kind: KindAccountOpen})
	require.Error(t, err)
	assert.Empty(t, cap.sent)
}
