// Package notify implements the outgoing notification interface (§6 Email
// proxy): tagged outbound messages rendered to an email via Hermes
// templates and handed to a notify/channel.Channel for delivery. Front-end
// delivery confirmation, retry queues, and template authoring UI are out of
// scope (§1) — this package only owns "what message, to whom, with what
// content".
package notify

import (
	"context"
	"fmt"

	"coreledger/internal/notify/channel"
)

// Kind tags each outbound message variant named in §6.
type Kind string

const (
	KindBillingStatement                     Kind = "billing_statement"
	KindAccountOpen                           Kind = "account_open"
	KindAccountClose                          Kind = "account_close"
	KindInternalTransferBetweenOrgsDeposited  Kind = "internal_transfer_between_orgs_deposited"
	KindPurchaseDeclined                      Kind = "purchase_declined"
	KindEmployeeInvite                        Kind = "employee_invite"
)

// Message is one outbound notification request, carrying only the fields
// its Kind's template needs.
type Message struct {
	Kind      Kind
	Recipient string

	OwnerName    string
	AccountLast4 string
	Amount       string
	Currency     string
	BillingMonth string
	FeeCharged   bool
	FeeAmount    string

	DeclineReason string

	InviteToken string
	InviteeName string
}

// Dispatcher renders a Message to an email and sends it through a channel.
// Channel. It is the collaborator the account/employee actors hold for
// every "queue a notification" side effect in §4.4's dispatch table.
type Dispatcher struct {
	ch channel.Channel
}

// NewDispatcher wraps a delivery channel (e.g. a SendGridChannel).
func NewDispatcher(ch channel.Channel) *Dispatcher {
	return &Dispatcher{ch: ch}
}

// Send renders msg per its Kind and delivers it. A template miss (unknown
// Kind) is a programming error, not a business failure, so it returns a
// plain error rather than a typed one.
func (d *Dispatcher) Send(ctx context.Context, msg Message) error {
	if msg.Recipient == "" {
		return fmt.Errorf("notify: message %s has no recipient", msg.Kind)
	}

	subject, body, htmlBody, err := render(msg)
	if err != nil {
		return fmt.Errorf("notify: render %s: %w", msg.Kind, err)
	}

	return d.ch.Send(ctx, channel.Message{
		Subject:    subject,
		Body:       body,
		HTMLBody:   htmlBody,
		Recipients: []string{msg.Recipient},
	})
}

func render(msg Message) (subject, body, htmlBody string, err error) {
	switch msg.Kind {
	case KindBillingStatement:
		return billingStatementTemplate(msg)
	case KindAccountOpen:
		return accountOpenTemplate(msg)
	case KindAccountClose:
		return accountCloseTemplate(msg)
	case KindInternalTransferBetweenOrgsDeposited:
		return transferDepositedTemplate(msg)
	case KindPurchaseDeclined:
		return purchaseDeclinedTemplate(msg)
	case KindEmployeeInvite:
		return employeeInviteTemplate(msg)
	default:
		return "", "", "", fmt.Errorf("unknown notification kind %q", msg.Kind)
	}
}
