package notify

import (
	"fmt"

	"github.com/matcornic/hermes/v2"
)

// hermesConfig mirrors the teacher's bot-alert Hermes configuration,
// rebranded from the trading product to the ledger product.
func hermesConfig() hermes.Hermes {
	return hermes.Hermes{
		Theme: new(hermes.Default),
		Product: hermes.Product{
			Name:      "CoreLedger",
			Link:      "https://coreledger.example.com",
			Copyright: "© CoreLedger. All rights reserved.",
		},
	}
}

func renderEmail(email hermes.Email) (body, htmlBody string, err error) {
	h := hermesConfig()
	htmlBody, err = h.GenerateHTML(email)
	if err != nil {
		return "", "", err
	}
	body, err = h.GeneratePlainText(email)
	if err != nil {
		return "", "", err
	}
	return body, htmlBody, nil
}

func billingStatementTemplate(msg Message) (subject, body, htmlBody string, err error) {
	subject = fmt.Sprintf("Your %s statement is ready", msg.BillingMonth)

	dictionary := []hermes.Entry{
		{Key: "Billing period", Value: msg.BillingMonth},
	}
	intros := []string{
		fmt.Sprintf("Hi %s, your statement for **%s** has been generated.", msg.OwnerName, msg.BillingMonth),
	}
	if msg.FeeCharged {
		dictionary = append(dictionary, hermes.Entry{Key: "Maintenance fee", Value: msg.FeeAmount})
	} else {
		intros = append(intros, "No maintenance fee was charged this period.")
	}

	body, htmlBody, err = renderEmail(hermes.Email{
		Body: hermes.Body{
			Title:      "Monthly Statement",
			Intros:     intros,
			Dictionary: dictionary,
			Outros:     []string{"View the full statement in your account dashboard."},
		},
	})
	return subject, body, htmlBody, err
}

func accountOpenTemplate(msg Message) (subject, body, htmlBody string, err error) {
	subject = "Your account is open"
	body, htmlBody, err = renderEmail(hermes.Email{
		Body: hermes.Body{
			Title: "Welcome",
			Intros: []string{
				fmt.Sprintf("Hi %s, your account has been opened and is ready to use.", msg.OwnerName),
			},
			Outros: []string{"Sign in to your dashboard to get started."},
		},
	})
	return subject, body, htmlBody, err
}

func accountCloseTemplate(msg Message) (subject, body, htmlBody string, err error) {
	subject = "Your account has been closed"
	body, htmlBody, err = renderEmail(hermes.Email{
		Body: hermes.Body{
			Title: "Account Closed",
			Intros: []string{
				fmt.Sprintf("Hi %s, your account has been closed per your request.", msg.OwnerName),
			},
			Outros: []string{"Contact support if you did not request this."},
		},
	})
	return subject, body, htmlBody, err
}

func transferDepositedTemplate(msg Message) (subject, body, htmlBody string, err error) {
	subject = fmt.Sprintf("You received a transfer of %s %s", msg.Amount, msg.Currency)
	body, htmlBody, err = renderEmail(hermes.Email{
		Body: hermes.Body{
			Title: "Transfer Received",
			Intros: []string{
				fmt.Sprintf("Hi %s, a transfer of **%s %s** has been deposited to your account.", msg.OwnerName, msg.Amount, msg.Currency),
			},
		},
	})
	return subject, body, htmlBody, err
}

func purchaseDeclinedTemplate(msg Message) (subject, body, htmlBody string, err error) {
	subject = "A card purchase was declined"
	body, htmlBody, err = renderEmail(hermes.Email{
		Body: hermes.Body{
			Title: "Purchase Declined",
			Intros: []string{
				fmt.Sprintf("Hi %s, a card purchase on account ending in %s was declined.", msg.OwnerName, msg.AccountLast4),
			},
			Dictionary: []hermes.Entry{
				{Key: "Reason", Value: msg.DeclineReason},
			},
			Outros: []string{"If this wasn't you, lock the card from your dashboard immediately."},
		},
	})
	return subject, body, htmlBody, err
}

func employeeInviteTemplate(msg Message) (subject, body, htmlBody string, err error) {
	subject = "You've been invited to CoreLedger"
	body, htmlBody, err = renderEmail(hermes.Email{
		Body: hermes.Body{
			Title: "You're Invited",
			Intros: []string{
				fmt.Sprintf("Hi %s, you've been invited to join your organization's CoreLedger workspace.", msg.InviteeName),
			},
			Actions: []hermes.Action{
				{
					Instructions: "Accept your invitation:",
					Button: hermes.Button{
						Text: "Accept Invite",
						Link: fmt.Sprintf("https://coreledger.example.com/invite/%s", msg.InviteToken),
					},
				},
			},
		},
	})
	return subject, body, htmlBody, err
}
