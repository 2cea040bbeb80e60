package domestictransfer

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// TransferRequest is the outbound JSON body §4.6/§6 names:
// {accountNumber, routingNumber, amount, ref}.
type TransferRequest struct {
	AccountNumber string `json:"accountNumber"`
	RoutingNumber string `json:"routingNumber"`
	Amount        string `json:"amount"`
	Ref           string `json:"ref"`
}

// GatewayStatus is the terminal/non-terminal status the gateway reports for
// a ticket.
type GatewayStatus string

const (
	GatewayStatusPending  GatewayStatus = "pending"
	GatewayStatusSettled  GatewayStatus = "settled"
	GatewayStatusRejected GatewayStatus = "rejected"
)

// TransferResponse is the gateway's reply: {ok, status, reason,
// transactionId}.
type TransferResponse struct {
	OK            bool          `json:"ok"`
	Status        GatewayStatus `json:"status"`
	Reason        string        `json:"reason"`
	TransactionID string        `json:"transactionId"`
}

// Gateway is the resty-backed client to the external domestic transfer
// gateway.
type Gateway struct {
	client  *resty.Client
	baseURL string
}

// NewGateway builds a Gateway against baseURL.
func NewGateway(baseURL string) *Gateway {
	return &Gateway{
		client:  resty.New(),
		baseURL: baseURL,
	}
}

// Submit requests a transfer ticket from the gateway (TransferRequest
// action).
func (g *Gateway) Submit(ctx context.Context, req TransferRequest) (TransferResponse, error) {
	var resp TransferResponse
	r, err := g.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(g.baseURL + "/transfers")
	if err != nil {
		return TransferResponse{}, fmt.Errorf("submit transfer: %w", err)
	}
	if r.IsError() {
		return TransferResponse{}, fmt.Errorf("submit transfer: gateway status %d", r.StatusCode())
	}
	return resp, nil
}

// ProgressCheck polls the ticket identified by transactionID (ProgressCheck
// action).
func (g *Gateway) ProgressCheck(ctx context.Context, transactionID string) (TransferResponse, error) {
	var resp TransferResponse
	r, err := g.client.R().
		SetContext(ctx).
		SetResult(&resp).
		Get(g.baseURL + "/transfers/" + transactionID)
	if err != nil {
		return TransferResponse{}, fmt.Errorf("progress check: %w", err)
	}
	if r.IsError() {
		return TransferResponse{}, fmt.Errorf("progress check: gateway status %d", r.StatusCode())
	}
	return resp, nil
}
