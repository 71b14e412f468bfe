package custodian

import (
	"context"
	"net/http"
	"net/url"

	"github.com/vietddude/custodian/resilience"
)

// ListTransfers returns one page of transfers, optionally filtered by
// wallet and status.
func (c *Client) ListTransfers(ctx context.Context, opts *TransferListOptions) (*TransferList, error) {
	var list TransferList
	if err := c.do(ctx, "ListTransfers", http.MethodGet, "/transfers", opts.query(), nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetTransfer fetches a single transfer by ID.
func (c *Client) GetTransfer(ctx context.Context, id string) (*Transfer, error) {
	if id == "" {
		return nil, &resilience.Error{
			Category: resilience.CategoryValidation,
			Message:  "transfer id is required",
		}
	}
	var t Transfer
	if err := c.do(ctx, "GetTransfer", http.MethodGet, "/transfers/"+url.PathEscape(id), nil, nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTransfer initiates a transfer out of a wallet. The call carries a
// stable Idempotency-Key across retries, so a transfer is created at most
// once even when attempts are repeated.
func (c *Client) CreateTransfer(ctx context.Context, req *CreateTransferRequest) (*Transfer, error) {
	if req == nil || req.WalletID == "" || req.Amount == "" || req.Destination == "" {
		return nil, &resilience.Error{
			Category: resilience.CategoryValidation,
			Message:  "wallet id, amount and destination are required",
		}
	}
	var t Transfer
	if err := c.do(ctx, "CreateTransfer", http.MethodPost, "/transfers", nil, req, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
