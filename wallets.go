package custodian

import (
	"context"
	"net/http"
	"net/url"

	"github.com/vietddude/custodian/resilience"
)

// ListWallets returns one page of the tenant's wallets.
func (c *Client) ListWallets(ctx context.Context, opts *ListOptions) (*WalletList, error) {
	var list WalletList
	if err := c.do(ctx, "ListWallets", http.MethodGet, "/wallets", opts.query(), nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetWallet fetches a single wallet by ID.
func (c *Client) GetWallet(ctx context.Context, id string) (*Wallet, error) {
	if id == "" {
		return nil, &resilience.Error{
			Category: resilience.CategoryValidation,
			Message:  "wallet id is required",
		}
	}
	var w Wallet
	if err := c.do(ctx, "GetWallet", http.MethodGet, "/wallets/"+url.PathEscape(id), nil, nil, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// CreateWallet provisions a new wallet for the tenant.
func (c *Client) CreateWallet(ctx context.Context, req *CreateWalletRequest) (*Wallet, error) {
	if req == nil || req.Name == "" || req.Asset == "" {
		return nil, &resilience.Error{
			Category: resilience.CategoryValidation,
			Message:  "wallet name and asset are required",
		}
	}
	var w Wallet
	if err := c.do(ctx, "CreateWallet", http.MethodPost, "/wallets", nil, req, &w); err != nil {
		return nil, err
	}
	return &w, nil
}
