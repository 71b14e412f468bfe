package custodian

import (
	"encoding/json"
	"net/url"
	"strconv"
	"time"
)

// WalletStatus is the lifecycle state of a wallet.
type WalletStatus string

const (
	WalletActive   WalletStatus = "active"
	WalletFrozen   WalletStatus = "frozen"
	WalletArchived WalletStatus = "archived"
)

// Wallet represents a custody wallet holding a single asset.
type Wallet struct {
	ID        string       `json:"id"`
	TenantID  string       `json:"tenant_id"`
	Name      string       `json:"name"`
	Asset     string       `json:"asset"`
	Address   string       `json:"address"`
	Balance   string       `json:"balance"`
	Status    WalletStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// TransferStatus is the lifecycle state of a transfer.
type TransferStatus string

const (
	TransferPending   TransferStatus = "pending"
	TransferApproved  TransferStatus = "approved"
	TransferBroadcast TransferStatus = "broadcast"
	TransferConfirmed TransferStatus = "confirmed"
	TransferFailed    TransferStatus = "failed"
	TransferRejected  TransferStatus = "rejected"
)

// Transfer represents an asset movement out of a wallet.
type Transfer struct {
	ID          string         `json:"id"`
	WalletID    string         `json:"wallet_id"`
	Asset       string         `json:"asset"`
	Amount      string         `json:"amount"`
	Destination string         `json:"destination"`
	Status      TransferStatus `json:"status"`
	TxHash      string         `json:"tx_hash,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Event is an audit log entry recorded for a tenant.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	ResourceID string          `json:"resource_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// CreateWalletRequest is the body for provisioning a wallet.
type CreateWalletRequest struct {
	Name  string `json:"name"`
	Asset string `json:"asset"`
}

// CreateTransferRequest is the body for initiating a transfer.
type CreateTransferRequest struct {
	WalletID    string `json:"wallet_id"`
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
	Destination string `json:"destination"`
}

// WalletList is one page of wallets.
type WalletList struct {
	Data       []Wallet `json:"data"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

// TransferList is one page of transfers.
type TransferList struct {
	Data       []Transfer `json:"data"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// EventList is one page of events.
type EventList struct {
	Data       []Event `json:"data"`
	NextCursor string  `json:"next_cursor,omitempty"`
}

// ListOptions controls cursor pagination for list endpoints.
type ListOptions struct {
	Limit  int
	Cursor string
}

func (o *ListOptions) query() url.Values {
	q := url.Values{}
	if o == nil {
		return q
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Cursor != "" {
		q.Set("cursor", o.Cursor)
	}
	return q
}

// TransferListOptions filters and paginates transfer listings.
type TransferListOptions struct {
	ListOptions
	WalletID string
	Status   TransferStatus
}

func (o *TransferListOptions) query() url.Values {
	if o == nil {
		return url.Values{}
	}
	q := o.ListOptions.query()
	if o.WalletID != "" {
		q.Set("wallet_id", o.WalletID)
	}
	if o.Status != "" {
		q.Set("status", string(o.Status))
	}
	return q
}

// EventListOptions filters and paginates event listings.
type EventListOptions struct {
	ListOptions
	Type string
}

func (o *EventListOptions) query() url.Values {
	if o == nil {
		return url.Values{}
	}
	q := o.ListOptions.query()
	if o.Type != "" {
		q.Set("type", o.Type)
	}
	return q
}
