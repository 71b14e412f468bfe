package custodian

import (
	"context"
	"net/http"
)

// ListEvents returns one page of the tenant's audit events, newest first.
func (c *Client) ListEvents(ctx context.Context, opts *EventListOptions) (*EventList, error) {
	var list EventList
	if err := c.do(ctx, "ListEvents", http.MethodGet, "/events", opts.query(), nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}
