package upstream

import (
	"bytes"
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/food-delivery/internal/domain/notify"
)

var _ notify.Notifier = (*NotificationClient)(nil)

// NotificationClient posts branch events to the notification service.
type NotificationClient struct {
	baseClient
}

// NewNotificationClient creates a client for the notification service.
func NewNotificationClient(baseURL string, opts ...Option) (*NotificationClient, error) {
	c, err := newBaseClient(baseURL, opts)
	if err != nil {
		return nil, errors.Wrap(err, "notification client")
	}
	return &NotificationClient{baseClient: c}, nil
}

// Notify sends POST /notify {branch_id, message}. The response body is
// ignored.
func (c *NotificationClient) Notify(ctx context.Context, branchID int64, event notify.Event) error {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("branch_id")
	e.Int64(branchID)
	e.FieldStart("message")
	e.Str(string(event))
	e.ObjEnd()

	status, _, err := c.do(ctx, http.MethodPost, c.endpoint(nil, "notify"), bytes.NewReader(e.Bytes()))
	if err != nil {
		return errors.Wrap(err, "notify")
	}
	if status < 200 || status > 299 {
		return errors.Errorf("notify: status %d", status)
	}
	return nil
}
