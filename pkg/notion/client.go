// Package notion wraps the Notion API for writing prospect contacts into a
// database.
package notion

import (
	"context"
	"errors"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// DefaultRateLimit is Notion's average request allowance per integration.
const DefaultRateLimit = 3.0

// Client is the subset of the Notion API used to maintain the contacts
// database.
type Client interface {
	QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
	UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error)
}

// NewClient returns a Client for the integration token limited to rps
// requests per second. A non-positive rps disables throttling.
func NewClient(token string, rps float64) Client {
	var c Client = &apiClient{api: notionapi.NewClient(notionapi.Token(token))}
	if rps > 0 {
		c = Throttle(c, rps)
	}
	return c
}

type apiClient struct {
	api *notionapi.Client
}

func (c *apiClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	resp, err := c.api.Database.Query(ctx, notionapi.DatabaseID(dbID), req)
	if err != nil {
		return nil, describe(err, "query database "+dbID)
	}
	return resp, nil
}

func (c *apiClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	page, err := c.api.Page.Create(ctx, req)
	if err != nil {
		return nil, describe(err, "create page")
	}
	return page, nil
}

func (c *apiClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	page, err := c.api.Page.Update(ctx, notionapi.PageID(pageID), req)
	if err != nil {
		return nil, describe(err, "update page "+pageID)
	}
	return page, nil
}

// describe wraps err, adding the status and code when the API rejected the
// request.
func describe(err error, action string) error {
	var apiErr *notionapi.Error
	if errors.As(err, &apiErr) {
		return eris.Wrapf(err, "notion: %s: status %d %s", action, apiErr.Status, apiErr.Code)
	}
	return eris.Wrapf(err, "notion: %s", action)
}

// Throttle returns a Client whose calls to next share one token bucket of
// rps requests per second.
func Throttle(next Client, rps float64) Client {
	return &throttled{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(rps), max(int(rps), 1)),
	}
}

type throttled struct {
	next    Client
	limiter *rate.Limiter
}

func (t *throttled) wait(ctx context.Context) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "notion: rate limit")
	}
	return nil
}

func (t *throttled) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}
	return t.next.QueryDatabase(ctx, dbID, req)
}

func (t *throttled) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}
	return t.next.CreatePage(ctx, req)
}

func (t *throttled) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}
	return t.next.UpdatePage(ctx, pageID, req)
}
