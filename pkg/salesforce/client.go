// Package salesforce provides JWT-authenticated REST access to Salesforce
// for writing prospect accounts and contacts.
package salesforce

import (
	"context"
	"os"
	"strings"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client is the subset of the Salesforce REST API the uploader needs.
type Client interface {
	Query(ctx context.Context, soql string, out any) error
	InsertOne(ctx context.Context, sObject string, record map[string]any) (string, error)
	UpdateOne(ctx context.Context, sObject, id string, fields map[string]any) error
}

// Creds holds JWT bearer flow credentials.
type Creds struct {
	LoginURL string
	Username string
	ClientID string
	KeyPath  string
}

// Connect authenticates with the JWT bearer flow using the private key at
// creds.KeyPath and returns a Client limited to rps requests per second. A
// non-positive rps disables throttling.
func Connect(creds Creds, rps float64) (Client, error) {
	pemData, err := os.ReadFile(creds.KeyPath)
	if err != nil {
		return nil, eris.Wrapf(err, "sf: read key %s", creds.KeyPath)
	}

	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         creds.LoginURL,
		Username:       creds.Username,
		ConsumerKey:    creds.ClientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrapf(err, "sf: authenticate %s", creds.Username)
	}

	var c Client = NewClient(sf)
	if rps > 0 {
		c = Throttle(c, rps)
	}
	return c, nil
}

// NewClient adapts an initialized go-salesforce instance. go-salesforce does
// not take a context, so calls run to completion once started.
func NewClient(sf *salesforce.Salesforce) Client {
	return &apiClient{sf: sf}
}

type apiClient struct {
	sf *salesforce.Salesforce
}

func (c *apiClient) Query(_ context.Context, soql string, out any) error {
	if err := c.sf.Query(soql, out); err != nil {
		return eris.Wrap(err, "sf: query")
	}
	return nil
}

func (c *apiClient) InsertOne(_ context.Context, sObject string, record map[string]any) (string, error) {
	result, err := c.sf.InsertOne(sObject, record)
	if err != nil {
		return "", eris.Wrapf(err, "sf: insert %s", sObject)
	}
	if !result.Success {
		msgs := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			msgs = append(msgs, e.Message)
		}
		return "", eris.Errorf("sf: insert %s rejected: %s", sObject, strings.Join(msgs, "; "))
	}
	return result.Id, nil
}

// UpdateOne writes fields to the record id. fields is not modified.
func (c *apiClient) UpdateOne(_ context.Context, sObject, id string, fields map[string]any) error {
	record := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		record[k] = v
	}
	record["Id"] = id
	if err := c.sf.UpdateOne(sObject, record); err != nil {
		return eris.Wrapf(err, "sf: update %s %s", sObject, id)
	}
	return nil
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
		return eris.Wrap(err, "sf: rate limit")
	}
	return nil
}

func (t *throttled) Query(ctx context.Context, soql string, out any) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	return t.next.Query(ctx, soql, out)
}

func (t *throttled) InsertOne(ctx context.Context, sObject string, record map[string]any) (string, error) {
	if err := t.wait(ctx); err != nil {
		return "", err
	}
	return t.next.InsertOne(ctx, sObject, record)
}

func (t *throttled) UpdateOne(ctx context.Context, sObject, id string, fields map[string]any) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	return t.next.UpdateOne(ctx, sObject, id, fields)
}
