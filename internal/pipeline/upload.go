package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospector/internal/generate"
	"github.com/sells-group/prospector/pkg/notion"
	"github.com/sells-group/prospector/pkg/salesforce"
)

// Upload target names.
const (
	TargetNotion     = "notion"
	TargetSalesforce = "salesforce"
)

// NotionUploader writes one page per contact into a Notion database.
type NotionUploader struct {
	client notion.Client
	dbID   string
}

// NewNotionUploader creates a NotionUploader for the contacts database dbID.
func NewNotionUploader(client notion.Client, dbID string) *NotionUploader {
	return &NotionUploader{client: client, dbID: dbID}
}

func (u *NotionUploader) Upload(ctx context.Context, pipelineID string, artifacts []Artifact) (*UploadSummary, error) {
	summary := &UploadSummary{Target: TargetNotion, IDs: []string{}}
	for _, a := range artifacts {
		id, created, err := notion.UpsertContact(ctx, u.client, u.dbID, notion.Contact{
			Name:       a.Contact.Name,
			Title:      a.Contact.Title,
			Company:    a.Contact.Entity.Name,
			Domain:     a.Contact.Entity.Domain,
			LinkedIn:   a.Contact.LinkedIn,
			Message:    messageText(a),
			PipelineID: pipelineID,
		})
		if err != nil {
			return nil, &generate.UpstreamCallError{Provider: TargetNotion, Err: eris.Wrapf(err, "upload %s", a.Contact.Name)}
		}
		summary.count(id, created)
	}
	return summary, nil
}

// SalesforceUploader writes an Account per entity and a Contact per contact.
type SalesforceUploader struct {
	client salesforce.Client
}

// NewSalesforceUploader creates a SalesforceUploader.
func NewSalesforceUploader(client salesforce.Client) *SalesforceUploader {
	return &SalesforceUploader{client: client}
}

func (u *SalesforceUploader) Upload(ctx context.Context, pipelineID string, artifacts []Artifact) (*UploadSummary, error) {
	summary := &UploadSummary{Target: TargetSalesforce, IDs: []string{}}
	accounts := make(map[string]string)

	for _, a := range artifacts {
		e := a.Contact.Entity
		accountID, ok := accounts[e.Domain]
		if !ok {
			id, _, err := salesforce.UpsertAccount(ctx, u.client, e.Name, e.Domain)
			if err != nil {
				return nil, &generate.UpstreamCallError{Provider: TargetSalesforce, Err: eris.Wrapf(err, "upload account %s", e.Domain)}
			}
			accounts[e.Domain] = id
			accountID = id
		}

		id, created, err := salesforce.UpsertContact(ctx, u.client, accountID, a.Contact.Name, map[string]any{
			"Title":       a.Contact.Title,
			"Description": messageText(a) + "\n\npipeline " + pipelineID,
		})
		if err != nil {
			return nil, &generate.UpstreamCallError{Provider: TargetSalesforce, Err: eris.Wrapf(err, "upload contact %s", a.Contact.Name)}
		}
		summary.count(id, created)
	}
	return summary, nil
}

func (s *UploadSummary) count(id string, created bool) {
	s.IDs = append(s.IDs, id)
	if created {
		s.Created++
	} else {
		s.Updated++
	}
}

func messageText(a Artifact) string {
	if a.Subject == "" {
		return a.Body
	}
	return a.Subject + "\n\n" + a.Body
}
