package notion

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// Property names expected in the contacts database.
const (
	PropName     = "Name"
	PropKey      = "Key"
	PropTitle    = "Title"
	PropCompany  = "Company"
	PropWebsite  = "Website"
	PropLinkedIn = "LinkedIn"
	PropMessage  = "Message"
	PropPipeline = "Pipeline"
	PropStatus   = "Status"
)

// richTextLimit is the maximum length of a single rich text object.
const richTextLimit = 2000

// Contact is one prospect written to the contacts database.
type Contact struct {
	Name       string
	Title      string
	Company    string
	Domain     string
	LinkedIn   string
	Message    string
	PipelineID string
}

// Key identifies a contact across uploads: lowercased name and company domain.
func (c Contact) Key() string {
	return strings.ToLower(strings.TrimSpace(c.Name)) + "@" + strings.ToLower(strings.TrimSpace(c.Domain))
}

// ContactProperties converts a contact into page properties. Empty URLs are
// omitted because Notion rejects them.
func ContactProperties(c Contact) notionapi.Properties {
	props := notionapi.Properties{
		PropName: notionapi.TitleProperty{
			Type:  notionapi.PropertyTypeTitle,
			Title: richText(c.Name),
		},
		PropKey:      richTextProperty(c.Key()),
		PropTitle:    richTextProperty(c.Title),
		PropCompany:  richTextProperty(c.Company),
		PropMessage:  richTextProperty(c.Message),
		PropPipeline: richTextProperty(c.PipelineID),
		PropStatus: notionapi.StatusProperty{
			Status: notionapi.Status{Name: "New"},
		},
	}
	if c.Domain != "" {
		props[PropWebsite] = notionapi.URLProperty{
			Type: notionapi.PropertyTypeURL,
			URL:  normalizeURL(c.Domain),
		}
	}
	if c.LinkedIn != "" {
		props[PropLinkedIn] = notionapi.URLProperty{
			Type: notionapi.PropertyTypeURL,
			URL:  normalizeURL(c.LinkedIn),
		}
	}
	return props
}

// FindContact returns the id of the page holding key, or "" when none does.
func FindContact(ctx context.Context, c Client, dbID, key string) (string, error) {
	resp, err := c.QueryDatabase(ctx, dbID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: PropKey,
			RichText: &notionapi.TextFilterCondition{Equals: key},
		},
		PageSize: 1,
	})
	if err != nil {
		return "", eris.Wrap(err, "notion: find contact")
	}
	if len(resp.Results) == 0 {
		return "", nil
	}
	return string(resp.Results[0].ID), nil
}

// UpsertContact creates a page for the contact, or updates the existing page
// with the same key. It reports whether a page was created.
func UpsertContact(ctx context.Context, c Client, dbID string, contact Contact) (string, bool, error) {
	props := ContactProperties(contact)

	pageID, err := FindContact(ctx, c, dbID, contact.Key())
	if err != nil {
		return "", false, err
	}

	if pageID != "" {
		if _, err := c.UpdatePage(ctx, pageID, &notionapi.PageUpdateRequest{Properties: props}); err != nil {
			return "", false, eris.Wrap(err, "notion: update contact")
		}
		return pageID, false, nil
	}

	page, err := c.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(dbID),
		},
		Properties: props,
	})
	if err != nil {
		return "", false, eris.Wrap(err, "notion: create contact")
	}
	return string(page.ID), true, nil
}

func richTextProperty(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		Type:     notionapi.PropertyTypeRichText,
		RichText: richText(s),
	}
}

// richText splits s into rich text objects that each fit the API limit.
func richText(s string) []notionapi.RichText {
	runes := []rune(s)
	if len(runes) == 0 {
		return []notionapi.RichText{}
	}
	var out []notionapi.RichText
	for len(runes) > 0 {
		n := min(len(runes), richTextLimit)
		out = append(out, notionapi.RichText{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: string(runes[:n])},
		})
		runes = runes[n:]
	}
	return out
}

// normalizeURL ensures a domain has an https:// scheme prefix.
func normalizeURL(domain string) string {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return ""
	}
	if !strings.Contains(domain, "://") {
		return "https://" + domain
	}
	return domain
}
