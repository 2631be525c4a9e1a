package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/prospector/pkg/perplexity"
)

const contactSystem = `You are a sales researcher who finds publicly listed executives. Answer only with a JSON array and no prose. Never invent people.`

const contactPrompt = `List up to %d current employees of %s (%s) whose role matches one of: %s.

Return a JSON array of objects with keys "name", "title" and "linkedin" (profile URL or empty string).`

// PerplexityContacts finds decision makers at each entity with one
// sequential perplexity query per entity.
type PerplexityContacts struct {
	client perplexity.Client
}

// NewPerplexityContacts creates a PerplexityContacts.
func NewPerplexityContacts(client perplexity.Client) *PerplexityContacts {
	return &PerplexityContacts{client: client}
}

func (c *PerplexityContacts) DiscoverContacts(ctx context.Context, cfg Config, entities []Entity) ([]Contact, error) {
	caser := cases.Title(language.English)
	titles := strings.Join(cfg.TargetTitles, ", ")

	var contacts []Contact
	for _, e := range entities {
		prompt := fmt.Sprintf(contactPrompt, cfg.MaxContactsPerEntity, e.Name, e.Domain, titles)
		doc, err := askJSON(ctx, c.client, contactSystem, prompt)
		if err != nil {
			return nil, err
		}

		seen := make(map[string]bool)
		kept := 0
		for _, item := range items(doc, "contacts") {
			if kept >= cfg.MaxContactsPerEntity {
				break
			}
			name := normalizeName(caser, item.Get("name").String())
			key := strings.ToLower(name)
			if name == "" || seen[key] {
				continue
			}
			seen[key] = true
			kept++

			contacts = append(contacts, Contact{
				Entity:   e,
				Name:     name,
				Title:    strings.TrimSpace(item.Get("title").String()),
				LinkedIn: strings.TrimSpace(item.Get("linkedin").String()),
			})
		}

		zap.L().Debug("pipeline: contacts discovered",
			zap.String("domain", e.Domain),
			zap.Int("kept", kept),
		)
	}
	return contacts, nil
}

// normalizeName collapses whitespace and title-cases names that arrive in a
// single case. Mixed-case names such as "McDonald" are left alone.
func normalizeName(caser cases.Caser, name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == strings.ToLower(name) || name == strings.ToUpper(name) {
		return caser.String(name)
	}
	return name
}
