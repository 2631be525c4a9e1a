package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/generate"
	"github.com/sells-group/prospector/pkg/perplexity"
)

const discoverySystem = `You are a B2B market researcher. Answer only with a JSON array and no prose.`

const discoveryPrompt = `Find up to %d real companies that closely resemble the company described below: same industry, similar size, similar customers. Exclude %s itself.

Company profile:
%s

Return a JSON array of objects with keys "name", "domain" (bare domain such as example.com) and "reason" (one sentence).`

// PerplexityDiscoverer finds lookalike companies with search-grounded
// perplexity queries.
type PerplexityDiscoverer struct {
	client perplexity.Client
}

// NewPerplexityDiscoverer creates a PerplexityDiscoverer.
func NewPerplexityDiscoverer(client perplexity.Client) *PerplexityDiscoverer {
	return &PerplexityDiscoverer{client: client}
}

// DiscoverEntities returns at most cfg.MaxEntities companies, deduplicated by
// domain. The seed company and entries without a usable domain are dropped.
func (d *PerplexityDiscoverer) DiscoverEntities(ctx context.Context, cfg Config, profile *Profile) ([]Entity, error) {
	seed := normalizeDomain(cfg.SeedURL)
	prompt := fmt.Sprintf(discoveryPrompt, cfg.MaxEntities, seed, profile.Brief())

	doc, err := askJSON(ctx, d.client, discoverySystem, prompt)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{seed: true}
	var entities []Entity
	for _, item := range items(doc, "companies") {
		if len(entities) >= cfg.MaxEntities {
			break
		}
		domain := normalizeDomain(item.Get("domain").String())
		if domain == "" || seen[domain] {
			continue
		}
		seen[domain] = true

		name := strings.TrimSpace(item.Get("name").String())
		if name == "" {
			name = domain
		}
		entities = append(entities, Entity{
			Name:   name,
			Domain: domain,
			Reason: strings.TrimSpace(item.Get("reason").String()),
		})
	}

	zap.L().Debug("pipeline: entities discovered",
		zap.Int("returned", len(items(doc, "companies"))),
		zap.Int("kept", len(entities)),
	)
	return entities, nil
}

// askJSON sends one perplexity query and parses the answer as JSON.
func askJSON(ctx context.Context, client perplexity.Client, system, prompt string) (gjson.Result, error) {
	text, err := perplexity.Ask(ctx, client, system, prompt)
	if err != nil {
		return gjson.Result{}, &generate.UpstreamCallError{Provider: "perplexity", Err: err}
	}
	raw, err := generate.Parse(text)
	if err != nil {
		return gjson.Result{}, err
	}
	return gjson.ParseBytes(raw), nil
}

// items returns the elements of doc when it is an array, or of doc[key]
// when the model wrapped the array in an object.
func items(doc gjson.Result, key string) []gjson.Result {
	if doc.IsArray() {
		return doc.Array()
	}
	if v := doc.Get(key); v.IsArray() {
		return v.Array()
	}
	return nil
}

// normalizeDomain reduces a URL or domain to its lowercased host without a
// leading www.
func normalizeDomain(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")
	if !strings.Contains(host, ".") {
		return ""
	}
	return host
}
