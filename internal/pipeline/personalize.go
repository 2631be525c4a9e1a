package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"

	"github.com/sells-group/prospector/internal/generate"
)

const personalizeRole = `You are an experienced SDR writing short, specific cold emails. You reference concrete facts about the recipient's company and never use filler. Respond with a single JSON object with keys "subject" and "body".`

const personalizePrompt = `Write a first-touch email from a company matching this profile:
%s

Recipient: %s, %s at %s (%s).
Why they fit: %s
Tone: %s

Keep the body under 120 words.`

const defaultTone = "direct and friendly"

// GenerationPersonalizer writes one outreach message per contact with a
// generation call.
type GenerationPersonalizer struct {
	exec generate.Executor
}

// NewGenerationPersonalizer creates a GenerationPersonalizer.
func NewGenerationPersonalizer(exec generate.Executor) *GenerationPersonalizer {
	return &GenerationPersonalizer{exec: exec}
}

func (g *GenerationPersonalizer) Personalize(ctx context.Context, cfg Config, profile *Profile, contacts []Contact) ([]Artifact, error) {
	tone := cfg.Tone
	if tone == "" {
		tone = defaultTone
	}
	brief := profile.Brief()
	ctx = generate.WithLabel(ctx, "personalization")

	artifacts := make([]Artifact, 0, len(contacts))
	for _, c := range contacts {
		prompt := fmt.Sprintf(personalizePrompt, brief, c.Name, c.Title, c.Entity.Name, c.Entity.Domain, c.Entity.Reason, tone)
		raw, err := g.exec.Execute(ctx, personalizeRole, prompt)
		if err != nil {
			return nil, err
		}

		doc := gjson.ParseBytes(raw)
		body := strings.TrimSpace(doc.Get("body").String())
		if body == "" {
			return nil, &generate.ParseError{Raw: string(raw), Err: eris.New("message has no body")}
		}
		artifacts = append(artifacts, Artifact{
			Contact: c,
			Subject: strings.TrimSpace(doc.Get("subject").String()),
			Body:    body,
		})
	}
	return artifacts, nil
}
