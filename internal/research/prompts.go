package research

import "github.com/sells-group/prospector/internal/model"

// step pairs a research step with its fixed role and prompt template. The
// template takes the subject and the cumulative merge of prior outputs.
type step struct {
	name     model.StepName
	role     string
	template string
}

const jsonOnly = `Respond with a single valid JSON object and nothing else. Use null for anything you cannot determine.`

var steps = []step{
	{
		name: model.StepOverview,
		role: `You are a business research analyst building a factual company overview for a B2B sales team. ` + jsonOnly,
		template: `Research the company at %s.

Known so far:
%s

Return a JSON object with: summary, company_name, headquarters, founded_year, employee_count, revenue_range, ownership, products.`,
	},
	{
		name: model.StepMarketIntelligence,
		role: `You are a market intelligence analyst who maps competitive landscapes and customer segments. ` + jsonOnly,
		template: `Analyze the market position of the company at %s.

Known so far:
%s

Return a JSON object with: market_position, competitors, target_industries, target_segments, recent_news.`,
	},
	{
		name: model.StepTechStack,
		role: `You are a technical analyst who infers a company's technology stack from public signals such as job posts, site markup and vendor case studies. ` + jsonOnly,
		template: `Identify the technology stack of the company at %s.

Known so far:
%s

Return a JSON object with: technologies, infrastructure (an object grouping hosting, data and security), integrations.`,
	},
	{
		name: model.StepSalesGTM,
		role: `You are a senior account executive planning outbound go-to-market against a target account. ` + jsonOnly,
		template: `Plan a sales approach for the company at %s.

Known so far:
%s

Return a JSON object with: pain_points, value_propositions, decision_makers, outreach_strategy, buying_signals.`,
	},
}
