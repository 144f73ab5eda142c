package qa

import (
	"strings"

	"github.com/dshills/lexgraph/graph"
	"github.com/dshills/lexgraph/graph/model"
)

const routerTemplate = "Based on the user's query, determine which agents to activate.\n" +
	"Only respond with a JSON object that matches the schema: {format_instructions}\n\n" +
	"User Query: {query}"

const synthesizerTemplate = "You are a helpful assistant answering queries about the Constitution of India.\n" +
	"Use the provided context to formulate a comprehensive and accurate answer.\n\n" +
	"Context:\n{context}\n\n" +
	"Question: {query}\n\n" +
	"Final Answer:"

// RoutingSchema is the structured output the router step asks for. Its
// property names match the JSON tags of graph.RoutingDecision.
var RoutingSchema = &model.Schema{
	Name:        "routing_decision",
	Description: "Which specialist agents should handle the query.",
	JSON: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"route_to_article_search": map[string]interface{}{
				"type":        "boolean",
				"description": "Route to Article Search Agent",
			},
			"route_to_case_law": map[string]interface{}{
				"type":        "boolean",
				"description": "Route to Case Law Agent",
			},
			"route_to_historical_context": map[string]interface{}{
				"type":        "boolean",
				"description": "Route to Historical Context Agent",
			},
			"reasoning": map[string]interface{}{
				"type":        "string",
				"description": "Reasoning for routing",
			},
		},
		"required": []string{
			"route_to_article_search",
			"route_to_case_law",
			"route_to_historical_context",
			"reasoning",
		},
	},
}

func routerPrompt(query string) string {
	return strings.NewReplacer(
		"{format_instructions}", RoutingSchema.Instruction(),
		"{query}", query,
	).Replace(routerTemplate)
}

func synthesizerPrompt(s graph.State) string {
	return strings.NewReplacer(
		"{context}", buildContext(s),
		"{query}", s.Query,
	).Replace(synthesizerTemplate)
}

// buildContext renders every context section, with "None" for empty ones.
func buildContext(s graph.State) string {
	var b strings.Builder
	b.WriteString("User Query: ")
	b.WriteString(s.Query)
	section(&b, "Relevant Articles", s.RelevantArticles)
	section(&b, "Relevant Cases", s.RelevantCases)
	section(&b, "Historical Context", s.HistoricalContext)
	return b.String()
}

func section(b *strings.Builder, title string, items []string) {
	b.WriteString("\n\n")
	b.WriteString(title)
	b.WriteString(":\n")
	if len(items) == 0 {
		b.WriteString("None")
		return
	}
	b.WriteString(strings.Join(items, "\n"))
}
