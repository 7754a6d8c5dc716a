package llm

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// proposalSchema constrains model output to a known action with an
// object parameter bag.
const proposalSchema = `{
	"type": "object",
	"required": ["action", "parameters"],
	"properties": {
		"action": {
			"type": "string",
			"enum": [
				"get_stock_price",
				"get_stock_metric",
				"get_etf_price",
				"search_mutual_fund",
				"get_top_funds",
				"get_portfolio_recommendation",
				"calculate_sip",
				"calculate_emi",
				"calculate_retirement"
			]
		},
		"parameters": {
			"type": "object"
		}
	}
}`

var proposalSchemaLoader = gojsonschema.NewStringLoader(proposalSchema)

// ValidateProposal checks a raw JSON document against the action
// proposal schema.
func ValidateProposal(document string) error {
	result, err := gojsonschema.Validate(proposalSchemaLoader, gojsonschema.NewStringLoader(document))
	if err != nil {
		return fmt.Errorf("validate proposal: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("invalid action proposal: %s", strings.Join(msgs, "; "))
}
