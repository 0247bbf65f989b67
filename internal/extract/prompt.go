package extract

import (
	"fmt"
	"strings"

	"github.com/dgallion1/deckgest/internal/schema"
)

const SystemPrompt = `You are an expert at extracting structured information from investment memos and pitch decks. Extract the key information about the company and their fundraising round. Be precise and concise. If a piece of information is not found, use "N/A" as the value. Focus on the most relevant and important information for each field.`

// ResponseFormatName names the structured output schema sent to the model.
const ResponseFormatName = "investment_memo"

// BuildSystemPrompt appends the field guide of the contract to SystemPrompt.
func BuildSystemPrompt(c *schema.Contract) string {
	var sb strings.Builder
	sb.WriteString(SystemPrompt)
	sb.WriteString("\n\nFields to extract:")
	for _, f := range c.Fields() {
		desc := f.Description
		if desc == "" {
			desc = f.Name
		}
		fmt.Fprintf(&sb, "\n- %s: %s", f.Key, desc)
	}
	return sb.String()
}

func BuildUserPrompt(text string) string {
	return "Please extract information from the following investment memo/pitch deck text:\n\n" + text
}
