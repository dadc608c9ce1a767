package extract

import (
	"fmt"
	"strings"

	"github.com/fieldglass/needlefinder/internal/schema"
)

const extractSystemPrompt = `You are an expert at carefully parsing text and extracting hidden information. Your task is to extract records matching the %s schema, given below. The information may or may not be present in the text.

Schema: %s
Fields:
%s

Return a JSON array of objects, one object per extracted record, using exactly the field names above. Output only JSON.
- The hidden information will be out of place within the text; do not extract information that belongs to the surrounding context of the text.
- Make NO assumptions about the information; only extract what is explicitly stated.
- If a particular field is not present, use null.
- If there are no matching records in the text, return an empty array ([]).`

const extractExamplesSection = `

Example(s) of hidden information:
%s`

const extractUserPrompt = `Extract the information from the following:

%s`

const verifySystemPrompt = `You are validating extracted records against their source text. You will be given a passage and one extracted %s record as JSON.

Schema: %s
Fields:
%s

Answer with exactly one word: "true" if every populated field of the record is explicitly supported by the passage, "false" otherwise.`

const verifyUserPrompt = `Text:
%s

Extracted Information:
%s`

// buildExtractSystemPrompt renders the extraction system prompt for a schema,
// optionally appending example needles.
func buildExtractSystemPrompt(s schema.Schema, examples []string) string {
	prompt := fmt.Sprintf(extractSystemPrompt, s.Name, s.Name, s.PromptFields())
	if len(examples) > 0 {
		prompt += fmt.Sprintf(extractExamplesSection, strings.Join(examples, "\n"))
	}
	return prompt
}

// buildVerifySystemPrompt renders the verification system prompt for a schema.
func buildVerifySystemPrompt(s schema.Schema) string {
	return fmt.Sprintf(verifySystemPrompt, s.Name, s.Name, s.PromptFields())
}
