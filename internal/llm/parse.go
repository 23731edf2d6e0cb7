package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseJSONResponse unmarshals a model reply into target, tolerating
// replies wrapped in markdown code fences.
func ParseJSONResponse(content string, target any) error {
	content = extractJSONFromMarkdown(content)
	if err := json.Unmarshal([]byte(content), target); err != nil {
		return fmt.Errorf("llm: parse JSON response: %w", err)
	}
	return nil
}

// extractJSONFromMarkdown pulls the payload out of ```json ... ``` or
// bare ``` ... ``` fences; content without fences passes through.
func extractJSONFromMarkdown(content string) string {
	start := -1
	if idx := strings.Index(content, "```json"); idx >= 0 {
		start = idx + len("```json")
	} else if idx := strings.Index(content, "```"); idx >= 0 {
		start = idx + len("```")
	}
	if start >= 0 {
		if idx := strings.Index(content[start:], "```"); idx >= 0 {
			content = content[start : start+idx]
		}
	}
	return strings.TrimSpace(content)
}
