package oracle

import "strings"

// ExtractJSON pulls a JSON object out of a model response. Models often wrap
// JSON in markdown fences or prose despite instructions not to.
func ExtractJSON(content string) string {
	content = strings.TrimSpace(content)

	// Strip markdown code fences.
	if idx := strings.Index(content, "```json"); idx >= 0 {
		content = content[idx+len("```json"):]
		if end := strings.Index(content, "```"); end >= 0 {
			content = content[:end]
		}
	} else if idx := strings.Index(content, "```"); idx >= 0 {
		content = content[idx+len("```"):]
		if end := strings.Index(content, "```"); end >= 0 {
			content = content[:end]
		}
	}

	// Trim prose around the outermost object.
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return ""
	}
	return strings.TrimSpace(content[start : end+1])
}
