package services

import "strings"

const fenceMarker = "```"

// SanitizeResponse strips Markdown code-fence lines from model output that is
// wrapped in a fenced block. Output that does not start with a fence is
// returned unchanged. Nothing is validated.
func SanitizeResponse(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, fenceMarker) {
		return s
	}

	lines := strings.Split(strings.ReplaceAll(trimmed, "\r\n", "\n"), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), fenceMarker) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
