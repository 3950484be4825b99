package promptstyle

import "strings"

const marker = "VERBATIM_ANALYST_STYLE_V1"

// ApplySystem wraps a task system prompt with the shared analyst guidance.
// Applying it twice is a no-op.
func ApplySystem(system string, mode string) string {
	base := strings.TrimSpace(system)
	if base == "" {
		return base
	}
	if strings.Contains(base, marker) {
		return base
	}
	mode = strings.ToLower(strings.TrimSpace(mode))

	var b strings.Builder
	b.WriteString(marker)
	b.WriteString("\nYou are a qualitative research analyst working from interview transcripts.")
	b.WriteString("\nQuote participants exactly; never paraphrase inside a quote.")
	b.WriteString("\nUse only the material provided. Do not invent speakers, quotes, or line numbers.")
	b.WriteString("\nTranscripts may mix languages. Keep quotes in their original language.")
	if mode == "json" {
		b.WriteString("\nReturn exactly one JSON object matching the requested shape, with no prose and no code fences.")
	}
	b.WriteString("\n---\n")
	b.WriteString(base)
	return b.String()
}
