package textextract

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// "Speaker [00:12:31]: text" or "Speaker (12:31): text"
	timestampSpeaker = regexp.MustCompile(`^([^:：\[\]()]{1,40}?)\s*[\[(](\d{1,2}:\d{2}(?::\d{2})?)[\])]\s*[:：]\s*(.+)$`)
	simpleSpeaker    = regexp.MustCompile(`^([^:：]{1,40})[:：]\s*(.+)$`)
)

// Line is one speaker turn found in a transcript.
type Line struct {
	Number    int
	Speaker   string
	Timestamp string
	Text      string
}

// ParseLines returns the speaker turns in a transcript. Lines before a
// "==========" header separator are skipped, as are lines without a speaker.
func ParseLines(content string) []Line {
	lines := strings.Split(content, "\n")
	start := contentStart(lines)
	var out []Line
	for i := start; i < len(lines); i++ {
		if l, ok := parseLine(lines[i]); ok {
			l.Number = i + 1
			out = append(out, l)
		}
	}
	return out
}

func parseLine(raw string) (Line, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Line{}, false
	}
	if m := timestampSpeaker.FindStringSubmatch(s); m != nil {
		text := strings.TrimSpace(m[3])
		if text == "" {
			return Line{}, false
		}
		return Line{Speaker: strings.TrimSpace(m[1]), Timestamp: m[2], Text: text}, true
	}
	if m := simpleSpeaker.FindStringSubmatch(s); m != nil {
		text := strings.TrimSpace(m[2])
		if text == "" {
			return Line{}, false
		}
		return Line{Speaker: strings.TrimSpace(m[1]), Text: text}, true
	}
	return Line{}, false
}

func contentStart(lines []string) int {
	for i, l := range lines {
		if i > 0 && strings.Contains(l, strings.Repeat("=", 10)) {
			return i + 1
		}
	}
	return 0
}

// NumberLines prefixes every line with "L<n>: " so a model can cite line
// numbers back. Lines keep their original numbering when firstLine > 1.
func NumberLines(content string, firstLine int) string {
	if firstLine < 1 {
		firstLine = 1
	}
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	var b strings.Builder
	for i, l := range lines {
		fmt.Fprintf(&b, "L%d: %s\n", firstLine+i, l)
	}
	return b.String()
}

// WordCount counts whitespace separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}
