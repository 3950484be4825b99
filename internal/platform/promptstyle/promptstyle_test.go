package promptstyle

import (
	"strings"
	"testing"
)

func TestApplySystemIsIdempotent(t *testing.T) {
	once := ApplySystem("Extract questions.", "json")
	if !strings.HasPrefix(once, marker) {
		t.Fatalf("missing marker: %q", once)
	}
	if !strings.HasSuffix(once, "Extract questions.") {
		t.Fatalf("task prompt not last: %q", once)
	}
	if !strings.Contains(once, "JSON object") {
		t.Fatalf("json guidance missing")
	}
	if twice := ApplySystem(once, "json"); twice != once {
		t.Fatalf("second application changed prompt")
	}
	if ApplySystem("  ", "json") != "" {
		t.Fatalf("blank prompt should stay blank")
	}
	if strings.Contains(ApplySystem("Summarize.", "text"), "JSON object") {
		t.Fatalf("text mode got json guidance")
	}
}
