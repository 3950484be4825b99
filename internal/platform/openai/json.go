package openai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/yungbote/verbatim-backend/internal/platform/apierr"
)

// CompleteJSON asks for a JSON object and decodes it into out. Transport
// failures and unparseable text both come back as *apierr.UpstreamCompletionError;
// context cancellation is returned unwrapped.
func CompleteJSON(ctx context.Context, c Client, prompt string, opts CompletionOptions, out any) error {
	opts.JSON = true
	raw, err := c.Complete(ctx, prompt, opts)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, context.Canceled) {
			return err
		}
		return &apierr.UpstreamCompletionError{Task: opts.Task, Err: err}
	}
	body := ExtractJSON(raw)
	if body == "" {
		return &apierr.UpstreamCompletionError{Task: opts.Task, Raw: raw, Err: errors.New("response contained no JSON object")}
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return &apierr.UpstreamCompletionError{Task: opts.Task, Raw: raw, Err: err}
	}
	return nil
}

// ExtractJSON strips markdown code fences and surrounding prose, returning the
// outermost JSON object or array, or "" when there is none.
func ExtractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```JSON")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return ""
	}
	return s[start : end+1]
}
