package tokens

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

const DefaultEncoding = "cl100k_base"

func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// Counter measures text in model tokens.
type Counter struct {
	enc *tiktoken.Tiktoken
}

func NewCounter(encoding string) (*Counter, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %q: %w", encoding, err)
	}
	return &Counter{enc: enc}, nil
}

func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

// Chunk is a run of whole lines from the source text. StartLine is 1-based.
type Chunk struct {
	Text      string
	StartLine int
	Tokens    int
}

// SplitLines packs whole lines into chunks of at most maxTokens each. A single
// line over the limit becomes its own chunk. maxTokens <= 0 returns the text as
// one chunk.
func (c *Counter) SplitLines(text string, maxTokens int) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if maxTokens <= 0 {
		return []Chunk{{Text: text, StartLine: 1, Tokens: c.Count(text)}}
	}
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	var (
		out   []Chunk
		cur   strings.Builder
		start = 1
		used  int
	)
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		out = append(out, Chunk{Text: cur.String(), StartLine: start, Tokens: used})
		cur.Reset()
		used = 0
	}
	for i, line := range lines {
		n := c.Count(line + "\n")
		if used > 0 && used+n > maxTokens {
			flush()
		}
		if cur.Len() == 0 {
			start = i + 1
		}
		cur.WriteString(line)
		cur.WriteString("\n")
		used += n
	}
	flush()
	return out
}
