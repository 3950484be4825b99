package openai

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/yungbote/verbatim-backend/internal/platform/logger"
)

// Task names used by the analysis pipeline. The dry-run client keys its canned
// responses on these.
const (
	TaskObjectives = "objectives"
	TaskVerbatims  = "verbatims"
	TaskMapping    = "mapping"
	TaskTopics     = "topics"
	TaskStrategic  = "strategic"
)

var dryRunResponses = map[string]string{
	TaskObjectives: `{"objectives":[]}`,
	TaskVerbatims:  `{"verbatims":[]}`,
	TaskMapping:    `{"mappings":[]}`,
	TaskTopics:     `{"topics":[]}`,
	TaskStrategic:  `{"key_insights":"","key_themes":[],"key_takeaways":[],"supporting_quotes":[]}`,
}

type dryRunClient struct {
	log *logger.Logger
	dim int
}

// NewDryRun returns a client that never touches the network. Completions are
// schema-shaped empty documents; embeddings are deterministic hash vectors.
func NewDryRun(log *logger.Logger, dim int) Client {
	if dim <= 0 {
		dim = 1536
	}
	return &dryRunClient{log: log.With("service", "OpenAIDryRun"), dim: dim}
}

func (d *dryRunClient) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.log.Debug("dry-run completion", "task", opts.Task, "prompt_chars", len(prompt))
	if out, ok := dryRunResponses[opts.Task]; ok {
		return out, nil
	}
	if opts.JSON {
		return "{}", nil
	}
	return "", nil
}

func (d *dryRunClient) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(inputs))
	for i, s := range inputs {
		out[i] = hashVector(s, d.dim)
	}
	return out, nil
}

func hashVector(s string, dim int) []float32 {
	v := make([]float32, dim)
	var norm float64
	for i := 0; i < dim; i++ {
		h := fnv.New32a()
		_, _ = h.Write([]byte{byte(i), byte(i >> 8)})
		_, _ = h.Write([]byte(s))
		x := float64(h.Sum32()%2000)/1000 - 1
		v[i] = float32(x)
		norm += x * x
	}
	if norm == 0 {
		return v
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}
