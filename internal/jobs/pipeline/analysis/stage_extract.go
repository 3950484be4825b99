package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	types "github.com/yungbote/verbatim-backend/internal/domain"
	"github.com/yungbote/verbatim-backend/internal/platform/openai"
	"github.com/yungbote/verbatim-backend/internal/platform/textextract"
	"github.com/yungbote/verbatim-backend/internal/services"
)

type extractedQuote struct {
	Text       string `json:"text"`
	Speaker    string `json:"speaker"`
	LineNumber *int   `json:"line_number,omitempty"`
}

type verbatimsResponse struct {
	Verbatims []extractedQuote `json:"verbatims"`
}

// stageExtract pulls quotes out of every transcript. Transcripts run in
// parallel; rows are written in transcript order so sequences follow uploads.
func (p *Pipeline) stageExtract(st *runState) error {
	n := len(st.transcripts)
	quotes := make([][]extractedQuote, n)
	failed := make([]error, n)

	var (
		mu   sync.Mutex
		done int
	)
	sem := semaphore.NewWeighted(int64(p.cfg.TranscriptConcurrency))
	g, gctx := errgroup.WithContext(st.ctx)
	for i, tr := range st.transcripts {
		i, tr := i, tr
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			out, err := p.extractTranscript(gctx, tr)
			if err != nil {
				if errors.Is(err, context.Canceled) || gctx.Err() != nil {
					return err
				}
				st.log.Warn("Transcript extraction failed", "transcript_id", tr.ID, "file", tr.FileName, "error", err)
				failed[i] = err
			}
			quotes[i] = out

			mu.Lock()
			done++
			d := done
			mu.Unlock()
			if d >= n {
				return nil
			}
			pct := p.weights.StageWeight(services.StageExtractingVerbatims, services.StageContext{Done: d, Total: n})
			return st.advance(pct, services.StageExtractingVerbatims.Label())
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := st.checkpoint(); err != nil {
		return err
	}

	var firstErr error
	okCount := 0
	for i := range failed {
		if failed[i] == nil {
			okCount++
		} else if firstErr == nil {
			firstErr = failed[i]
		}
	}
	if okCount == 0 {
		if firstErr != nil {
			return firstErr
		}
		return errNoUsableTranscripts
	}

	next, err := p.repos.Verbatim.MaxSequence(st.dbc(), st.project.ID)
	if err := persist(st, "read verbatim sequence", err); err != nil {
		return err
	}
	next++
	for i, tr := range st.transcripts {
		rows := make([]*types.Verbatim, 0, len(quotes[i]))
		for _, q := range quotes[i] {
			rows = append(rows, &types.Verbatim{
				ProjectID:    st.project.ID,
				TranscriptID: tr.ID,
				Text:         q.Text,
				Speaker:      q.Speaker,
				SourceFile:   tr.FileName,
				LineNumber:   q.LineNumber,
				Sequence:     next,
			})
			next++
		}
		if len(rows) == 0 {
			continue
		}
		created, err := p.repos.Verbatim.Create(st.dbc(), rows)
		if err := persist(st, "store verbatims", err); err != nil {
			return err
		}
		st.verbatims = append(st.verbatims, created...)
	}

	st.log.Info("Verbatims extracted",
		"verbatims", len(st.verbatims),
		"transcripts", n,
		"failed_transcripts", n-okCount,
	)
	return nil
}

// extractTranscript prompts once per token-bounded chunk and keeps quotes
// that meet the minimum length.
func (p *Pipeline) extractTranscript(ctx context.Context, tr *types.Transcript) ([]extractedQuote, error) {
	chunks := p.chunks(tr.Content)
	var out []extractedQuote
	for _, c := range chunks {
		var resp verbatimsResponse
		opts := openai.CompletionOptions{
			Task:        openai.TaskVerbatims,
			System:      systemFor(openai.TaskVerbatims),
			Temperature: p.cfg.Temperature,
			MaxTokens:   p.cfg.MaxTokens,
		}
		prompt := verbatimsPrompt(tr.FileName, textextract.NumberLines(c.text, c.startLine), p.cfg.MinQuoteWords)
		if err := openai.CompleteJSON(ctx, p.ai, prompt, opts, &resp); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, q := range resp.Verbatims {
			q.Text = strings.TrimSpace(q.Text)
			q.Speaker = strings.TrimSpace(q.Speaker)
			if textextract.WordCount(q.Text) < p.cfg.MinQuoteWords {
				continue
			}
			if q.LineNumber != nil && *q.LineNumber <= 0 {
				q.LineNumber = nil
			}
			out = append(out, q)
		}
	}
	return out, nil
}

type chunk struct {
	text      string
	startLine int
}

func (p *Pipeline) chunks(content string) []chunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	if p.counter == nil {
		return []chunk{{text: content, startLine: 1}}
	}
	split := p.counter.SplitLines(content, p.cfg.ChunkTokens)
	out := make([]chunk, 0, len(split))
	for _, c := range split {
		out = append(out, chunk{text: c.Text, startLine: c.StartLine})
	}
	return out
}
