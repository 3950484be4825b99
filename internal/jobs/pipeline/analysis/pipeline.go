package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/verbatim-backend/internal/data/repos"
	types "github.com/yungbote/verbatim-backend/internal/domain"
	"github.com/yungbote/verbatim-backend/internal/domain/research"
	jobrt "github.com/yungbote/verbatim-backend/internal/jobs/runtime"
	"github.com/yungbote/verbatim-backend/internal/platform/apierr"
	"github.com/yungbote/verbatim-backend/internal/platform/dbctx"
	"github.com/yungbote/verbatim-backend/internal/platform/logger"
	"github.com/yungbote/verbatim-backend/internal/platform/openai"
	"github.com/yungbote/verbatim-backend/internal/platform/tokens"
	"github.com/yungbote/verbatim-backend/internal/services"
)

const HandlerType = "analysis"

type Config struct {
	MappingBatchSize      int
	TranscriptConcurrency int
	MinQuoteWords         int
	MaxVerbatimsPerTopic  int
	ChunkTokens           int
	Temperature           *float64
	MaxTokens             int
}

func (c Config) withDefaults() Config {
	if c.MappingBatchSize <= 0 {
		c.MappingBatchSize = 10
	}
	if c.TranscriptConcurrency <= 0 {
		c.TranscriptConcurrency = 3
	}
	if c.MinQuoteWords <= 0 {
		c.MinQuoteWords = 10
	}
	if c.MaxVerbatimsPerTopic <= 0 {
		c.MaxVerbatimsPerTopic = 50
	}
	if c.ChunkTokens <= 0 {
		c.ChunkTokens = 6000
	}
	return c
}

// Pipeline runs the six analysis stages for one session.
type Pipeline struct {
	log     *logger.Logger
	repos   repos.Set
	ai      openai.Client
	weights services.ProgressWeighting
	search  services.VerbatimSearch
	counter *tokens.Counter
	tracer  trace.Tracer
	cfg     Config
	observe StageObserver
}

// StageObserver receives the duration and outcome of every stage.
type StageObserver interface {
	ObserveStage(stage, status string, dur time.Duration)
}

func New(
	baseLog *logger.Logger,
	set repos.Set,
	ai openai.Client,
	weights services.ProgressWeighting,
	search services.VerbatimSearch,
	counter *tokens.Counter,
	cfg Config,
) *Pipeline {
	if weights == nil {
		weights = services.FixedWeights{}
	}
	return &Pipeline{
		log:     baseLog.With("job", HandlerType),
		repos:   set,
		ai:      ai,
		weights: weights,
		search:  search,
		counter: counter,
		tracer:  otel.Tracer("verbatim/pipeline/analysis"),
		cfg:     cfg.withDefaults(),
	}
}

func (p *Pipeline) Type() string { return HandlerType }

func (p *Pipeline) WithObserver(o StageObserver) *Pipeline {
	p.observe = o
	return p
}

// runState carries one run's inputs and in-memory outputs between stages.
type runState struct {
	jc          *jobrt.Context
	ctx         context.Context
	log         *logger.Logger
	project     *types.Project
	options     research.ProjectConfiguration
	guide       *types.DiscussionGuide
	transcripts []*types.Transcript

	objectives []types.Objective
	verbatims  []*types.Verbatim
	mappings   []*types.QuestionMapping
	topics     []*types.EmergentTopic
	strategic  []*types.StrategicAnalysis

	mu   sync.Mutex
	last int
}

// checkpoint is called after every AI and store call.
func (st *runState) checkpoint() error {
	return st.ctx.Err()
}

// progress reports pct for step, never below what this run already reported.
func (st *runState) progress(pct int, step string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if pct < st.last {
		pct = st.last
	}
	if err := st.jc.Progress(pct, step); err != nil {
		return err
	}
	st.last = pct
	return nil
}

// advance reports in-stage movement and skips updates that would not change
// the published percentage.
func (st *runState) advance(pct int, step string) error {
	st.mu.Lock()
	moved := pct > st.last
	st.mu.Unlock()
	if !moved {
		return st.checkpoint()
	}
	return st.progress(pct, step)
}

func resumeFloor(stored int) int {
	switch {
	case stored < 0:
		return 0
	case stored > 99:
		return 99
	default:
		return stored
	}
}

type stageFunc func(st *runState) error

func (p *Pipeline) stageFuncs() map[services.Stage]stageFunc {
	return map[services.Stage]stageFunc{
		services.StagePreprocessing:       p.stagePreprocess,
		services.StageExtractingVerbatims: p.stageExtract,
		services.StageMappingQuestions:    p.stageMapping,
		services.StageEmergentTopics:      p.stageTopics,
		services.StageStrategicAnalysis:   p.stageStrategic,
		services.StageGeneratingReports:   p.stageReports,
	}
}

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Session == nil {
		return nil
	}
	ctx, span := p.tracer.Start(jc.Ctx, "analysis.run", trace.WithAttributes(
		attribute.String("session_id", jc.SessionID().String()),
		attribute.String("project_id", jc.ProjectID().String()),
	))
	defer span.End()

	st, err := p.load(jc, ctx)
	if err != nil {
		p.fail(jc, span, "load", err)
		return nil
	}
	funcs := p.stageFuncs()
	for _, stage := range services.Stages {
		if err := p.runStage(st, stage, funcs[stage]); err != nil {
			p.fail(jc, span, stage.String(), err)
			return nil
		}
	}
	if err := jc.Succeed(); err != nil {
		p.fail(jc, span, "complete", err)
		return nil
	}
	st.log.Info("Analysis run completed",
		"verbatims", len(st.verbatims),
		"mappings", len(st.mappings),
		"topic_rows", len(st.topics),
		"strategic", len(st.strategic),
	)
	return nil
}

func (p *Pipeline) runStage(st *runState, stage services.Stage, fn stageFunc) (err error) {
	ctx, span := p.tracer.Start(st.ctx, "analysis.stage."+stage.String())
	defer span.End()
	if p.observe != nil {
		start := time.Now()
		defer func() {
			status := "ok"
			if err != nil {
				status = "failed"
			}
			p.observe.ObserveStage(stage.String(), status, time.Since(start))
		}()
	}
	outer := st.ctx
	st.ctx = ctx
	defer func() { st.ctx = outer }()

	if err := st.progress(p.weights.StageWeight(stage, services.StageContext{Done: 0, Total: 1}), stage.Label()); err != nil {
		recordErr(span, err)
		return err
	}
	st.log.Debug("Stage started", "stage", stage.String())
	if err := fn(st); err != nil {
		recordErr(span, err)
		return err
	}
	if err := st.checkpoint(); err != nil {
		recordErr(span, err)
		return err
	}
	return st.progress(p.weights.StageWeight(stage, services.StageContext{Done: 1, Total: 1}), stage.Label())
}

func (p *Pipeline) load(jc *jobrt.Context, ctx context.Context) (*runState, error) {
	// A reclaimed stale run reruns from stage 1 but never reports below what
	// the session already showed.
	st := &runState{jc: jc, ctx: ctx, log: jc.Log, last: resumeFloor(jc.Session.Progress)}
	if st.last > 0 {
		st.log.Info("Resuming reclaimed session", "stored_progress", st.last)
	}
	dbc := jc.DBC()
	dbc.Ctx = ctx

	project, err := p.repos.Project.GetByID(dbc, jc.ProjectID())
	if err != nil {
		return nil, apierr.Persist("load project", err)
	}
	if project == nil {
		return nil, apierr.NotFound("project", jc.ProjectID())
	}
	guide, err := p.repos.Guide.GetByProjectID(dbc, project.ID)
	if err != nil {
		return nil, apierr.Persist("load guide", err)
	}
	transcripts, err := p.repos.Transcript.ListByProjectID(dbc, project.ID)
	if err != nil {
		return nil, apierr.Persist("load transcripts", err)
	}
	var missing []string
	if guide == nil || strings.TrimSpace(guide.Content) == "" {
		missing = append(missing, "discussion_guide")
	}
	if len(transcripts) == 0 {
		missing = append(missing, "transcripts")
	}
	if len(missing) > 0 {
		return nil, &apierr.PreconditionError{Missing: missing}
	}
	st.project = project
	st.options = project.Config()
	st.guide = guide
	st.transcripts = transcripts
	return st, st.checkpoint()
}

func (p *Pipeline) fail(jc *jobrt.Context, span trace.Span, stage string, err error) {
	recordErr(span, err)
	if errors.Is(err, context.Canceled) || errors.Is(err, apierr.ErrCancelled) {
		p.log.Info("Analysis run cancelled", "session_id", jc.SessionID(), "stage", stage)
	} else {
		p.log.Error("Analysis stage failed", "session_id", jc.SessionID(), "stage", stage, "error", err)
	}
	jc.Fail(stage, err)
}

func (p *Pipeline) complete(st *runState, task, system, prompt string, out any) error {
	opts := openai.CompletionOptions{
		Task:        task,
		System:      system,
		Temperature: p.cfg.Temperature,
		MaxTokens:   p.cfg.MaxTokens,
	}
	if err := openai.CompleteJSON(st.ctx, p.ai, prompt, opts, out); err != nil {
		return err
	}
	return st.checkpoint()
}

func (st *runState) dbc() dbctx.Context {
	d := st.jc.DBC()
	d.Ctx = st.ctx
	return d
}

func recordErr(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func persist(st *runState, op string, err error) error {
	if err != nil {
		return apierr.Persist(op, err)
	}
	if cerr := st.checkpoint(); cerr != nil {
		return cerr
	}
	return nil
}

var errNoUsableTranscripts = fmt.Errorf("no transcript produced verbatims")
