package stage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/datacrew-cli/internal/ai"
	"github.com/KaramelBytes/datacrew-cli/internal/analysis"
	"github.com/KaramelBytes/datacrew-cli/internal/utils"
)

// Config controls how the orchestrator calls the runtime.
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
	// Timeout bounds each attempt; Retries is the number of extra attempts
	// after a network error or an empty response.
	Timeout time.Duration
	Retries int
	// Parallel runs validate and relate concurrently.
	Parallel bool
	// HaltOnReject skips every stage after validate when the validator
	// answers NO.
	HaltOnReject bool
	Codegen      bool
	Objective    string
	// PriorTokenLimit bounds the earlier-findings block sent to Insight;
	// zero means unbounded.
	PriorTokenLimit int
	// DataPath is the cleaned table path quoted in generated code.
	DataPath string
}

// Input is what one run hands to the stages.
type Input struct {
	Schema []analysis.Field
	// CleanLog is the cleaner's step log, passed to Insight as a finding.
	CleanLog string
}

// Results holds one slot per stage.
type Results map[ID]Result

// Orchestrator runs the external stages in their fixed order.
type Orchestrator struct {
	rt     ai.Runtime
	cfg    Config
	log    *zap.Logger
	onDone func(Result)
}

// New returns an orchestrator. A nil logger disables logging.
func New(rt ai.Runtime, cfg Config, log *zap.Logger) *Orchestrator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{rt: rt, cfg: cfg, log: log.Named("stage")}
}

// OnStageDone registers fn to be called once per finished stage. It may be
// called from several goroutines when Parallel is set.
func (o *Orchestrator) OnStageDone(fn func(Result)) { o.onDone = fn }

// Run executes validate, relate, codegen (when enabled) and insight. It
// never fails: every external stage gets a slot, with placeholder text when
// the stage failed or was skipped.
func (o *Orchestrator) Run(ctx context.Context, in Input) Results {
	req := Request{Schema: in.Schema, Objective: o.cfg.Objective, DataPath: o.cfg.DataPath}
	results := make(Results, len(External()))

	if o.cfg.Parallel && !o.cfg.HaltOnReject {
		var validate, relate Result
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			validate = o.call(gctx, Validate, req)
			return nil
		})
		g.Go(func() error {
			relate = o.call(gctx, Relate, req)
			return nil
		})
		_ = g.Wait()
		results[Validate], results[Relate] = validate, relate
	} else {
		results[Validate] = o.call(ctx, Validate, req)
		if reason, rejected := o.rejected(results[Validate]); rejected {
			note := fmt.Sprintf("skipped: dataset rejected by validator (%s)", reason)
			for _, id := range []ID{Relate, Codegen, Insight} {
				results[id] = o.skip(id, in.Schema, note)
			}
			return results
		}
		results[Relate] = o.call(ctx, Relate, req)
	}

	if o.cfg.Codegen {
		results[Codegen] = o.call(ctx, Codegen, req)
	} else {
		results[Codegen] = o.skip(Codegen, in.Schema, "codegen stage not requested")
	}

	prior := PriorText(results, Validate, Relate)
	if strings.TrimSpace(in.CleanLog) != "" {
		prior = fmt.Sprintf("## %s\n%s\n\n%s", Clean, strings.TrimSpace(in.CleanLog), prior)
	}
	if o.cfg.PriorTokenLimit > 0 {
		prior = utils.TruncateToTokenLimit(prior, o.cfg.PriorTokenLimit)
	}
	insightReq := req
	insightReq.Prior = prior
	results[Insight] = o.call(ctx, Insight, insightReq)
	return results
}

func (o *Orchestrator) rejected(r Result) (string, bool) {
	if !o.cfg.HaltOnReject || !r.OK() {
		return "", false
	}
	v := ParseValidation(r.Text)
	if !v.Structured || v.Value.Accepted {
		return "", false
	}
	reason := v.Value.Reason
	if reason == "" {
		reason = "no reason given"
	}
	return reason, true
}

func (o *Orchestrator) skip(id ID, schema []analysis.Field, note string) Result {
	r := skippedResult(id, schema, note)
	o.log.Info("stage skipped", zap.String("stage", string(id)), zap.String("reason", note))
	o.done(r)
	return r
}

// call runs one stage with per-attempt timeout and bounded retry.
func (o *Orchestrator) call(ctx context.Context, id ID, req Request) Result {
	start := time.Now()
	greq := ai.GenerateRequest{
		Model:       o.cfg.Model,
		Messages:    Messages(id, req),
		MaxTokens:   o.cfg.MaxTokens,
		Temperature: o.cfg.Temperature,
	}
	o.log.Debug("stage request",
		zap.String("stage", string(id)),
		zap.Int("prompt_tokens_est", utils.CountTokens(greq.Messages[0].Content)+utils.CountTokens(greq.Messages[1].Content)))
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= o.cfg.Retries; attempt++ {
		attempts++
		resp, err := o.attempt(ctx, id, greq)
		if err == nil {
			r := Result{
				Stage:    id,
				Status:   StatusOK,
				Text:     strings.TrimSpace(resp.Text()),
				Attempts: attempts,
				Duration: time.Since(start),
				Usage:    resp.Usage,
				Model:    o.cfg.Model,
			}
			o.log.Info("stage finished",
				zap.String("stage", string(id)),
				zap.Int("attempts", attempts),
				zap.Duration("duration", r.Duration),
				zap.Int("tokens", r.Usage.TotalTokens))
			o.done(r)
			return r
		}
		lastErr = err
		o.log.Warn("stage attempt failed",
			zap.String("stage", string(id)),
			zap.Int("attempt", attempts),
			zap.String("kind", string(KindOf(err))),
			zap.Error(err))
		if !retryable(err) || ctx.Err() != nil {
			break
		}
	}
	r := failedResult(id, req.Schema, lastErr, attempts, time.Since(start))
	r.Model = o.cfg.Model
	o.done(r)
	return r
}

// attempt makes one bounded call. Runtime panics are turned into provider
// errors so a faulty backend cannot take the run down.
func (o *Orchestrator) attempt(ctx context.Context, id ID, req ai.GenerateRequest) (resp *ai.GenerateResponse, err error) {
	actx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			resp, err = nil, &ProviderError{Stage: id, Err: fmt.Errorf("runtime panic: %v", p)}
		}
	}()
	resp, err = o.rt.Generate(actx, req)
	if err != nil {
		return nil, Classify(id, err)
	}
	if strings.TrimSpace(resp.Text()) == "" {
		return nil, &EmptyResponse{Stage: id}
	}
	return resp, nil
}

func (o *Orchestrator) done(r Result) {
	if o.onDone != nil {
		o.onDone(r)
	}
}
