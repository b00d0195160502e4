package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"discharge_pipeline/backend/generate"
	"discharge_pipeline/config"
	"discharge_pipeline/document"
	"discharge_pipeline/internal/cohort"
	"discharge_pipeline/internal/store"
	"discharge_pipeline/metrics"
	"discharge_pipeline/prompt"
	"discharge_pipeline/views"
)

// Failure kinds recorded for hard unit failures.
const (
	FailKindInput    = "input"
	FailKindFeatures = "features"
	FailKindPrompt   = "prompt"
	FailKindGenerate = "generate"
	FailKindAssemble = "assemble"
)

// Service drives resumable batch generation runs. A unit is one
// (admission, model) pair; completed units are recorded in the checkpoint
// log and never reprocessed.
type Service struct {
	store  *store.Store
	loader cohort.Loader
	cfg    config.Config
	tm     *config.TemplateManager
	met    *metrics.Metrics
	log    zerolog.Logger

	gens     map[string]generate.Generator
	families map[string]string

	// genSlot serializes backend calls. The model servers handle one
	// request at a time; worker concurrency covers the CPU stages on
	// either side of the call.
	genSlot chan struct{}
}

// New wires a batch service. Generators are constructed once per model and
// reused across runs. A nil metrics sink gets a private one.
func New(st *store.Store, loader cohort.Loader, cfg config.Config, tm *config.TemplateManager, met *metrics.Metrics, logger zerolog.Logger) (*Service, error) {
	gens := make(map[string]generate.Generator, len(cfg.Models))
	families := make(map[string]string, len(cfg.Models))
	for _, mc := range cfg.Models {
		gen, err := generate.New(nil, mc)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", mc.ID, err)
		}
		gens[mc.ID] = gen
		families[mc.ID] = mc.Family
	}
	if met == nil {
		met = metrics.New()
	}
	return &Service{
		store:    st,
		loader:   loader,
		cfg:      cfg,
		tm:       tm,
		met:      met,
		log:      logger,
		gens:     gens,
		families: families,
		genSlot:  make(chan struct{}, 1),
	}, nil
}

// Result summarizes one batch run. Deferred units hit a transient backend
// condition and stay unmarked for the next run.
type Result struct {
	RunID     string  `json:"run_id"`
	Plan      Summary `json:"plan"`
	Completed int     `json:"completed"`
	Failed    int     `json:"failed"`
	Deferred  int     `json:"deferred"`
	Skipped   int     `json:"skipped"`
}

// Run plans and executes one batch pass over the cohort. Unit-level
// failures are absorbed into the Result; Run itself only errors when the
// plan cannot be built or recorded.
func (s *Service) Run(ctx context.Context) (Result, error) {
	runID := uuid.NewString()
	logger := s.log.With().Str("run_id", runID).Logger()

	ids, err := cohort.ReadCohortFile(s.cfg.CohortPath)
	if err != nil {
		return Result{}, fmt.Errorf("read cohort: %w", err)
	}
	done, err := s.store.CompletedSet(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load checkpoint log: %w", err)
	}
	units, plan := Plan(ids, s.cfg.Models, done, s.cfg.BatchSize)
	res := Result{RunID: runID, Plan: plan, Skipped: plan.AlreadyDone}
	for i := 0; i < plan.AlreadyDone; i++ {
		s.met.RecordSkip()
	}
	s.met.UpdatePool(s.cfg.WorkerCount, len(units))

	if err := s.store.StartRun(ctx, runID, len(units), time.Now().UTC()); err != nil {
		return res, fmt.Errorf("record run: %w", err)
	}
	logger.Info().Int("cohort", len(ids)).Int("selected", len(units)).Int("already_done", plan.AlreadyDone).Msg("batch run planned")

	var mu sync.Mutex
	pool := NewPool(ctx, s.cfg.WorkerCount)
	for _, u := range units {
		unit := u
		ok := pool.Submit(ctx, Task{
			ID: unit.AdmissionID + "/" + unit.ModelID,
			Work: func(wctx context.Context) error {
				return s.processUnit(wctx, logger, runID, unit)
			},
			OnFinish: func(err error) {
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					s.met.RecordUnit(nil)
					res.Completed++
				case errors.Is(err, generate.ErrUnavailable),
					errors.Is(err, context.Canceled),
					errors.Is(err, context.DeadlineExceeded):
					res.Deferred++
				default:
					s.met.RecordUnit(err)
					res.Failed++
				}
			},
		})
		if !ok {
			break
		}
	}
	pool.Drain()
	s.met.UpdatePool(s.cfg.WorkerCount, 0)

	status := "completed"
	var errMsg *string
	if ctx.Err() != nil {
		status = "canceled"
		msg := ctx.Err().Error()
		errMsg = &msg
	}
	// The run record is closed even when ctx was canceled mid-run.
	finishCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.FinishRun(finishCtx, runID, status, res.Completed, res.Failed, res.Skipped, errMsg, time.Now().UTC()); err != nil {
		logger.Error().Err(err).Msg("finish run record")
	}
	logger.Info().Int("completed", res.Completed).Int("failed", res.Failed).Int("deferred", res.Deferred).Str("status", status).Msg("batch run finished")
	return res, nil
}

// processUnit takes one unit through load, feature extraction, prompt
// assembly, per-view generation, and document assembly. The checkpoint is
// appended only after the full result is saved.
func (s *Service) processUnit(ctx context.Context, logger zerolog.Logger, runID string, unit Unit) error {
	ulog := logger.With().Str("admission_id", unit.AdmissionID).Str("model_id", unit.ModelID).Logger()
	start := time.Now()

	adm, err := s.loader.Load(ctx, unit.AdmissionID)
	if err != nil {
		if errors.Is(err, cohort.ErrMalformed) {
			s.failUnit(ctx, ulog, runID, unit, FailKindInput, err)
		}
		return err
	}

	set, err := views.Build(adm, s.cfg.Views)
	if err != nil {
		s.failUnit(ctx, ulog, runID, unit, FailKindFeatures, err)
		return err
	}

	family := s.families[unit.ModelID]
	jobs, err := prompt.AssembleAll(set, s.templatesFor(family), s.cfg.Prompt)
	if err != nil {
		s.failUnit(ctx, ulog, runID, unit, FailKindPrompt, err)
		return err
	}

	gen, ok := s.gens[unit.ModelID]
	if !ok {
		err := fmt.Errorf("no generator for model %s", unit.ModelID)
		s.failUnit(ctx, ulog, runID, unit, FailKindGenerate, err)
		return err
	}

	now := time.Now().UTC()
	texts := make(map[string]string, len(views.All))
	sections := make([]store.Section, 0, len(views.All))
	for _, name := range views.All {
		job := jobs[name]
		out, err := s.generate(ctx, gen, job)
		if err != nil {
			if errors.Is(err, generate.ErrUnavailable) {
				s.met.RecordBackendRetry()
				ulog.Warn().Err(err).Str("view", name).Msg("backend unavailable, unit left for next run")
				return err
			}
			if ctx.Err() != nil {
				return err
			}
			s.failUnit(ctx, ulog, runID, unit, FailKindGenerate, fmt.Errorf("view %s: %w", name, err))
			return err
		}
		view := set.Views[name]
		viewJSON, _ := json.Marshal(view)
		dropped := append(append([]string(nil), view.Dropped...), job.DroppedLabels...)
		texts[name] = out
		sections = append(sections, store.Section{
			AdmissionID:    unit.AdmissionID,
			ModelID:        unit.ModelID,
			ViewName:       name,
			GeneratedText:  out,
			PromptText:     job.PromptText,
			FeaturesJSON:   string(viewJSON),
			StatementCount: job.TotalStatements,
			DroppedLabels:  dropped,
			PromptTokens:   job.PromptTokens,
			CreatedAt:      now,
		})
		s.met.RecordSection()
	}

	doc, err := document.Assemble(unit.AdmissionID, unit.ModelID, texts, nil)
	if err != nil {
		s.failUnit(ctx, ulog, runID, unit, FailKindAssemble, err)
		return err
	}

	sum := store.Summary{
		AdmissionID:  unit.AdmissionID,
		ModelID:      unit.ModelID,
		FullText:     doc.Text,
		SectionOrder: doc.SectionOrder,
		RunID:        runID,
		CreatedAt:    now,
	}
	if err := s.store.SaveUnitResult(ctx, sum, sections); err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	cp := store.Checkpoint{AdmissionID: unit.AdmissionID, ModelID: unit.ModelID, RunID: runID, CreatedAt: time.Now().UTC()}
	if err := s.store.AppendCheckpoint(ctx, cp); err != nil && !errors.Is(err, store.ErrDuplicate) {
		return fmt.Errorf("append checkpoint: %w", err)
	}
	ulog.Info().Int("sections", len(sections)).Dur("took", time.Since(start)).Msg("unit completed")
	return nil
}

// generate holds the single generation slot for the duration of one call.
func (s *Service) generate(ctx context.Context, gen generate.Generator, job prompt.GenerationJob) (string, error) {
	select {
	case s.genSlot <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-s.genSlot }()
	return gen.Generate(ctx, job)
}

func (s *Service) templatesFor(family string) map[string]string {
	if s.tm != nil {
		return s.tm.TemplatesFor(family)
	}
	return s.cfg.Prompts.TemplatesFor(family)
}

// failUnit logs and records a hard failure. The unit stays unmarked in the
// checkpoint log; a later run will retry it and fail fast again unless the
// input changed.
func (s *Service) failUnit(ctx context.Context, ulog zerolog.Logger, runID string, unit Unit, kind string, cause error) {
	ulog.Error().Err(cause).Str("kind", kind).Msg("unit failed")
	f := store.UnitFailure{
		AdmissionID: unit.AdmissionID,
		ModelID:     unit.ModelID,
		Kind:        kind,
		Message:     cause.Error(),
		RunID:       runID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.RecordFailure(ctx, f); err != nil {
		ulog.Error().Err(err).Msg("record unit failure")
	}
}
