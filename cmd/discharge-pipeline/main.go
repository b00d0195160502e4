package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"discharge_pipeline/backend/generate"
	"discharge_pipeline/batch"
	"discharge_pipeline/config"
	"discharge_pipeline/document"
	"discharge_pipeline/eval"
	"discharge_pipeline/internal/cohort"
	"discharge_pipeline/internal/httpapi"
	"discharge_pipeline/internal/store"
	"discharge_pipeline/metrics"
	"discharge_pipeline/prompt"
	"discharge_pipeline/views"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "discharge-pipeline",
		Short: "Batch discharge summary generation over ICU admission records",
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(singleCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

func openStore(logger zerolog.Logger, cfg config.Config) *store.Store {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure work dir")
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open results store")
	}
	return st
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process every pending (admission, model) unit in the cohort",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return runBatch(limit)
		},
	}
	cmd.Flags().Int("limit", 0, "Cap the number of units processed this run (0 = no cap)")
	return cmd
}

func runBatch(limit int) error {
	logger := newLogger()
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if limit > 0 {
		cfg.BatchSize = limit
	}
	st := openStore(logger, cfg)
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Prompt templates reload from the config file while a run is active.
	tm := config.NewTemplateManager(cfg.ConfigPath, cfg.Prompts)
	if err := tm.Watch(ctx); err != nil {
		logger.Warn().Err(err).Msg("prompt template watch disabled")
	}

	svc, err := batch.New(st, cohort.NewDirLoader(cfg.RecordsDir), cfg, tm, metrics.New(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build batch service")
	}
	res, err := svc.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("run %s: %d completed, %d failed, %d deferred, %d skipped (of %d planned)\n",
		res.RunID, res.Completed, res.Failed, res.Deferred, res.Skipped, res.Plan.TotalUnits)
	if res.Failed > 0 {
		return fmt.Errorf("%d unit(s) failed hard; see the failures table", res.Failed)
	}
	return nil
}

func singleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "single <admission-id>",
		Short: "Generate one admission's summary per model and print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			modelID, _ := cmd.Flags().GetString("model")
			return runSingle(args[0], modelID)
		},
	}
	cmd.Flags().String("model", "", "Only generate with this model id")
	return cmd
}

func runSingle(admissionID, modelID string) error {
	logger := newLogger()
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := cohort.NewDirLoader(cfg.RecordsDir)
	adm, err := loader.Load(ctx, admissionID)
	if err != nil {
		return err
	}
	set, err := views.Build(adm, cfg.Views)
	if err != nil {
		return err
	}

	models := cfg.Models
	if modelID != "" {
		models = nil
		for _, m := range cfg.Models {
			if m.ID == modelID {
				models = append(models, m)
			}
		}
		if len(models) == 0 {
			return fmt.Errorf("model %s is not configured", modelID)
		}
	}

	type scoredText struct {
		name    string
		metrics eval.Metrics
	}
	var table []scoredText
	for _, mc := range models {
		gen, err := generate.New(nil, mc)
		if err != nil {
			return err
		}
		jobs, err := prompt.AssembleAll(set, cfg.Prompts.TemplatesFor(mc.Family), cfg.Prompt)
		if err != nil {
			return err
		}
		texts := make(map[string]string, len(views.All))
		for _, name := range views.All {
			out, err := gen.Generate(ctx, jobs[name])
			if err != nil {
				return fmt.Errorf("model %s view %s: %w", mc.ID, name, err)
			}
			texts[name] = out
		}
		doc, err := document.Assemble(admissionID, mc.ID, texts, nil)
		if err != nil {
			return err
		}
		fmt.Printf("==== %s ====\n%s\n\n", mc.ID, doc.Text)
		table = append(table, scoredText{name: mc.ID, metrics: eval.Score(doc.Text)})
	}
	if ref := strings.TrimSpace(adm.DischargeNote); ref != "" {
		table = append(table, scoredText{name: "reference", metrics: eval.Score(ref)})
	}

	fmt.Printf("%-20s %-22s %s\n", "TEXT", "AVG SENTENCE LENGTH", "TERM DENSITY")
	for _, row := range table {
		fmt.Printf("%-20s %-22.2f %.3f\n", row.name, row.metrics.AvgSentenceLength, row.metrics.TermDensity)
	}
	return nil
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the pending plan and store counts without processing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
}

func runStatus() error {
	logger := newLogger()
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	st := openStore(logger, cfg)
	defer st.Close()
	ctx := context.Background()

	ids, err := cohort.ReadCohortFile(cfg.CohortPath)
	if err != nil {
		return err
	}
	done, err := st.CompletedSet(ctx)
	if err != nil {
		return err
	}
	_, plan := batch.Plan(ids, cfg.Models, done, cfg.BatchSize)

	fmt.Printf("cohort: %d admissions x %d models = %d units\n", len(ids), len(cfg.Models), plan.TotalUnits)
	fmt.Printf("%-12s %d\n", "done", plan.AlreadyDone)
	fmt.Printf("%-12s %d\n", "pending", plan.Pending)
	fmt.Printf("%-12s %d\n", "selected", plan.Selected)

	counts, err := st.TableCounts(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("store: %d summaries, %d sections, %d failures, %d checkpoints\n",
		counts.Summaries, counts.Sections, counts.Failures, counts.Checkpoints)

	if run, err := st.LatestRun(ctx); err == nil && run != nil {
		finished := "still running"
		if run.FinishedAt != nil {
			finished = run.FinishedAt.Format(time.RFC3339)
		}
		fmt.Printf("last run %s: %s (%d/%d completed, finished %s)\n",
			run.RunID, run.Status, run.UnitsCompleted, run.UnitsTotal, finished)
	}
	return nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only results API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	logger := newLogger()
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	st := openStore(logger, cfg)
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := httpapi.New(st, cfg, metrics.New(), logger)
	return api.ListenAndServe(ctx)
}
