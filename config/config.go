package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"discharge_pipeline/backend/generate"
	"discharge_pipeline/features"
	"discharge_pipeline/prompt"
	"discharge_pipeline/views"
)

// Config holds pipeline configuration derived from environment variables
// and an optional config file.
type Config struct {
	HTTPPort     string
	CohortPath   string
	RecordsDir   string
	WorkDir      string
	DBPath       string
	WorkerCount  int
	BatchSize    int
	Models       []generate.ModelConfig
	Views        views.Config
	Prompt       prompt.Config
	Prompts      PromptConfig
	ConfigPath   string
	StrictConfig bool
	InDocker     bool
}

type fileConfig struct {
	CohortPath  string                 `json:"cohort_path" yaml:"cohort_path"`
	RecordsDir  string                 `json:"records_dir" yaml:"records_dir"`
	HTTPPort    string                 `json:"http_port" yaml:"http_port"`
	WorkDir     string                 `json:"work_dir" yaml:"work_dir"`
	DBPath      string                 `json:"db_path" yaml:"db_path"`
	WorkerCount *int                   `json:"worker_count" yaml:"worker_count"`
	BatchSize   *int                   `json:"batch_size" yaml:"batch_size"`
	Models      []generate.ModelConfig `json:"models" yaml:"models"`
	Trend       trendFileConfig        `json:"trend" yaml:"trend"`
	Views       viewsFileConfig        `json:"views" yaml:"views"`
	Prompt      promptFileConfig       `json:"prompt" yaml:"prompt"`
	Prompts     PromptConfig           `json:"prompts" yaml:"prompts"`
}

type trendFileConfig struct {
	MinSamples       *int               `json:"min_samples" yaml:"min_samples"`
	MinSpanMinutes   *int               `json:"min_span_minutes" yaml:"min_span_minutes"`
	DefaultThreshold *float64           `json:"default_threshold" yaml:"default_threshold"`
	Thresholds       map[string]float64 `json:"thresholds" yaml:"thresholds"`
}

type viewsFileConfig struct {
	MaxDiagnoses       *int `json:"max_diagnoses" yaml:"max_diagnoses"`
	MaxProcedures      *int `json:"max_procedures" yaml:"max_procedures"`
	MaxLabs            *int `json:"max_labs" yaml:"max_labs"`
	MaxMeasurements    *int `json:"max_measurements" yaml:"max_measurements"`
	MaxMeds            *int `json:"max_meds" yaml:"max_meds"`
	MaxOutputs         *int `json:"max_outputs" yaml:"max_outputs"`
	MaxProcedureEvents *int `json:"max_procedure_events" yaml:"max_procedure_events"`
}

type promptFileConfig struct {
	TotalBudget         *int               `json:"total_budget" yaml:"total_budget"`
	MinFloor            *int               `json:"min_floor" yaml:"min_floor"`
	BytesPerToken       *int               `json:"bytes_per_token" yaml:"bytes_per_token"`
	Weights             map[string]float64 `json:"weights" yaml:"weights"`
	OutputTokens        map[string]int     `json:"output_tokens" yaml:"output_tokens"`
	DefaultOutputTokens *int               `json:"default_output_tokens" yaml:"default_output_tokens"`
}

const (
	defaultPort        = ":8000"
	defaultCohortFile  = "runtime/cohort.txt"
	defaultRecordsDir  = "runtime/records"
	defaultWorkDir     = "runtime/work"
	defaultDBFile      = "summaries.db"
	defaultWorkerCount = 4
	defaultBatchSize   = 0
)

func defaultModels() []generate.ModelConfig {
	return []generate.ModelConfig{
		{ID: "flan-t5-large", Family: generate.FamilySeq2Seq, BaseURL: "http://localhost:8001", APIKeyEnv: "GENERATION_API_KEY"},
		{ID: "meditron-7b", Family: generate.FamilyCausal, BaseURL: "http://localhost:8002", APIKeyEnv: "GENERATION_API_KEY"},
	}
}

// Load reads configuration from environment variables and applies sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()
	return LoadPath(getEnv("CONFIG_PATH", filepath.Join("config", "config.yaml")))
}

// LoadPath reads configuration rooted at an explicit config file. Environment
// variables still win over file values.
func LoadPath(configPath string) (Config, error) {
	cfg := Config{
		WorkerCount:  defaultWorkerCount,
		BatchSize:    defaultBatchSize,
		Models:       defaultModels(),
		Views:        views.DefaultConfig(),
		Prompt:       prompt.DefaultConfig(),
		Prompts:      DefaultPromptConfig(),
		ConfigPath:   configPath,
		StrictConfig: parseBoolEnv("STRICT_CONFIG"),
		InDocker:     parseBoolEnv("IN_DOCKER"),
	}

	fileCfg, fileErr := loadFileConfig(configPath)
	if fileErr != nil {
		if cfg.StrictConfig {
			return cfg, fmt.Errorf("config load failed (%s): %w", configPath, fileErr)
		}
		log.Printf("config load failed (%s): %v (using defaults)", configPath, fileErr)
	}

	cfg.Views = applyViewOverrides(cfg.Views, fileCfg.Views)
	cfg.Views.Trend = applyTrendOverrides(cfg.Views.Trend, fileCfg.Trend)
	cfg.Prompt = applyPromptOverrides(cfg.Prompt, fileCfg.Prompt)
	cfg.Prompts = MergePromptConfig(cfg.Prompts, fileCfg.Prompts)
	if len(fileCfg.Models) > 0 {
		cfg.Models = fileCfg.Models
	}
	if fileCfg.WorkerCount != nil && *fileCfg.WorkerCount > 0 {
		cfg.WorkerCount = *fileCfg.WorkerCount
	}
	if fileCfg.BatchSize != nil && *fileCfg.BatchSize >= 0 {
		cfg.BatchSize = *fileCfg.BatchSize
	}

	cfg.CohortPath = firstNonEmpty(os.Getenv("COHORT_PATH"), fileCfg.CohortPath, defaultCohortFile)
	cfg.RecordsDir = firstNonEmpty(os.Getenv("RECORDS_DIR"), fileCfg.RecordsDir, defaultRecordsDir)
	cfg.WorkDir = firstNonEmpty(os.Getenv("WORK_DIR"), fileCfg.WorkDir, defaultWorkDir)
	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		cfg.DBPath = dbPath
	} else if fileCfg.DBPath != "" {
		cfg.DBPath = fileCfg.DBPath
	} else {
		cfg.DBPath = filepath.Join(cfg.WorkDir, defaultDBFile)
	}

	cfg.HTTPPort = firstNonEmpty(os.Getenv("HTTP_PORT"), fileCfg.HTTPPort, defaultPort)
	if legacyPort := os.Getenv("PORT"); legacyPort != "" && cfg.HTTPPort == defaultPort {
		cfg.HTTPPort = legacyPort
	}
	if !strings.HasPrefix(cfg.HTTPPort, ":") {
		cfg.HTTPPort = ":" + cfg.HTTPPort
	}

	if v := os.Getenv("WORKER_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Printf("invalid WORKER_COUNT=%q, using default %d", v, defaultWorkerCount)
			n = defaultWorkerCount
		}
		if n <= 0 {
			log.Printf("WORKER_COUNT must be positive, using default %d", defaultWorkerCount)
			n = defaultWorkerCount
		}
		cfg.WorkerCount = n
	}

	if v, ok, err := parseIntEnv("BATCH_SIZE"); err != nil {
		if cfg.StrictConfig {
			return cfg, fmt.Errorf("invalid BATCH_SIZE: %w", err)
		}
		log.Printf("invalid BATCH_SIZE: %v (using default)", err)
	} else if ok && v >= 0 {
		cfg.BatchSize = v
	}

	if v, ok, err := parseIntEnv("TREND_MIN_SAMPLES"); err != nil {
		if cfg.StrictConfig {
			return cfg, fmt.Errorf("invalid TREND_MIN_SAMPLES: %w", err)
		}
		log.Printf("invalid TREND_MIN_SAMPLES: %v (using default)", err)
	} else if ok && v > 0 {
		cfg.Views.Trend.MinSamples = v
	}
	if v, ok, err := parseIntEnv("TREND_MIN_SPAN_MINUTES"); err != nil {
		if cfg.StrictConfig {
			return cfg, fmt.Errorf("invalid TREND_MIN_SPAN_MINUTES: %w", err)
		}
		log.Printf("invalid TREND_MIN_SPAN_MINUTES: %v (using default)", err)
	} else if ok && v >= 0 {
		cfg.Views.Trend.MinSpan = time.Duration(v) * time.Minute
	}
	if v, ok, err := parseFloatEnv("TREND_DEFAULT_THRESHOLD"); err != nil {
		if cfg.StrictConfig {
			return cfg, fmt.Errorf("invalid TREND_DEFAULT_THRESHOLD: %w", err)
		}
		log.Printf("invalid TREND_DEFAULT_THRESHOLD: %v (using default)", err)
	} else if ok && v >= 0 {
		cfg.Views.Trend.DefaultThreshold = v
	}
	if v, ok, err := parseIntEnv("PROMPT_TOTAL_BUDGET"); err != nil {
		if cfg.StrictConfig {
			return cfg, fmt.Errorf("invalid PROMPT_TOTAL_BUDGET: %w", err)
		}
		log.Printf("invalid PROMPT_TOTAL_BUDGET: %v (using default)", err)
	} else if ok && v > 0 {
		cfg.Prompt.TotalBudget = v
	}
	if v, ok, err := parseIntEnv("PROMPT_MIN_FLOOR"); err != nil {
		if cfg.StrictConfig {
			return cfg, fmt.Errorf("invalid PROMPT_MIN_FLOOR: %w", err)
		}
		log.Printf("invalid PROMPT_MIN_FLOOR: %v (using default)", err)
	} else if ok && v > 0 {
		cfg.Prompt.MinFloor = v
	}

	if err := validateConfig(cfg); err != nil {
		if cfg.StrictConfig {
			return cfg, err
		}
		log.Printf("config validation failed: %v (continuing)", err)
	}

	return cfg, nil
}

func loadFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if len(data) == 0 {
		return cfg, errors.New("empty config file")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.RecordsDir) == "" {
		return errors.New("RECORDS_DIR is required")
	}
	if strings.TrimSpace(cfg.HTTPPort) == "" {
		return errors.New("HTTP_PORT is required")
	}
	if len(cfg.Models) == 0 {
		return errors.New("at least one model must be configured")
	}
	seen := make(map[string]struct{}, len(cfg.Models))
	for _, m := range cfg.Models {
		if strings.TrimSpace(m.ID) == "" {
			return errors.New("model id is required")
		}
		if _, dup := seen[m.ID]; dup {
			return fmt.Errorf("duplicate model id %q", m.ID)
		}
		seen[m.ID] = struct{}{}
		switch m.Family {
		case generate.FamilySeq2Seq, generate.FamilyCausal:
		default:
			return fmt.Errorf("model %s: unknown family %q", m.ID, m.Family)
		}
		if strings.TrimSpace(m.BaseURL) == "" {
			return fmt.Errorf("model %s: base_url is required", m.ID)
		}
	}
	if cfg.Views.Trend.MinSamples < 2 {
		return fmt.Errorf("trend min_samples must be at least 2 (got %d)", cfg.Views.Trend.MinSamples)
	}
	if cfg.Prompt.MinFloor <= 0 {
		return errors.New("prompt min_floor must be positive")
	}
	if cfg.Prompt.TotalBudget < cfg.Prompt.MinFloor*len(views.All) {
		return fmt.Errorf("prompt total_budget %d cannot cover %d views at floor %d",
			cfg.Prompt.TotalBudget, len(views.All), cfg.Prompt.MinFloor)
	}
	return nil
}

func applyTrendOverrides(base features.TrendConfig, override trendFileConfig) features.TrendConfig {
	if override.MinSamples != nil && *override.MinSamples > 0 {
		base.MinSamples = *override.MinSamples
	}
	if override.MinSpanMinutes != nil && *override.MinSpanMinutes >= 0 {
		base.MinSpan = time.Duration(*override.MinSpanMinutes) * time.Minute
	}
	if override.DefaultThreshold != nil && *override.DefaultThreshold >= 0 {
		base.DefaultThreshold = *override.DefaultThreshold
	}
	if len(override.Thresholds) > 0 {
		base.Thresholds = override.Thresholds
	}
	return base
}

func applyViewOverrides(base views.Config, override viewsFileConfig) views.Config {
	if override.MaxDiagnoses != nil && *override.MaxDiagnoses > 0 {
		base.MaxDiagnoses = *override.MaxDiagnoses
	}
	if override.MaxProcedures != nil && *override.MaxProcedures > 0 {
		base.MaxProcedures = *override.MaxProcedures
	}
	if override.MaxLabs != nil && *override.MaxLabs > 0 {
		base.MaxLabs = *override.MaxLabs
	}
	if override.MaxMeasurements != nil && *override.MaxMeasurements > 0 {
		base.MaxMeasurements = *override.MaxMeasurements
	}
	if override.MaxMeds != nil && *override.MaxMeds > 0 {
		base.MaxMeds = *override.MaxMeds
	}
	if override.MaxOutputs != nil && *override.MaxOutputs > 0 {
		base.MaxOutputs = *override.MaxOutputs
	}
	if override.MaxProcedureEvents != nil && *override.MaxProcedureEvents > 0 {
		base.MaxProcedureEvents = *override.MaxProcedureEvents
	}
	return base
}

func applyPromptOverrides(base prompt.Config, override promptFileConfig) prompt.Config {
	if override.TotalBudget != nil && *override.TotalBudget > 0 {
		base.TotalBudget = *override.TotalBudget
	}
	if override.MinFloor != nil && *override.MinFloor > 0 {
		base.MinFloor = *override.MinFloor
	}
	if override.BytesPerToken != nil && *override.BytesPerToken > 0 {
		base.BytesPerToken = *override.BytesPerToken
	}
	for view, w := range override.Weights {
		if w > 0 {
			base.Weights[view] = w
		}
	}
	for view, n := range override.OutputTokens {
		if n > 0 {
			base.OutputTokens[view] = n
		}
	}
	if override.DefaultOutputTokens != nil && *override.DefaultOutputTokens > 0 {
		base.DefaultOutputTokens = *override.DefaultOutputTokens
	}
	return base
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return val
		}
	}
	return ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBoolEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	return false
}

func parseIntEnv(key string) (int, bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false, nil
	}
	val, err := strconv.Atoi(raw)
	return val, true, err
}

func parseFloatEnv(key string) (float64, bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false, nil
	}
	val, err := strconv.ParseFloat(raw, 64)
	return val, true, err
}
