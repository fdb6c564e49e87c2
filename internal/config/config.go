// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

package config

import (
	"errors"
	"strings"
	"time"

	gferr "github.com/gatefix-dev/gatefix/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the top-level gatefix configuration.
type Config struct {
	Budgets  BudgetsConfig  `mapstructure:"budgets"`
	Gate     GateConfig     `mapstructure:"gate"`
	Exec     ExecConfig     `mapstructure:"exec"`
	Learning LearningConfig `mapstructure:"learning"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Provider ProviderConfig `mapstructure:"provider"`
	Eval     EvalConfig     `mapstructure:"eval"`
}

// BudgetsConfig sets per-episode resource ceilings. The loop enforces rounds
// and model calls; the gate enforces patch attempts and test runs.
type BudgetsConfig struct {
	MaxRounds        int `mapstructure:"max_rounds"`
	MaxPatchAttempts int `mapstructure:"max_patch_attempts"`
	MaxTestRuns      int `mapstructure:"max_test_runs"`
	MaxModelCalls    int `mapstructure:"max_model_calls"`
}

// GateConfig controls the shape constraints applied to edit proposals.
type GateConfig struct {
	MaxFilesTouched         int  `mapstructure:"max_files_touched"`
	MaxDiffLines            int  `mapstructure:"max_diff_lines"`
	ForbidTestModifications bool `mapstructure:"forbid_test_modifications"`
}

// ExecConfig limits subprocess work done by the executor.
type ExecConfig struct {
	TestTimeout   time.Duration `mapstructure:"test_timeout"`
	SearchTimeout time.Duration `mapstructure:"search_timeout"`
	MaxFileBytes  int           `mapstructure:"max_file_bytes"`
}

// LearningConfig controls the strategy bandit and quarantine lane.
type LearningConfig struct {
	Enabled    bool             `mapstructure:"enabled"`
	DBPath     string           `mapstructure:"db_path"`
	Method     string           `mapstructure:"method"`
	Epsilon    float64          `mapstructure:"epsilon"`
	Quarantine QuarantineConfig `mapstructure:"quarantine"`
}

// QuarantineConfig sets the evidence thresholds for strategy quarantine.
type QuarantineConfig struct {
	MinSuccesses      int     `mapstructure:"min_successes"`
	MaxRegressionRate float64 `mapstructure:"max_regression_rate"`
	MinTriesForRate   int     `mapstructure:"min_tries_for_rate"`
}

// StorageConfig selects the learning persistence backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
}

// ProviderConfig holds LLM provider selection and credentials.
type ProviderConfig struct {
	Name        string  `mapstructure:"name"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	Endpoint    string  `mapstructure:"endpoint"`
	Temperature float64 `mapstructure:"temperature"`
}

// EvalConfig controls batch evaluation runs.
type EvalConfig struct {
	Parallel    int           `mapstructure:"parallel"`
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
	WorkDir     string        `mapstructure:"work_dir"`
	ResultsDir  string        `mapstructure:"results_dir"`
}

// SetDefaults installs default values on the given Viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("budgets.max_rounds", 50)
	v.SetDefault("budgets.max_patch_attempts", 20)
	v.SetDefault("budgets.max_test_runs", 10)
	v.SetDefault("budgets.max_model_calls", 60)

	v.SetDefault("gate.max_files_touched", 5)
	v.SetDefault("gate.max_diff_lines", 500)
	v.SetDefault("gate.forbid_test_modifications", true)

	v.SetDefault("exec.test_timeout", 5*time.Minute)
	v.SetDefault("exec.search_timeout", 30*time.Second)
	v.SetDefault("exec.max_file_bytes", 8192)

	v.SetDefault("learning.enabled", true)
	v.SetDefault("learning.db_path", "gatefix-learning.db")
	v.SetDefault("learning.method", "thompson")
	v.SetDefault("learning.epsilon", 0.1)
	v.SetDefault("learning.quarantine.min_successes", 2)
	v.SetDefault("learning.quarantine.max_regression_rate", 0.3)
	v.SetDefault("learning.quarantine.min_tries_for_rate", 5)

	v.SetDefault("storage.backend", "sqlite")

	v.SetDefault("provider.name", "anthropic")
	v.SetDefault("provider.model", "claude-sonnet-4-5")
	v.SetDefault("provider.temperature", 0.0)

	v.SetDefault("eval.parallel", 1)
	v.SetDefault("eval.task_timeout", 30*time.Minute)
	v.SetDefault("eval.work_dir", "eval_runs")
	v.SetDefault("eval.results_dir", "eval_results")
}

// SetupEnv binds environment variables with the GATEFIX_ prefix, so e.g.
// GATEFIX_BUDGETS_MAX_ROUNDS overrides budgets.max_rounds.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("GATEFIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from path, falling back to defaults plus
// environment overrides when path is empty.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, gferr.Errorf(gferr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// FromViper unmarshals and validates a Config from an already-populated Viper.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, gferr.Errorf(gferr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, gferr.Errorf(gferr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors. It returns all
// validation errors found rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateBudgets()...)
	errs = append(errs, c.validateGate()...)
	errs = append(errs, c.validateExec()...)
	errs = append(errs, c.validateLearning()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateProvider()...)
	errs = append(errs, c.validateEval()...)

	return errs
}

func (c *Config) validateBudgets() []error {
	var errs []error

	check := func(name string, got int) {
		if got <= 0 {
			errs = append(errs, gferr.Errorf(gferr.CodeConfigValidateInvalidValue,
				"config: budgets.%s must be greater than 0, got %d", name, got))
		}
	}
	check("max_rounds", c.Budgets.MaxRounds)
	check("max_patch_attempts", c.Budgets.MaxPatchAttempts)
	check("max_test_runs", c.Budgets.MaxTestRuns)
	check("max_model_calls", c.Budgets.MaxModelCalls)

	return errs
}

func (c *Config) validateGate() []error {
	var errs []error

	if c.Gate.MaxFilesTouched <= 0 {
		errs = append(errs, gferr.Errorf(gferr.CodeConfigValidateInvalidValue,
			"config: gate.max_files_touched must be greater than 0, got %d", c.Gate.MaxFilesTouched))
	}
	if c.Gate.MaxDiffLines <= 0 {
		errs = append(errs, gferr.Errorf(gferr.CodeConfigValidateInvalidValue,
			"config: gate.max_diff_lines must be greater than 0, got %d", c.Gate.MaxDiffLines))
	}

	return errs
}

func (c *Config) validateExec() []error {
	var errs []error

	if c.Exec.TestTimeout <= 0 {
		errs = append(errs, gferr.Errorf(gferr.CodeConfigValidateInvalidValue,
			"config: exec.test_timeout must be greater than 0, got %s", c.Exec.TestTimeout))
	}
	if c.Exec.SearchTimeout <= 0 {
		errs = append(errs, gferr.Errorf(gferr.CodeConfigValidateInvalidValue,
			"config: exec.search_timeout must be greater than 0, got %s", c.Exec.SearchTimeout))
	}
	if c.Exec.MaxFileBytes <= 0 {
		errs = append(errs, gferr.Errorf(gferr.CodeConfigValidateInvalidValue,
			"config: exec.max_file_bytes must be greater than 0, got %d", c.Exec.MaxFileBytes))
	}

	return errs
}

func (c *Config) validateLearning() []error {
	var errs []error

	switch c.Learning.Method {
	case "thompson", "ucb", "epsilon_greedy":
	default:
		errs = append(errs, gferr.Errorf(gferr.CodeConfigValidateInvalidValue,
			"config: learning.method must be one of [thompson, ucb, epsilon_greedy], got %q",
			c.Learning.Method))
	}

	if c.Learning.Epsilon < 0 || c.Learning.Epsilon > 1 {
		errs = append(errs, gferr.Errorf(gferr.CodeConfigValidateInvalidValue,
			"config: learning.epsilon must be in [0, 1], got %g", c.Learning.Epsilon))
	}

	q := c.Learning.Quarantine
	if q.MinSuccesses < 1 {
		errs = append(errs, gferr.Errorf(gferr.CodeConfigValidateInvalidValue,
			"config: learning.quarantine.min_successes must be at least 1, got %d", q.MinSuccesses))
	}
	if q.MaxRegressionRate < 0 || q.MaxRegressionRate > 1 {
		errs = append(errs, gferr.Errorf(gferr.CodeConfigValidateInvalidValue,
			"config: learning.quarantine.max_regression_rate must be in [0, 1], got %g", q.MaxRegressionRate))
	}
	if q.MinTriesForRate < 1 {
		errs = append(errs, gferr.Errorf(gferr.CodeConfigValidateInvalidValue,
			"config: learning.quarantine.min_tries_for_rate must be at least 1, got %d", q.MinTriesForRate))
	}

	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error

	switch c.Storage.Backend {
	case "memory", "sqlite":
	default:
		errs = append(errs, gferr.Errorf(gferr.CodeConfigValidateInvalidValue,
			"config: storage.backend must be one of [memory, sqlite], got %q", c.Storage.Backend))
	}

	return errs
}

func (c *Config) validateProvider() []error {
	var errs []error

	switch c.Provider.Name {
	case "anthropic", "openai":
	default:
		errs = append(errs, gferr.Errorf(gferr.CodeConfigValidateInvalidValue,
			"config: provider.name must be one of [anthropic, openai], got %q", c.Provider.Name))
	}

	if c.Provider.Temperature < 0 || c.Provider.Temperature > 2 {
		errs = append(errs, gferr.Errorf(gferr.CodeConfigValidateInvalidValue,
			"config: provider.temperature must be in [0, 2], got %g", c.Provider.Temperature))
	}

	return errs
}

func (c *Config) validateEval() []error {
	var errs []error

	if c.Eval.Parallel < 1 {
		errs = append(errs, gferr.Errorf(gferr.CodeConfigValidateInvalidValue,
			"config: eval.parallel must be at least 1, got %d", c.Eval.Parallel))
	}
	if c.Eval.TaskTimeout <= 0 {
		errs = append(errs, gferr.Errorf(gferr.CodeConfigValidateInvalidValue,
			"config: eval.task_timeout must be greater than 0, got %s", c.Eval.TaskTimeout))
	}

	return errs
}
