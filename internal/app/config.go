package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration. Values come from the optional YAML
// file named by CONFIG_FILE, overridden by environment variables; anything
// still unset gets its default.
type Config struct {
	DataDir   string `envconfig:"DATA_DIR" yaml:"data_dir" validate:"required"`
	LogLevel  string `envconfig:"LOG_LEVEL" yaml:"log_level" validate:"oneof=debug info warn warning error"`
	LogFormat string `envconfig:"LOG_FORMAT" yaml:"log_format" validate:"oneof=text json"`

	KlineDir  string `envconfig:"KLINE_DIR" yaml:"kline_dir"`
	FlowDir   string `envconfig:"FLOW_DIR" yaml:"flow_dir"`
	CacheDir  string `envconfig:"CACHE_DIR" yaml:"cache_dir" validate:"required"`
	OutputDir string `envconfig:"OUTPUT_DIR" yaml:"output_dir" validate:"required"`
	WorkDir   string `envconfig:"WORK_DIR" yaml:"work_dir" validate:"required"`

	SectorFile     string `envconfig:"SECTOR_FILE" yaml:"sector_file"`
	SectorListFile string `envconfig:"SECTOR_LIST_FILE" yaml:"sector_list_file"`
	MembershipFile string `envconfig:"MEMBERSHIP_FILE" yaml:"membership_file"`

	Workers        int           `envconfig:"WORKERS" yaml:"workers" validate:"min=1,max=512"`
	FlushEntities  int           `envconfig:"FLUSH_ENTITIES" yaml:"flush_entities" validate:"min=1"`
	ProcessingYear int           `envconfig:"PROCESSING_YEAR" yaml:"processing_year" validate:"min=1990,max=2100"`
	Heartbeat      time.Duration `envconfig:"HEARTBEAT" yaml:"heartbeat" validate:"min=0"`
	Progress       bool          `envconfig:"PROGRESS" yaml:"progress"`
	MetricsFile    string        `envconfig:"METRICS_FILE" yaml:"metrics_file"`
	RunReport      string        `envconfig:"RUN_REPORT" yaml:"run_report"`

	ConfigFile string `envconfig:"CONFIG_FILE" yaml:"-"`
}

// LoadConfig reads the YAML file (if any), then the environment, then fills
// defaults and validates.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	// no default tags: unset variables leave the YAML values alone
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	cfg.applyDefaults(time.Now())
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.ConfigFile = path
	return nil
}

func (c *Config) applyDefaults(now time.Time) {
	def := func(p *string, v string) {
		if *p == "" {
			*p = v
		}
	}
	def(&c.DataDir, "data")
	def(&c.LogLevel, "info")
	def(&c.LogFormat, "text")
	def(&c.KlineDir, filepath.Join(c.DataDir, "kline"))
	def(&c.FlowDir, filepath.Join(c.DataDir, "fundflow"))
	def(&c.CacheDir, filepath.Join(c.DataDir, "cache"))
	def(&c.OutputDir, filepath.Join(c.DataDir, "output"))
	def(&c.WorkDir, filepath.Join(c.DataDir, ".work"))
	def(&c.SectorFile, filepath.Join(c.DataDir, "sector", "sector_full.parquet"))
	def(&c.MembershipFile, filepath.Join(c.DataDir, "sector", "membership.yaml"))
	def(&c.RunReport, filepath.Join(c.OutputDir, "run_report.json"))
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.FlushEntities == 0 {
		c.FlushEntities = 500
	}
	if c.ProcessingYear == 0 {
		c.ProcessingYear = now.Year()
	}
	if c.Heartbeat == 0 {
		c.Heartbeat = 30 * time.Second
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and path conflicts.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("invalid config: %s %s", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if filepath.Clean(c.OutputDir) == filepath.Clean(c.CacheDir) {
		return errors.New("invalid config: OUTPUT_DIR and CACHE_DIR must differ")
	}
	return nil
}

// DailyDir returns the directory of the daily partitions.
func (c *Config) DailyDir() string { return filepath.Join(c.OutputDir, "stock_daily") }

// WeeklyName and MonthlyName are the coarse table file names in OutputDir.
func (c *Config) WeeklyName() string  { return "stock_weekly.parquet" }
func (c *Config) MonthlyName() string { return "stock_monthly.parquet" }

// SectorOutputPath returns the rolled-up sector table.
func (c *Config) SectorOutputPath() string { return filepath.Join(c.OutputDir, "sector_full.parquet") }

// ReportPath returns the run report path.
func (c *Config) ReportPath() string { return c.RunReport }

// QualityPath returns the data quality report, next to the run report.
func (c *Config) QualityPath() string {
	return filepath.Join(filepath.Dir(c.ReportPath()), "quality_report.json")
}

// ChunkDir returns the chunk directory of one run.
func (c *Config) ChunkDir(runID string) string { return filepath.Join(c.WorkDir, runID) }
