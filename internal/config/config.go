// Package config provides centralized configuration management for the splitter.
// It loads configuration from defaults, an optional YAML file and environment
// variables (in that order of precedence) and validates all settings on
// startup to fail fast on misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Tables     TablesConfig     `yaml:"tables"`
	Columns    ColumnsConfig    `yaml:"columns"`
	Reference  ReferenceConfig  `yaml:"reference"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Run        RunConfig        `yaml:"run"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the connection string or, for duckdb, the database file path (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `yaml:"url" env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// Driver selects the store backend: pgx, postgres, mysql or duckdb (default: pgx)
	Driver string `yaml:"driver" env:"DB_DRIVER" default:"pgx"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `yaml:"max_conns" env:"DB_MAX_CONNS" default:"4"`

	// MinConns is the minimum number of connections to keep open (default: 0)
	MinConns int `yaml:"min_conns" env:"DB_MIN_CONNS" default:"0"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// TablesConfig names the relations the pipeline reads and writes.
type TablesConfig struct {
	Source      string `yaml:"source" env:"MTR_SOURCE_TABLE" default:"MTR"`
	Regulations string `yaml:"regulations" env:"MTR_REGULATION_TABLE" default:"GOST"`
	Units       string `yaml:"units" env:"MTR_UNIT_TABLE" default:"ED_IZM"`
	Filled      string `yaml:"filled" env:"MTR_FILLED_TABLE" default:"filled_table"`
	Empty       string `yaml:"empty" env:"MTR_EMPTY_TABLE" default:"empty_table"`

	// IDColumn is the surrogate auto-increment key added to both destinations (default: ID)
	IDColumn string `yaml:"id_column" env:"MTR_ID_COLUMN" default:"ID"`
}

// ColumnsConfig names the source columns that drive classification.
type ColumnsConfig struct {
	Regulation string `yaml:"regulation" env:"MTR_REGULATION_COLUMN" default:"Регламенты (ГОСТ/ТУ)"`
	Parameters string `yaml:"parameters" env:"MTR_PARAMETERS_COLUMN" default:"Параметры"`
	BaseUnit   string `yaml:"base_unit" env:"MTR_BASE_UNIT_COLUMN" default:"Базовая ЕИ"`
}

// ReferenceConfig names the columns of the two lookup relations.
type ReferenceConfig struct {
	RegulationCode       string `yaml:"regulation_code" env:"MTR_REF_REGULATION_CODE" default:"Обозначение"`
	RegulationTitle      string `yaml:"regulation_title" env:"MTR_REF_REGULATION_TITLE" default:"Наименование"`
	RegulationAnnotation string `yaml:"regulation_annotation" env:"MTR_REF_REGULATION_ANNOTATION" default:"Аннотация"`
	UnitCode             string `yaml:"unit_code" env:"MTR_REF_UNIT_CODE" default:"Код"`
	UnitName             string `yaml:"unit_name" env:"MTR_REF_UNIT_NAME" default:"Наименование"`
	UnitShort            string `yaml:"unit_short" env:"MTR_REF_UNIT_SHORT" default:"Краткое наименование"`
}

// EnrichmentConfig names the four denormalized columns added to both destinations.
type EnrichmentConfig struct {
	RegulationTitle      string `yaml:"regulation_title" env:"MTR_COL_GOST_TITLE" default:"GOST_Title"`
	RegulationAnnotation string `yaml:"regulation_annotation" env:"MTR_COL_GOST_ANNOTATION" default:"GOST_Annotation"`
	UnitName             string `yaml:"unit_name" env:"MTR_COL_UNIT_NAME" default:"ED_IZM_Name"`
	UnitShort            string `yaml:"unit_short" env:"MTR_COL_UNIT_SHORT" default:"ED_IZM_Short"`
}

// RunConfig holds pipeline execution settings.
type RunConfig struct {
	// ProgressEvery is how many rows pass between progress log lines (default: 500)
	ProgressEvery int `yaml:"progress_every" env:"MTR_PROGRESS_EVERY" default:"500"`

	// DryRun classifies rows without creating tables or writing (default: false)
	DryRun bool `yaml:"dry_run" env:"MTR_DRY_RUN" default:"false"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `yaml:"level" env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `yaml:"format" env:"LOG_FORMAT" default:"text"`
}

// MetricsConfig holds metrics export settings.
type MetricsConfig struct {
	// TextfilePath is where run metrics are written in Prometheus text format (default: disabled)
	TextfilePath string `yaml:"textfile" env:"METRICS_TEXTFILE"`
}

// Drivers lists the accepted DB_DRIVER values.
var Drivers = []string{"pgx", "postgres", "mysql", "duckdb"}
