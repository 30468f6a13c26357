package config

import (
	"fmt"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileEnv names the environment variable that points at an optional YAML file.
const ConfigFileEnv = "MTR_CONFIG_FILE"

// Load reads configuration from defaults, the YAML file named by
// MTR_CONFIG_FILE (if any) and environment variables.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(ConfigFileEnv))
}

// LoadFile is Load with an explicit YAML path. An empty path skips the file.
// Environment variables always win over file values, and file values win
// over struct-tag defaults.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}
	root := reflect.ValueOf(cfg).Elem()

	if err := walkFields(root, applyDefault); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	if err := walkFields(root, applyEnv); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := walkFields(root, checkRequired); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

type fieldVisitor func(field reflect.StructField, value reflect.Value) error

// walkFields recursively visits every settable leaf field that carries an env tag.
func walkFields(v reflect.Value, visit fieldVisitor) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		// Skip unexported fields
		if !fieldVal.CanSet() {
			continue
		}

		// Recurse into nested structs
		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := walkFields(fieldVal, visit); err != nil {
				return err
			}
			continue
		}

		if field.Tag.Get("env") == "" {
			continue
		}

		if err := visit(field, fieldVal); err != nil {
			return err
		}
	}

	return nil
}

func applyDefault(field reflect.StructField, value reflect.Value) error {
	def := field.Tag.Get("default")
	if def == "" {
		return nil
	}
	if err := setField(value, def); err != nil {
		return fmt.Errorf("invalid default for %s=%q: %w", field.Tag.Get("env"), def, err)
	}
	return nil
}

func applyEnv(field reflect.StructField, value reflect.Value) error {
	envName := field.Tag.Get("env")
	envAlt := field.Tag.Get("envAlt")

	// Try primary env var, then alternate
	raw := os.Getenv(envName)
	if raw == "" && envAlt != "" {
		raw = os.Getenv(envAlt)
	}
	if raw == "" {
		return nil
	}

	if err := setField(value, raw); err != nil {
		return fmt.Errorf("invalid value for %s=%q: %w", envName, raw, err)
	}
	return nil
}

func checkRequired(field reflect.StructField, value reflect.Value) error {
	if field.Tag.Get("required") != "true" {
		return nil
	}
	if value.IsZero() {
		return fmt.Errorf("required environment variable %s is not set", field.Tag.Get("env"))
	}
	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		// Handle time.Duration specially
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			// Split comma-separated values, trim whitespace
			parts := strings.Split(value, ",")
			result := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					result = append(result, p)
				}
			}
			field.Set(reflect.ValueOf(result))
		} else {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if !containsFold(Drivers, c.Database.Driver) {
		errs = append(errs, fmt.Sprintf("DB_DRIVER (%q) must be one of: %s", c.Database.Driver, strings.Join(Drivers, ", ")))
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Database.MinConns < 0 {
		errs = append(errs, "DB_MIN_CONNS must be non-negative")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns))
	}

	// Table validation
	tables := map[string]string{
		"MTR_SOURCE_TABLE":     c.Tables.Source,
		"MTR_REGULATION_TABLE": c.Tables.Regulations,
		"MTR_UNIT_TABLE":       c.Tables.Units,
		"MTR_FILLED_TABLE":     c.Tables.Filled,
		"MTR_EMPTY_TABLE":      c.Tables.Empty,
		"MTR_ID_COLUMN":        c.Tables.IDColumn,
	}
	for _, name := range sortedKeys(tables) {
		if strings.TrimSpace(tables[name]) == "" {
			errs = append(errs, name+" must not be empty")
		}
	}
	if c.Tables.Filled != "" && strings.EqualFold(c.Tables.Filled, c.Tables.Empty) {
		errs = append(errs, fmt.Sprintf("MTR_FILLED_TABLE and MTR_EMPTY_TABLE must differ (both %q)", c.Tables.Filled))
	}
	if strings.EqualFold(c.Tables.Filled, c.Tables.Source) || strings.EqualFold(c.Tables.Empty, c.Tables.Source) {
		errs = append(errs, "destination tables must differ from MTR_SOURCE_TABLE")
	}

	// Column validation
	if c.Columns.Regulation == "" || c.Columns.Parameters == "" || c.Columns.BaseUnit == "" {
		errs = append(errs, "MTR_REGULATION_COLUMN, MTR_PARAMETERS_COLUMN and MTR_BASE_UNIT_COLUMN are required")
	}
	if c.Reference.RegulationCode == "" || c.Reference.UnitCode == "" {
		errs = append(errs, "reference code columns are required")
	}

	enrichment := []string{
		c.Enrichment.RegulationTitle,
		c.Enrichment.RegulationAnnotation,
		c.Enrichment.UnitName,
		c.Enrichment.UnitShort,
	}
	seen := make(map[string]bool, len(enrichment))
	for _, col := range enrichment {
		key := strings.ToLower(strings.TrimSpace(col))
		if key == "" {
			errs = append(errs, "enrichment column names must not be empty")
			break
		}
		if seen[key] {
			errs = append(errs, fmt.Sprintf("enrichment column %q is declared twice", col))
		}
		seen[key] = true
	}
	if seen[strings.ToLower(c.Tables.IDColumn)] {
		errs = append(errs, fmt.Sprintf("MTR_ID_COLUMN (%q) collides with an enrichment column", c.Tables.IDColumn))
	}

	// Run validation
	if c.Run.ProgressEvery <= 0 {
		errs = append(errs, "MTR_PROGRESS_EVERY must be positive")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Sensitive values like database URLs are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Database: {Driver: %q, URL: [MASKED], MaxConns: %d}, ",
		c.Database.Driver, c.Database.MaxConns))
	b.WriteString(fmt.Sprintf("Tables: {Source: %q, Regulations: %q, Units: %q, Filled: %q, Empty: %q}, ",
		c.Tables.Source, c.Tables.Regulations, c.Tables.Units, c.Tables.Filled, c.Tables.Empty))
	b.WriteString(fmt.Sprintf("Run: {ProgressEvery: %d, DryRun: %v}, ",
		c.Run.ProgressEvery, c.Run.DryRun))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}

func containsFold(list []string, target string) bool {
	for _, s := range list {
		if strings.EqualFold(s, target) {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
