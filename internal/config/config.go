// Package config defines the data structures related to configuration and
// includes functions for loading and validating it.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"
	_ "time/tzdata" // timezone is configurable; do not depend on the host zoneinfo

	"github.com/iwvelando/revenue-recognition/internal/revenue"
	"github.com/iwvelando/revenue-recognition/pkg/constants"
	"github.com/iwvelando/revenue-recognition/pkg/validation"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrMissingTaxRate is returned when no tax rate is configured. There is no
// default: the rate has to be chosen explicitly.
var ErrMissingTaxRate = errors.New("taxRate is required")

// Configuration holds all configuration for revenue-recognition.
type Configuration struct {
	TaxRate  *float64      `yaml:"taxRate"`
	Timezone string        `yaml:"timezone,omitempty"`
	Fields   FieldsConfig  `yaml:"fields,omitempty"`
	Input    InputConfig   `yaml:"input,omitempty"`
	Workers  int           `yaml:"workers,omitempty"`
	Output   OutputConfig  `yaml:"output,omitempty"`
	Logging  LoggingConfig `yaml:"logging,omitempty"`
	Store    StoreConfig   `yaml:"store,omitempty"`
	Server   ServerConfig  `yaml:"server,omitempty"`

	location *time.Location
}

// FieldsConfig names the input columns that are read and the output columns
// that are derived.
type FieldsConfig struct {
	Amount      string `yaml:"amount,omitempty"`
	ValidFrom   string `yaml:"validFrom,omitempty"`
	ValidTo     string `yaml:"validTo,omitempty"`
	BatchColumn string `yaml:"batchColumn,omitempty"`
	TotalDays   string `yaml:"totalDays,omitempty"`
	TaxAmount   string `yaml:"taxAmount,omitempty"`
	NetAmount   string `yaml:"netAmount,omitempty"`
	DailyRate   string `yaml:"dailyRate,omitempty"`
	Variance    string `yaml:"variance,omitempty"`
	MonthLabel  string `yaml:"monthLabel,omitempty"` // e.g. {year}年{month}月收入
}

// InputConfig locates the batch document.
type InputConfig struct {
	Path string `yaml:"path,omitempty"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty"`      // debug, info, warn, error
	Format     string `yaml:"format,omitempty"`     // json, console
	OutputFile string `yaml:"outputFile,omitempty"` // optional file output
}

// OutputConfig holds output format configuration options
type OutputConfig struct {
	Format string `yaml:"format,omitempty"` // pretty, csv, json
	File   string `yaml:"file,omitempty"`   // stdout when empty
}

// StoreConfig enables the SQLite run store when Path is set.
type StoreConfig struct {
	Path string `yaml:"path,omitempty"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Address       string `yaml:"address,omitempty"`
	MaxUploadSize string `yaml:"maxUploadSize,omitempty"` // e.g. 256K, 10M
}

// LoadEnv reads a dotenv file into the process environment. A missing file is
// not an error; variables already set are never overridden.
func LoadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("error loading env file %s: %w", path, err)
	}
	return nil
}

// LoadConfiguration takes a file path as input and loads the YAML-formatted
// configuration there. REVREC_* environment variables override file values,
// e.g. REVREC_TAXRATE or REVREC_FIELDS_AMOUNT.
func LoadConfiguration(configPath string) (*Configuration, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file, %w", err)
	}

	return decode(v)
}

// LoadConfigurationFromReader loads a YAML configuration from r. Environment
// overrides apply as in LoadConfiguration.
func LoadConfigurationFromReader(r io.Reader) (*Configuration, error) {
	v := newViper()

	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("error reading config, %w", err)
	}

	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yml")
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// taxRate has no default, so it is bound explicitly for the env override
	// to reach Unmarshal.
	_ = v.BindEnv("taxRate")

	v.SetDefault("timezone", constants.DefaultTimezone)
	v.SetDefault("workers", constants.DefaultWorkers)
	v.SetDefault("fields.amount", constants.DefaultAmountField)
	v.SetDefault("fields.validFrom", constants.DefaultValidFromField)
	v.SetDefault("fields.validTo", constants.DefaultValidToField)
	v.SetDefault("fields.batchColumn", constants.DefaultBatchColumn)
	v.SetDefault("fields.totalDays", constants.DefaultTotalDaysCol)
	v.SetDefault("fields.taxAmount", constants.DefaultTaxAmountCol)
	v.SetDefault("fields.netAmount", constants.DefaultNetAmountCol)
	v.SetDefault("fields.dailyRate", constants.DefaultDailyRateCol)
	v.SetDefault("fields.variance", constants.DefaultVarianceCol)
	v.SetDefault("fields.monthLabel", constants.DefaultMonthLabel)
	v.SetDefault("input.path", "")
	v.SetDefault("output.format", constants.OutputFormatPretty)
	v.SetDefault("output.file", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputFile", "")
	v.SetDefault("store.path", "")
	v.SetDefault("server.address", constants.DefaultServerAddress)
	v.SetDefault("server.maxUploadSize", "")
	return v
}

func decode(v *viper.Viper) (*Configuration, error) {
	var configuration Configuration
	if err := v.Unmarshal(&configuration); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}

	if configuration.TaxRate == nil {
		return nil, ErrMissingTaxRate
	}
	if err := validation.ValidateTaxRate(*configuration.TaxRate); err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(configuration.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", configuration.Timezone, err)
	}
	configuration.location = loc

	return &configuration, nil
}

// Rate returns the configured tax rate, or 0 when none is set.
func (c *Configuration) Rate() float64 {
	if c.TaxRate == nil {
		return 0
	}
	return *c.TaxRate
}

// Location returns the zone calendar dates are read in. It defaults to UTC
// for configurations built without LoadConfiguration.
func (c *Configuration) Location() *time.Location {
	if c.location != nil {
		return c.location
	}
	if c.Timezone != "" {
		if loc, err := time.LoadLocation(c.Timezone); err == nil {
			return loc
		}
	}
	return time.UTC
}

// FieldNames returns the input field names the normalizer reads, falling back
// to the default column names.
func (c *Configuration) FieldNames() revenue.FieldNames {
	return revenue.FieldNames{
		Amount:    orDefault(c.Fields.Amount, constants.DefaultAmountField),
		ValidFrom: orDefault(c.Fields.ValidFrom, constants.DefaultValidFromField),
		ValidTo:   orDefault(c.Fields.ValidTo, constants.DefaultValidToField),
	}
}

// WorkerCount returns the number of batches processed concurrently, at least 1.
func (c *Configuration) WorkerCount() int {
	if c.Workers < 1 {
		return 1
	}
	return c.Workers
}

// ValidateConfiguration performs general validation of the configuration and returns warnings
func (c *Configuration) ValidateConfiguration() []string {
	var warnings []string

	if c.TaxRate != nil && *c.TaxRate == 0 {
		warnings = append(warnings, "taxRate is 0; receipts are recognized without deducting tax")
	}

	warnings = append(warnings, validation.ValidateMonthLabel(c.Fields.MonthLabel)...)

	warnings = append(warnings, validation.ValidateColumnNames(map[string]string{
		"fields.amount":      c.Fields.Amount,
		"fields.validFrom":   c.Fields.ValidFrom,
		"fields.validTo":     c.Fields.ValidTo,
		"fields.batchColumn": c.Fields.BatchColumn,
		"fields.totalDays":   c.Fields.TotalDays,
		"fields.taxAmount":   c.Fields.TaxAmount,
		"fields.netAmount":   c.Fields.NetAmount,
		"fields.dailyRate":   c.Fields.DailyRate,
		"fields.variance":    c.Fields.Variance,
	})...)

	if w := validation.ValidateWorkers(c.Workers); w != "" {
		warnings = append(warnings, w)
	}

	if c.Output.Format != "" {
		if err := validation.ValidateOutputFormat(c.Output.Format); err != nil {
			warnings = append(warnings, err.Error())
		}
	}

	return warnings
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
