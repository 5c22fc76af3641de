// Package constants provides shared constants for the revenue-recognition application.
package constants

// DateTimeLayout is the month key format used in logs, the run store and the
// JSON output.
const DateTimeLayout = "2006-01"

// DayLayout is the calendar date format used when rendering validity dates.
const DayLayout = "2006-01-02"

// Financial constants
const (
	// MonthsPerYear is the number of months in a year
	MonthsPerYear = 12

	// DecimalPlaces is the number of places used when presenting currency
	DecimalPlaces = 2

	// CurrencyTolerance is the tolerance for currency comparisons (1 cent)
	CurrencyTolerance = 0.01
)

// Output format constants
const (
	// OutputFormatPretty is the human-readable output format
	OutputFormatPretty = "pretty"

	// OutputFormatCSV is the CSV output format
	OutputFormatCSV = "csv"

	// OutputFormatJSON is the JSON output format
	OutputFormatJSON = "json"
)

// Configuration file constants
const (
	// DefaultConfigFile is the default configuration file name
	DefaultConfigFile = "config.yaml"

	// ExampleConfigFile is the example configuration file name
	ExampleConfigFile = "config.yaml.example"

	// DefaultEnvFile is the dotenv file read before the configuration
	DefaultEnvFile = ".env"

	// EnvPrefix prefixes every environment override, e.g. REVREC_TAXRATE
	EnvPrefix = "REVREC"

	// DefaultTimezone is the zone used to read calendar dates from date-times
	DefaultTimezone = "UTC"

	// DefaultWorkers processes batches sequentially
	DefaultWorkers = 1
)

// Default input and output column names. They match the headers of the
// spreadsheets the batches are exported from.
const (
	DefaultAmountField    = "实收金额"
	DefaultValidFromField = "有效起始时间"
	DefaultValidToField   = "有效到期时间"
	DefaultBatchColumn    = "分组"
	DefaultTotalDaysCol   = "总服务器天数"
	DefaultTaxAmountCol   = "应交税费"
	DefaultNetAmountCol   = "税后金额"
	DefaultDailyRateCol   = "DRR"
	DefaultVarianceCol    = "收入差值"

	// DefaultMonthLabel renders a month column, e.g. 2024年1月收入
	DefaultMonthLabel = "{year}年{month}月收入"
)

// Server configuration defaults
const (
	// DefaultServerAddress is the default HTTP listen address
	DefaultServerAddress = ":8080"

	// DefaultMaxUploadSizeBytes is the default maximum batch document size (1 MB)
	DefaultMaxUploadSizeBytes int64 = 1024 * 1024
)
