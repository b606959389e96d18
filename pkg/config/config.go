package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/shaneisley/wishful/pkg/account"
	"github.com/shaneisley/wishful/pkg/backoff"
	"github.com/shaneisley/wishful/pkg/executor"
	"github.com/shaneisley/wishful/pkg/interpret"
	"github.com/shaneisley/wishful/pkg/logging"
	"github.com/shaneisley/wishful/pkg/orchestrator"
	"github.com/shaneisley/wishful/pkg/provider"
	"github.com/shaneisley/wishful/pkg/scheduler"
)

// EnvPrefix prefixes every environment override, e.g. WISHFUL_LOG_LEVEL
const EnvPrefix = "WISHFUL"

// DefaultFileName is the file created by WriteDefault and looked up first
const DefaultFileName = "config.yaml"

// ErrNoConfig is returned when no configuration file can be found
var ErrNoConfig = errors.New("no configuration file found")

// AccountConfig is one sub-account whose wish is automated
type AccountConfig struct {
	Name   string `mapstructure:"name" yaml:"name"`
	Cookie string `mapstructure:"cookie" yaml:"cookie" validate:"required"`
	// Enabled defaults to true when omitted
	Enabled *bool `mapstructure:"enabled" yaml:"enabled,omitempty"`
}

// CoordinatorConfig is the account that aids the others' wishes
type CoordinatorConfig struct {
	Name   string `mapstructure:"name" yaml:"name"`
	Cookie string `mapstructure:"cookie" yaml:"cookie"`
}

type WishConfig struct {
	Content     string `mapstructure:"content" yaml:"content" validate:"required"`
	RewardSpace int    `mapstructure:"reward_space" yaml:"reward_space" validate:"gte=0"`
}

type AssistConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Content  string `mapstructure:"content" yaml:"content"`
	PageSize int    `mapstructure:"page_size" yaml:"page_size" validate:"gte=1,lte=100"`
}

type RetryConfig struct {
	Strategy    string        `mapstructure:"strategy" yaml:"strategy" validate:"oneof=fixed exponential"`
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts" validate:"gte=1"`
	BaseBackoff time.Duration `mapstructure:"base_backoff" yaml:"base_backoff" validate:"gte=0"`
	Multiplier  float64       `mapstructure:"multiplier" yaml:"multiplier" validate:"gte=1,lte=10"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff" yaml:"max_backoff" validate:"gte=0"`
}

type HTTPConfig struct {
	BaseURL   string        `mapstructure:"base_url" yaml:"base_url" validate:"required,url"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
	UserAgent string        `mapstructure:"user_agent" yaml:"user_agent"`
}

type DelaysConfig struct {
	BetweenAccounts time.Duration `mapstructure:"between_accounts" yaml:"between_accounts" validate:"gte=0"`
	ReviewWait      time.Duration `mapstructure:"review_wait" yaml:"review_wait" validate:"gte=0"`
	AidSettle       time.Duration `mapstructure:"aid_settle" yaml:"aid_settle" validate:"gte=0"`
	BetweenAids     time.Duration `mapstructure:"between_aids" yaml:"between_aids" validate:"gte=0"`
}

type ScheduleConfig struct {
	Mode       string        `mapstructure:"mode" yaml:"mode" validate:"oneof=once interval daily"`
	Interval   time.Duration `mapstructure:"interval" yaml:"interval" validate:"gte=0"`
	DailyAt    string        `mapstructure:"daily_at" yaml:"daily_at"`
	RunOnStart bool          `mapstructure:"run_on_start" yaml:"run_on_start"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=text json"`
	Dir    string `mapstructure:"dir" yaml:"dir"`
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen" validate:"omitempty,hostname_port"`
}

// CodesConfig maps provider error codes onto outcome kinds
type CodesConfig struct {
	AlreadyCompleted []int `mapstructure:"already_completed" yaml:"already_completed"`
	AuthExpired      []int `mapstructure:"auth_expired" yaml:"auth_expired"`
	RateLimited      []int `mapstructure:"rate_limited" yaml:"rate_limited"`
}

type ProviderConfig struct {
	Codes CodesConfig `mapstructure:"codes" yaml:"codes"`
}

// Config holds the configuration of the wish engine
type Config struct {
	Accounts    []AccountConfig   `mapstructure:"accounts" yaml:"accounts" validate:"dive"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator" yaml:"coordinator"`
	Wish        WishConfig        `mapstructure:"wish" yaml:"wish"`
	Assist      AssistConfig      `mapstructure:"assist" yaml:"assist"`
	Retry       RetryConfig       `mapstructure:"retry" yaml:"retry"`
	HTTP        HTTPConfig        `mapstructure:"http" yaml:"http"`
	Concurrency int               `mapstructure:"concurrency" yaml:"concurrency" validate:"gte=1,lte=64"`
	Delays      DelaysConfig      `mapstructure:"delays" yaml:"delays"`
	Schedule    ScheduleConfig    `mapstructure:"schedule" yaml:"schedule"`
	Log         LogConfig         `mapstructure:"log" yaml:"log"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
	Provider    ProviderConfig    `mapstructure:"provider" yaml:"provider"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s value '%v': %s", e.Field, e.Value, e.Message)
}

// ValidationErrors aggregates every problem found in one configuration
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	messages := make([]string, 0, len(errs))
	for _, err := range errs {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation errors:\n  - %s", strings.Join(messages, "\n  - "))
}

// Has reports whether a field failed validation
func (errs ValidationErrors) Has(field string) bool {
	for _, err := range errs {
		if err.Field == field {
			return true
		}
	}
	return false
}

// Load reads the configuration with precedence flags > environment > file > defaults.
// An empty configFile is looked up in the working directory.
func Load(configFile string, flags *Config, explicitFields map[string]bool) (*Config, error) {
	if configFile == "" {
		configFile = FindConfigFile(".")
		if configFile == "" {
			return nil, ErrNoConfig
		}
	}

	v := viper.New()

	// Set defaults
	setDefaults(v)

	v.SetConfigFile(configFile)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoConfig, configFile)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Configure environment variable support
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply CLI flag overrides with explicit field tracking
	if flags != nil && explicitFields != nil {
		config = *config.MergeWithExplicitFlags(flags, explicitFields)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// LoadWithDefaults returns a configuration with default values and no accounts
func LoadWithDefaults() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	v.Unmarshal(&config)
	return &config
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("wish.content", "gogogog")
	v.SetDefault("wish.reward_space", 5)
	v.SetDefault("assist.enabled", true)
	v.SetDefault("assist.content", "gogogo")
	v.SetDefault("assist.page_size", 10)
	v.SetDefault("retry.strategy", backoff.NameExponential)
	v.SetDefault("retry.max_attempts", executor.DefaultMaxAttempts)
	v.SetDefault("retry.base_backoff", 2*time.Second)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.max_backoff", 30*time.Second)
	v.SetDefault("http.base_url", provider.DefaultBaseURL)
	v.SetDefault("http.timeout", 15*time.Second)
	v.SetDefault("http.user_agent", provider.DefaultUserAgent)
	v.SetDefault("concurrency", 1)
	v.SetDefault("delays.between_accounts", 30*time.Second)
	v.SetDefault("delays.review_wait", 60*time.Second)
	v.SetDefault("delays.aid_settle", 13*time.Second)
	v.SetDefault("delays.between_aids", 60*time.Second)
	v.SetDefault("schedule.mode", string(orchestrator.ModeOnce))
	v.SetDefault("schedule.interval", 24*time.Hour)
	v.SetDefault("schedule.daily_at", "09:00")
	v.SetDefault("schedule.run_on_start", false)
	v.SetDefault("log.level", string(logging.LogLevelInfo))
	v.SetDefault("log.format", string(logging.FormatText))
	v.SetDefault("log.dir", "logs")
	v.SetDefault("metrics.listen", "")
	v.SetDefault("provider.codes.already_completed", []int{})
	v.SetDefault("provider.codes.auth_expired", interpret.DefaultCodes().AuthExpired)
	v.SetDefault("provider.codes.rate_limited", []int{})
}

// MergeWithExplicitFlags merges configuration with explicitly set flag values
func (c *Config) MergeWithExplicitFlags(flags *Config, explicitFields map[string]bool) *Config {
	result := *c // Copy base config

	if explicitFields["concurrency"] {
		result.Concurrency = flags.Concurrency
	}
	if explicitFields["retry.max_attempts"] {
		result.Retry.MaxAttempts = flags.Retry.MaxAttempts
	}
	if explicitFields["schedule.mode"] {
		result.Schedule.Mode = flags.Schedule.Mode
	}
	if explicitFields["log.level"] {
		result.Log.Level = flags.Log.Level
	}
	if explicitFields["log.format"] {
		result.Log.Format = flags.Log.Format
	}
	if explicitFields["log.dir"] {
		result.Log.Dir = flags.Log.Dir
	}
	if explicitFields["metrics.listen"] {
		result.Metrics.Listen = flags.Metrics.Listen
	}

	return &result
}

// FindConfigFile searches for a configuration file in the given directory
// It looks for config.yaml, wishful.yaml, .wishful.yaml files
func FindConfigFile(dir string) string {
	configNames := []string{DefaultFileName, "wishful.yaml", ".wishful.yaml"}

	for _, name := range configNames {
		configPath := filepath.Join(dir, name)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
	}

	return ""
}

// WriteDefault writes a default configuration with placeholder accounts; it never overwrites
func WriteDefault(path string) error {
	config := LoadWithDefaults()
	config.Accounts = []AccountConfig{
		{Name: "account-1", Cookie: "UID=...; CID=...; SEID=..."},
	}
	config.Coordinator = CoordinatorConfig{Name: "helper", Cookie: "UID=...; CID=...; SEID=..."}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to encode default config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	// Cookies are credentials
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate validates the configuration and returns detailed error messages
func (c *Config) Validate() error {
	var errs ValidationErrors

	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			errs = append(errs, ValidationError{
				Field:   fieldPath(fe.Namespace()),
				Value:   fe.Value(),
				Message: tagMessage(fe),
			})
		}
	}

	accounts := c.AccountList()
	if len(account.Enabled(accounts)) == 0 {
		errs = append(errs, ValidationError{
			Field:   "accounts",
			Value:   len(c.Accounts),
			Message: "at least one enabled account is required",
		})
	}
	seen := make(map[string]bool, len(accounts))
	for _, a := range accounts {
		if seen[a.Name] {
			errs = append(errs, ValidationError{
				Field:   "accounts",
				Value:   a.Name,
				Message: account.ErrDuplicateName.Error(),
			})
		}
		seen[a.Name] = true
	}
	for i, a := range c.Accounts {
		// An empty cookie is already reported by the required tag
		if a.Cookie != "" && strings.TrimSpace(a.Cookie) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("accounts[%d].cookie", i),
				Value:   a.Cookie,
				Message: "must not be blank",
			})
		}
	}

	if c.Retry.MaxAttempts > executor.MaxAttemptsLimit {
		errs = append(errs, ValidationError{
			Field:   "retry.max_attempts",
			Value:   c.Retry.MaxAttempts,
			Message: fmt.Sprintf("must be at most %d", executor.MaxAttemptsLimit),
		})
	}

	if c.Retry.MaxBackoff > 0 && c.Retry.BaseBackoff > 0 && c.Retry.MaxBackoff < c.Retry.BaseBackoff {
		errs = append(errs, ValidationError{
			Field:   "retry.max_backoff",
			Value:   c.Retry.MaxBackoff,
			Message: "must be greater than or equal to base backoff",
		})
	}

	switch orchestrator.Mode(c.Schedule.Mode) {
	case orchestrator.ModeInterval:
		if c.Schedule.Interval <= 0 {
			errs = append(errs, ValidationError{
				Field:   "schedule.interval",
				Value:   c.Schedule.Interval,
				Message: "must be positive in interval mode",
			})
		}
	case orchestrator.ModeDaily:
		if _, _, err := orchestrator.ParseClock(c.Schedule.DailyAt); err != nil {
			errs = append(errs, ValidationError{
				Field:   "schedule.daily_at",
				Value:   c.Schedule.DailyAt,
				Message: "must be a time of day as HH:MM",
			})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// fieldPath turns "Config.retry.max_attempts" into "retry.max_attempts"
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "url":
		return "must be a valid URL"
	case "hostname_port":
		return "must be a host:port listen address"
	default:
		return fmt.Sprintf("failed %s check", fe.Tag())
	}
}

// AccountList converts the configured accounts; unnamed accounts become account-<n>
func (c *Config) AccountList() []account.Account {
	accounts := make([]account.Account, 0, len(c.Accounts))
	for i, a := range c.Accounts {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			name = fmt.Sprintf("account-%d", i+1)
		}
		enabled := a.Enabled == nil || *a.Enabled
		accounts = append(accounts, account.Account{Name: name, Cookie: strings.TrimSpace(a.Cookie), Enabled: enabled})
	}
	return accounts
}

// CoordinatorAccount returns the aiding account; its cookie is empty when none is configured
func (c *Config) CoordinatorAccount() account.Account {
	name := c.Coordinator.Name
	if name == "" {
		name = "coordinator"
	}
	return account.New(name, strings.TrimSpace(c.Coordinator.Cookie))
}

// Codes returns the interpreter code sets
func (c *Config) Codes() interpret.Codes {
	return interpret.Codes{
		AlreadyCompleted: c.Provider.Codes.AlreadyCompleted,
		AuthExpired:      c.Provider.Codes.AuthExpired,
		RateLimited:      c.Provider.Codes.RateLimited,
	}
}

// BackoffStrategy builds the retry backoff
func (c *Config) BackoffStrategy() (backoff.Strategy, error) {
	return backoff.New(c.Retry.Strategy, c.Retry.BaseBackoff, c.Retry.Multiplier, c.Retry.MaxBackoff)
}

// ScheduleSpec returns the orchestrator schedule
func (c *Config) ScheduleSpec() orchestrator.Schedule {
	return orchestrator.Schedule{
		Mode:       orchestrator.Mode(c.Schedule.Mode),
		Interval:   c.Schedule.Interval,
		DailyAt:    c.Schedule.DailyAt,
		RunOnStart: c.Schedule.RunOnStart,
	}
}

// SchedulerOptions returns the worker pool options
func (c *Config) SchedulerOptions() scheduler.Options {
	return scheduler.Options{
		Concurrency:     c.Concurrency,
		BetweenAccounts: c.Delays.BetweenAccounts,
	}
}

// LogOptions returns the log sink options
func (c *Config) LogOptions() logging.Options {
	return logging.Options{
		Level:  logging.LogLevel(c.Log.Level),
		Format: logging.Format(c.Log.Format),
		Dir:    c.Log.Dir,
	}
}
