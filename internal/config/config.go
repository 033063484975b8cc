// Package config loads booklet configuration.
//
// Load starts from Default, overlays an optional YAML file, then BOOKLET_*
// environment variables, and validates the result against an embedded CUE
// schema. Durations are written as Go duration strings ("30m", "1s") in
// YAML and the environment.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "BOOKLET_"

//go:embed schema.cue
var schemaSource string

// Config is the full process configuration.
type Config struct {
	DBPath      string `yaml:"db_path" json:"db_path,omitempty" env:"DB_PATH"`
	RealtimeURL string `yaml:"realtime_url" json:"realtime_url,omitempty" env:"REALTIME_URL"`

	Cache        Cache        `yaml:"cache" json:"cache" envPrefix:"CACHE_"`
	Queue        Queue        `yaml:"queue" json:"queue" envPrefix:"QUEUE_"`
	Realtime     Realtime     `yaml:"realtime" json:"realtime" envPrefix:"REALTIME_"`
	Fetch        Fetch        `yaml:"fetch" json:"fetch" envPrefix:"FETCH_"`
	Availability Availability `yaml:"availability" json:"availability" envPrefix:"AVAILABILITY_"`
}

// Cache configures staleness.
type Cache struct {
	MaxAge time.Duration `yaml:"max_age" json:"max_age" env:"MAX_AGE"`
	// MaxAgeOverrides replaces MaxAge for individual namespaces.
	MaxAgeOverrides map[string]time.Duration `yaml:"max_age_overrides" json:"max_age_overrides,omitempty"`
}

// MaxAgeFor returns the staleness window for namespace.
func (c Cache) MaxAgeFor(namespace string) time.Duration {
	if d, ok := c.MaxAgeOverrides[namespace]; ok {
		return d
	}
	return c.MaxAge
}

// Queue configures the mutation queue.
type Queue struct {
	MaxRetries int           `yaml:"max_retries" json:"max_retries" env:"MAX_RETRIES"`
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay" env:"RETRY_DELAY"`
}

// Realtime configures the subscription multiplexer.
type Realtime struct {
	GracePeriod            time.Duration `yaml:"grace_period" json:"grace_period" env:"GRACE_PERIOD"`
	ResubscribeDelay       time.Duration `yaml:"resubscribe_delay" json:"resubscribe_delay" env:"RESUBSCRIBE_DELAY"`
	MaxResubscribeFailures int           `yaml:"max_resubscribe_failures" json:"max_resubscribe_failures" env:"MAX_RESUBSCRIBE_FAILURES"`
}

// Fetch configures network requests.
type Fetch struct {
	Timeout    time.Duration `yaml:"timeout" json:"timeout" env:"TIMEOUT"`
	Retries    int           `yaml:"retries" json:"retries" env:"RETRIES"`
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay" env:"RETRY_DELAY"`
}

// Availability configures schedule queries.
type Availability struct {
	HorizonDays     int           `yaml:"horizon_days" json:"horizon_days" env:"HORIZON_DAYS"`
	SlotInterval    time.Duration `yaml:"slot_interval" json:"slot_interval" env:"SLOT_INTERVAL"`
	ServiceDuration time.Duration `yaml:"service_duration" json:"service_duration" env:"SERVICE_DURATION"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Cache: Cache{MaxAge: 30 * time.Minute},
		Queue: Queue{MaxRetries: 3, RetryDelay: time.Second},
		Realtime: Realtime{
			GracePeriod:            5 * time.Second,
			ResubscribeDelay:       5 * time.Second,
			MaxResubscribeFailures: 3,
		},
		Fetch: Fetch{Timeout: 10 * time.Second, Retries: 2, RetryDelay: time.Second},
		Availability: Availability{
			HorizonDays:     7,
			SlotInterval:    30 * time.Minute,
			ServiceDuration: 90 * time.Minute,
		},
	}
}

// Load builds a Config from the process environment. An empty path skips
// the file.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, envMap(os.Environ()))
}

// LoadWithEnv is Load with an explicit environment.
func LoadWithEnv(path string, environ map[string]string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix, Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cfg against the embedded schema.
func Validate(cfg Config) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	value := def.Unify(ctx.Encode(cfg))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{Details: cueerrors.Details(err, nil)}
	}
	return nil
}

// ValidationError reports a config that violates the schema.
type ValidationError struct {
	Details string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.TrimSpace(e.Details)
}

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func envMap(environ []string) map[string]string {
	out := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			out[k] = v
		}
	}
	return out
}
