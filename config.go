package dashboard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// validate is the shared validator instance.
var validate = validator.New()

// Duration is a time.Duration that unmarshals from YAML and JSON strings
// like "30s" or "24h", or from plain integer seconds.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML decodes "30s"-style strings or integer seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	return d.decode(raw)
}

// UnmarshalJSON decodes "30s"-style strings or integer seconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return d.decode(raw)
}

func (d *Duration) decode(raw any) error {
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: bad duration %q: %v", ErrConfig, v, err)
		}
		*d = Duration(parsed)
	case int:
		*d = Duration(time.Duration(v) * time.Second)
	case float64:
		*d = Duration(time.Duration(v * float64(time.Second)))
	default:
		return fmt.Errorf("%w: bad duration value %v", ErrConfig, raw)
	}
	return nil
}

// RetentionConfig is the serializable form of a RetentionPolicy.
type RetentionConfig struct {
	MaxCount int      `json:"max_count,omitempty" yaml:"max_count,omitempty" validate:"min=0"`
	MaxAge   Duration `json:"max_age,omitempty" yaml:"max_age,omitempty"`
}

// Policy converts the config into a core RetentionPolicy.
func (r RetentionConfig) Policy() RetentionPolicy {
	return RetentionPolicy{MaxCount: r.MaxCount, MaxAge: r.MaxAge.Std()}
}

// Config is one deployment's synchronization configuration. It is decoded
// from YAML or JSON (auto-detected) and validated at construction time;
// invalid configuration is fatal, never silently resolved.
type Config struct {
	// Retention bounds the reading store by count or age, exactly one.
	Retention RetentionConfig `json:"retention" yaml:"retention"`

	// Bands are the disjoint classification ranges for the derived view.
	Bands Bands `json:"bands,omitempty" yaml:"bands,omitempty" validate:"dive"`

	// Actuators lists the relay ids this deployment controls.
	Actuators []string `json:"actuators" yaml:"actuators" validate:"dive,required"`

	// PollInterval is the cadence of the poll fallback.
	// Zero selects DefaultPollInterval.
	PollInterval Duration `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty"`

	// FetchLimit bounds bulk and catch-up fetches. Zero derives the limit
	// from a count-bounded retention policy, or leaves the fetch unbounded.
	FetchLimit int `json:"fetch_limit,omitempty" yaml:"fetch_limit,omitempty" validate:"min=0"`
}

// Validate checks struct tags, the retention policy, and band disjointness.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := c.Retention.Policy().Validate(); err != nil {
		return err
	}
	if err := c.Bands.Validate(); err != nil {
		return err
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("%w: poll interval must be positive", ErrConfig)
	}
	return nil
}

// fetchLimit resolves the effective fetch bound.
func (c Config) fetchLimit() int {
	if c.FetchLimit > 0 {
		return c.FetchLimit
	}
	return c.Retention.MaxCount
}

// pollInterval resolves the effective poll cadence.
func (c Config) pollInterval() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval.Std()
	}
	return DefaultPollInterval
}

// LoadConfig parses and validates configuration bytes.
// JSON is detected by a leading brace; anything else is parsed as YAML
// (which also accepts JSON).
func LoadConfig(data []byte) (Config, error) {
	var cfg Config

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: %v", ErrConfig, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: %v", ErrConfig, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
