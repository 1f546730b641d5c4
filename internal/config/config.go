// Package config loads the sipflow configuration.
//
// Values come from defaults, an optional YAML file and SIPFLOW_* environment variables,
// in increasing priority. Nested keys map to variables with "_": capture.filter is SIPFLOW_CAPTURE_FILTER.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"braces.dev/errtrace"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ghettovoice/sipflow/capture"
	"github.com/ghettovoice/sipflow/flow"
	"github.com/ghettovoice/sipflow/internal/errorutil"
	"github.com/ghettovoice/sipflow/internal/log"
)

// EnvPrefix is a prefix of environment overrides.
const EnvPrefix = "SIPFLOW"

// ErrInvalidConfig is returned when the loaded configuration is not usable.
const ErrInvalidConfig errorutil.Error = "invalid configuration"

// Config holds the application configuration.
type Config struct {
	Capture CaptureConfig `mapstructure:"capture" yaml:"capture"`
	Flow    FlowConfig    `mapstructure:"flow" yaml:"flow"`
	DNS     DNSConfig     `mapstructure:"dns" yaml:"dns"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// CaptureConfig holds the capture tool configuration.
type CaptureConfig struct {
	Command        string        `mapstructure:"command" yaml:"command"`
	Device         string        `mapstructure:"device" yaml:"device"`
	Filter         string        `mapstructure:"filter" yaml:"filter"`
	Args           []string      `mapstructure:"args" yaml:"args"`
	NotifyInterval time.Duration `mapstructure:"notify_interval" yaml:"notify_interval"`
}

// FlowConfig holds the extended call flow view configuration.
type FlowConfig struct {
	PageSteps    int  `mapstructure:"page_steps" yaml:"page_steps"`
	StrictLanes  bool `mapstructure:"strict_lanes" yaml:"strict_lanes"`
	CallIDColor  bool `mapstructure:"callid_color" yaml:"callid_color"`
	ResolveHosts bool `mapstructure:"resolve_hosts" yaml:"resolve_hosts"`
}

// DNSConfig holds the reverse lookup configuration.
type DNSConfig struct {
	NameServer string        `mapstructure:"name_server" yaml:"name_server"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
	Dev   bool   `mapstructure:"dev" yaml:"dev"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("capture.command", capture.DefaultCommand)
	v.SetDefault("capture.device", "any")
	v.SetDefault("capture.filter", "port 5060")
	v.SetDefault("capture.args", []string{})
	v.SetDefault("capture.notify_interval", time.Duration(0))
	v.SetDefault("flow.page_steps", flow.DefaultPageSteps)
	v.SetDefault("flow.strict_lanes", false)
	v.SetDefault("flow.callid_color", false)
	v.SetDefault("flow.resolve_hosts", false)
	v.SetDefault("dns.name_server", "")
	v.SetDefault("dns.timeout", 2*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.dev", false)
}

// New returns a viper instance with defaults and environment overrides set up.
// Callers may bind command line flags to it before [Load].
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads the configuration.
// If path is empty, "sipflow.yaml" is looked up in the working directory and in $HOME/.config/sipflow,
// a missing file is not an error then.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = New()
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("sipflow")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/sipflow")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errtrace.Wrap(fmt.Errorf("read config: %w", err))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errtrace.Wrap(fmt.Errorf("decode config: %w", err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, errtrace.Wrap(err)
	}
	return &cfg, nil
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Capture.Command) == "" {
		errs = append(errs, errorutil.NewWrapperError(ErrInvalidConfig, "capture.command is empty"))
	}
	if c.Capture.NotifyInterval < 0 {
		errs = append(errs, errorutil.NewWrapperError(ErrInvalidConfig, "capture.notify_interval is negative"))
	}
	if c.Flow.PageSteps <= 0 {
		errs = append(errs, errorutil.NewWrapperError(ErrInvalidConfig, "flow.page_steps must be positive"))
	}
	if c.DNS.Timeout < 0 {
		errs = append(errs, errorutil.NewWrapperError(ErrInvalidConfig, "dns.timeout is negative"))
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, errorutil.NewWrapperError(ErrInvalidConfig, err))
	}
	return errtrace.Wrap(errorutil.JoinPrefix("config", errs...))
}

// Warnings returns problems that do not prevent running,
// like capture arguments that break the capture header layout.
func (c *Config) Warnings() []string {
	return capture.CheckArgs(c.Capture.Args)
}

// WriteYAML writes the configuration as YAML.
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return errtrace.Wrap(err)
	}
	return errtrace.Wrap(enc.Close())
}

// PipelineOptions converts the capture section to [capture.PipelineOptions].
func (c *Config) PipelineOptions() *capture.PipelineOptions {
	return &capture.PipelineOptions{
		Command:        c.Capture.Command,
		Device:         c.Capture.Device,
		Filter:         c.Capture.Filter,
		Args:           c.Capture.Args,
		NotifyInterval: c.Capture.NotifyInterval,
	}
}

// SessionOptions converts the flow section to [flow.SessionOptions].
func (c *Config) SessionOptions() *flow.SessionOptions {
	return &flow.SessionOptions{
		PageSteps:   c.Flow.PageSteps,
		StrictLanes: c.Flow.StrictLanes,
		CallIDColor: c.Flow.CallIDColor,
	}
}
