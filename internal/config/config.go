// Package config loads OpsConductor configuration with Viper and exposes it
// through the plugin.Config interface.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HerbHall/opsconductor/pkg/plugin"
	"github.com/spf13/viper"
)

// Compile-time interface guard.
var _ plugin.Config = (*ViperConfig)(nil)

// ViperConfig wraps a Viper instance to implement plugin.Config.
type ViperConfig struct {
	v *viper.Viper
}

// New creates a Config backed by the given Viper instance.
func New(v *viper.Viper) *ViperConfig {
	if v == nil {
		v = viper.New()
	}
	return &ViperConfig{v: v}
}

// Load reads configuration from file and environment variables. An empty
// path searches ./opsconductor.yaml, ./configs and /etc/opsconductor.
// Environment variables use the OC_ prefix: OC_CREDENTIALS_SECRET.
func Load(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("opsconductor")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/opsconductor")
	}

	v.SetEnvPrefix("OC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	return v, nil
}

// SetDefaults registers every default value. Exposed for tests.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.path", "./data/opsconductor.db")

	// Secret has no default on purpose; the key is derived from it.
	v.SetDefault("credentials.secret", "")
	v.SetDefault("credentials.salt", "opsconductor-credentials-v1")

	v.SetDefault("probe.default_timeout", "10s")
	v.SetDefault("probe.timeouts.ssh", "30s")
	v.SetDefault("probe.timeouts.winrm", "30s")
	v.SetDefault("probe.timeouts.snmp", "5s")
	v.SetDefault("probe.timeouts.smtp", "30s")
	v.SetDefault("probe.timeouts.rest_api", "10s")
	v.SetDefault("probe.rate_limit", 5.0)
	v.SetDefault("probe.burst", 10)
	v.SetDefault("probe.icmp_fallback", false)
	v.SetDefault("probe.icmp_privileged", false)
	v.SetDefault("probe.smtp_from", "opsconductor@localhost")
}

func (c *ViperConfig) Unmarshal(target any) error {
	return c.v.Unmarshal(target)
}

func (c *ViperConfig) Get(key string) any {
	return c.v.Get(key)
}

func (c *ViperConfig) GetString(key string) string {
	return c.v.GetString(key)
}

func (c *ViperConfig) GetInt(key string) int {
	return c.v.GetInt(key)
}

func (c *ViperConfig) GetBool(key string) bool {
	return c.v.GetBool(key)
}

func (c *ViperConfig) GetDuration(key string) time.Duration {
	return c.v.GetDuration(key)
}

func (c *ViperConfig) IsSet(key string) bool {
	return c.v.IsSet(key)
}

// Sub returns the config scoped to key. A missing section yields an empty
// config rather than nil.
func (c *ViperConfig) Sub(key string) plugin.Config {
	sub := c.v.Sub(key)
	if sub == nil {
		return New(nil)
	}
	return New(sub)
}

// Viper returns the underlying Viper instance.
func (c *ViperConfig) Viper() *viper.Viper {
	return c.v
}
