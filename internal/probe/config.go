package probe

import (
	"time"

	"github.com/HerbHall/opsconductor/pkg/models"
)

// Config holds prober configuration, read from the "probe" section.
type Config struct {
	DefaultTimeout time.Duration            `mapstructure:"default_timeout"`
	Timeouts       map[string]time.Duration `mapstructure:"timeouts"`
	RateLimit      float64                  `mapstructure:"rate_limit"` // probes per second, <= 0 disables
	Burst          int                      `mapstructure:"burst"`
	ICMPFallback   bool                     `mapstructure:"icmp_fallback"`
	ICMPPrivileged bool                     `mapstructure:"icmp_privileged"`
	SMTPFrom       string                   `mapstructure:"smtp_from"`
}

// DefaultConfig returns sensible defaults for the prober.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout: 10 * time.Second,
		Timeouts: map[string]time.Duration{
			string(models.MethodSSH):     30 * time.Second,
			string(models.MethodWinRM):   30 * time.Second,
			string(models.MethodSNMP):    5 * time.Second,
			string(models.MethodSMTP):    30 * time.Second,
			string(models.MethodRESTAPI): 10 * time.Second,
		},
		RateLimit: 5,
		Burst:     10,
		SMTPFrom:  "opsconductor@localhost",
	}
}

// timeoutFor resolves the effective timeout: an explicit request value
// wins, then the per-protocol override, then the default.
func (c Config) timeoutFor(mt models.MethodType, requested time.Duration) time.Duration {
	if requested != 0 {
		return requested
	}
	if d, ok := c.Timeouts[string(mt)]; ok && d > 0 {
		return d
	}
	if c.DefaultTimeout > 0 {
		return c.DefaultTimeout
	}
	return 10 * time.Second
}
