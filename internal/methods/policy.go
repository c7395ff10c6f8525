// Package methods holds the per-protocol rules for communication methods:
// default connection config, OS compatibility, credential requirements, and
// display names. Every function here is pure.
package methods

import (
	"fmt"
	"net/netip"
	"sort"
	"strings"
	"time"

	"github.com/HerbHall/opsconductor/pkg/models"
)

// Protocol is one row of the protocol table.
type Protocol struct {
	// DefaultPort is 0 for protocols addressed by file path (sqlite).
	DefaultPort int
	// extras adds protocol-mandatory keys to a fresh default config.
	extras func(cfg map[string]any)
	// validOS reports whether the protocol may be used on the given OS family.
	validOS func(family osFamily) bool
	// credential picks the credential type for the supplied secret slots.
	credential credentialRule
}

type credentialRule func(mt models.MethodType, passwordPresent, keyPresent bool) (models.CredentialType, error)

var protocols = map[models.MethodType]Protocol{
	models.MethodSSH: {
		DefaultPort: 22,
		validOS:     unixLike,
		credential:  passwordOrSSHKey,
	},
	models.MethodWinRM: {
		DefaultPort: 5985,
		extras:      set("protocol", "http"),
		validOS:     windowsOnly,
		credential:  passwordOrToken,
	},
	models.MethodSNMP: {
		DefaultPort: 161,
		extras: func(cfg map[string]any) {
			cfg["version"] = "2c"
			cfg["community"] = "public"
		},
		validOS:    anyOS,
		credential: communityString,
	},
	models.MethodTelnet: {
		DefaultPort: 23,
		validOS:     anyOS,
		credential:  passwordOrToken,
	},
	models.MethodRESTAPI: {
		DefaultPort: 443,
		extras: func(cfg map[string]any) {
			cfg["protocol"] = "https"
			cfg["base_path"] = "/"
			cfg["verify_ssl"] = true
		},
		validOS:    anyOS,
		credential: apiKeyOrToken,
	},
	models.MethodSMTP: {
		DefaultPort: 587,
		extras:      set("encryption", "starttls"),
		validOS:     anyOS,
		credential:  passwordOnly,
	},
	models.MethodMySQL: {
		DefaultPort: 3306,
		validOS:     anyOS,
		credential:  passwordOrToken,
	},
	models.MethodPostgreSQL: {
		DefaultPort: 5432,
		extras:      set("database", "postgres"),
		validOS:     anyOS,
		credential:  passwordOrToken,
	},
	models.MethodMSSQL: {
		DefaultPort: 1433,
		validOS:     anyOS,
		credential:  passwordOrToken,
	},
	models.MethodOracle: {
		DefaultPort: 1521,
		extras:      set("service_name", "ORCL"),
		validOS:     anyOS,
		credential:  passwordOrToken,
	},
	models.MethodSQLite: {
		validOS:    anyOS,
		credential: passwordOrToken,
	},
	models.MethodMongoDB: {
		DefaultPort: 27017,
		validOS:     anyOS,
		credential:  passwordOrToken,
	},
	models.MethodRedis: {
		DefaultPort: 6379,
		extras:      set("database", 0),
		validOS:     anyOS,
		credential:  passwordOrToken,
	},
	models.MethodElasticsearch: {
		DefaultPort: 9200,
		extras:      set("protocol", "http"),
		validOS:     anyOS,
		credential:  passwordOrToken,
	},
}

func set(key string, value any) func(map[string]any) {
	return func(cfg map[string]any) { cfg[key] = value }
}

// Lookup returns the table row for a method type.
func Lookup(mt models.MethodType) (Protocol, bool) {
	s, ok := protocols[mt]
	return s, ok
}

// Supported returns every known method type in sorted order.
func Supported() []models.MethodType {
	out := make([]models.MethodType, 0, len(protocols))
	for mt := range protocols {
		out = append(out, mt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Normalize maps user input ("SSH", " rest_api ") to a known method type.
func Normalize(s string) (models.MethodType, bool) {
	mt := models.MethodType(strings.ToLower(strings.TrimSpace(s)))
	_, ok := protocols[mt]
	return mt, ok
}

// DefaultConfig returns a new default connection config for methodType
// addressed at host. sqlite stores host as the database file path.
func DefaultConfig(mt models.MethodType, host string) (map[string]any, error) {
	s, ok := protocols[mt]
	if !ok {
		return nil, fmt.Errorf("unsupported method type %q", mt)
	}

	cfg := map[string]any{"host": host}
	if s.DefaultPort > 0 {
		cfg["port"] = s.DefaultPort
	} else {
		cfg["database_path"] = host
	}
	if s.extras != nil {
		s.extras(cfg)
	}
	return cfg, nil
}

// MergeConfig returns a copy of base with every non-nil override applied.
// Neither input is modified.
func MergeConfig(base, overrides map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overrides {
		if v == nil {
			continue
		}
		out[k] = v
	}
	return out
}

// GenerateMethodName builds the display label for a new method,
// e.g. "ssh_20260115_103000".
func GenerateMethodName(mt models.MethodType, now time.Time) string {
	return fmt.Sprintf("%s_%s", mt, now.Format("20060102_150405"))
}

// NormalizeHost returns the canonical text form of an IP address, or the
// trimmed lower-cased hostname when host is not an IP literal.
func NormalizeHost(host string) string {
	h := strings.TrimSpace(host)
	if addr, err := netip.ParseAddr(strings.Trim(h, "[]")); err == nil {
		return addr.Unmap().String()
	}
	return strings.ToLower(h)
}
