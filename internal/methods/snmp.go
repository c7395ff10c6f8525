package methods

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/HerbHall/opsconductor/pkg/models"
)

// SNMPVersion reads config["version"] as "1", "2c" or "3". Strings such as
// "v3", CLI integers and JSON numbers are all accepted; an absent version
// means 2c.
func SNMPVersion(cfg map[string]any) (string, error) {
	var raw string
	switch v := cfg["version"].(type) {
	case nil:
		return "2c", nil
	case string:
		raw = v
	case int:
		raw = strconv.Itoa(v)
	case int64:
		raw = strconv.FormatInt(v, 10)
	case float64:
		if v != math.Trunc(v) {
			return "", fmt.Errorf("unsupported SNMP version %v", v)
		}
		raw = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return "", fmt.Errorf("unsupported SNMP version %v", v)
	}

	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(raw)), "v") {
	case "", "2", "2c":
		return "2c", nil
	case "1":
		return "1", nil
	case "3":
		return "3", nil
	}
	return "", fmt.Errorf("unsupported SNMP version %q", raw)
}

// NormalizeConfig checks protocol-specific values in cfg and rewrites them
// in canonical form, in place.
func NormalizeConfig(mt models.MethodType, cfg map[string]any) error {
	if mt == models.MethodSNMP {
		v, err := SNMPVersion(cfg)
		if err != nil {
			return err
		}
		cfg["version"] = v
	}
	return nil
}
