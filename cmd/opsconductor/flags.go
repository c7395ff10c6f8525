package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/HerbHall/opsconductor/internal/target"
)

// configFlag collects repeatable key=value protocol config overrides.
type configFlag map[string]any

func (c configFlag) String() string { return fmt.Sprint(map[string]any(c)) }

func (c configFlag) Set(s string) error {
	key, value, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(key) == "" {
		return fmt.Errorf("expected key=value, got %q", s)
	}
	c[strings.TrimSpace(key)] = parseConfigValue(value)
	return nil
}

// Map returns nil when no override was given.
func (c configFlag) Map() map[string]any {
	if len(c) == 0 {
		return nil
	}
	return map[string]any(c)
}

// parseConfigValue keeps integers and booleans typed so they survive the
// JSON config column the same way API input would.
func parseConfigValue(s string) any {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

// visited returns the names of flags set on the command line.
func visited(fs *flag.FlagSet) map[string]bool {
	seen := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { seen[f.Name] = true })
	return seen
}

func optString(seen map[string]bool, name, value string) *string {
	if !seen[name] {
		return nil
	}
	return &value
}

func optInt(seen map[string]bool, name string, value int) *int {
	if !seen[name] {
		return nil
	}
	return &value
}

func optBool(seen map[string]bool, name string, value bool) *bool {
	if !seen[name] {
		return nil
	}
	return &value
}

// optSecret maps a secret flag to a SecretField. An unset flag keeps the
// stored value; an empty value clears it; masked placeholders keep it.
func optSecret(seen map[string]bool, name, value string) target.SecretField {
	if !seen[name] {
		return target.SecretField{}
	}
	if value == "" {
		return target.ClearSecret()
	}
	return target.LegacySecret(value)
}

// readKeyFile loads a private key. "-" reads stdin.
func readKeyFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read key file: %w", err)
	}
	return string(data), nil
}

// requireID rejects a missing or non-positive id flag.
func requireID(name string, id int64) error {
	if id <= 0 {
		return fmt.Errorf("-%s is required", name)
	}
	return nil
}
