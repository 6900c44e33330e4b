package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// envOr returns the parsed value of env var k, or d when k is unset, empty
// or does not parse.
func envOr[T any](k string, d T, parse func(string) (T, error)) T {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if parsed, err := parse(v); err == nil {
		return parsed
	}
	return d
}

func envStr(k, d string) string {
	return envOr(k, d, func(s string) (string, error) { return s, nil })
}

func envInt(k string, d int) int { return envOr(k, d, strconv.Atoi) }

func envDur(k string, d time.Duration) time.Duration { return envOr(k, d, time.ParseDuration) }

func envBool(k string, d bool) bool { return envOr(k, d, parseSwitch) }

// parseSwitch accepts the usual on/off spellings.
func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", s)
}

// parseMethods upper-cases a comma separated method list into a set.
func parseMethods(s string) map[string]bool {
	m := map[string]bool{}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(strings.ToUpper(p))
		if p != "" {
			m[p] = true
		}
	}
	return m
}
