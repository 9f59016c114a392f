package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// expand resolves ${VAR}, ${VAR:-default}, and $VAR references against
// the process environment. References must look like environment variable
// names (uppercase, digits, underscores); anything else stays as written.
func expand(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}
	return os.Expand(s, func(ref string) string {
		name, fallback, hasDefault := strings.Cut(ref, ":-")
		if !isEnvName(name) {
			if hasDefault {
				return "${" + ref + "}"
			}
			return "$" + ref
		}
		if val := os.Getenv(name); val != "" {
			return val
		}
		return fallback
	})
}

func isEnvName(s string) bool {
	if s == "" || (s[0] >= '0' && s[0] <= '9') {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '_' && (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// retype converts an expanded string back into the scalar the config
// schema expects, so a port from the environment lands as an int and a
// flag as a bool.
func retype(value string) any {
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}

// ExpandEnvVarsInData walks decoded YAML data and expands env references
// in every string leaf. Leaves whose value changed are retyped.
func ExpandEnvVarsInData(data any) any {
	switch v := data.(type) {
	case string:
		if expanded := expand(v); expanded != v {
			return retype(expanded)
		}
		return v
	case map[string]any:
		for key, value := range v {
			v[key] = ExpandEnvVarsInData(value)
		}
		return v
	case []any:
		for i, item := range v {
			v[i] = ExpandEnvVarsInData(item)
		}
		return v
	default:
		return v
	}
}

// LoadEnvFiles loads .env.local then .env when present, so local
// overrides win. Missing files are fine.
func LoadEnvFiles() error {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("loading %s: %w", file, err)
		}
	}
	return nil
}
