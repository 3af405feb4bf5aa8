package config

import (
	"os"
	"regexp"
	"strings"
)

// envVarRegex matches ${VAR} and ${VAR:-fallback}.
var envVarRegex = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-[^}]*)?\}`)

func substituteEnvVars(content []byte) []byte {
	return envVarRegex.ReplaceAllFunc(content, func(match []byte) []byte {
		groups := envVarRegex.FindSubmatch(match)
		name := string(groups[1])
		hasFallback := len(groups[2]) > 0
		if value, ok := os.LookupEnv(name); ok && (value != "" || !hasFallback) {
			return []byte(value)
		}
		if hasFallback {
			return []byte(strings.TrimPrefix(string(groups[2]), ":-"))
		}
		return match
	})
}
