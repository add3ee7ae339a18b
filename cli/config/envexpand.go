// Package config loads boothbridge.yaml for the bridge commands.
//
// Any value may reference the environment as ${NAME} or ${NAME:-fallback}.
// Write $${NAME} to keep the reference literally, e.g. in a header template
// consumed by another service.
package config

import (
	"os"
	"regexp"
	"strings"
)

var envRef = regexp.MustCompile(`\$?\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv substitutes environment references in a config document.
// An unset or empty variable takes its fallback, or "" without one; a
// secret left empty this way is reported by Validate, not here.
func ExpandEnv(doc string) string {
	return envRef.ReplaceAllStringFunc(doc, func(ref string) string {
		if strings.HasPrefix(ref, "$$") {
			return ref[1:]
		}
		m := envRef.FindStringSubmatch(ref)
		if v := os.Getenv(m[1]); v != "" {
			return v
		}
		return m[2]
	})
}
