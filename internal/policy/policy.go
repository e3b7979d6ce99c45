// Package policy enforces the --enable-commands allowlist. An empty
// allowlist permits everything; a non-empty one blocks every command it
// does not name.
package policy

import (
	"strings"

	clierr "github.com/ggonzalez94/swap-cli/internal/errors"
)

// CheckCommandAllowed matches the command path against the allowlist.
// An entry authorizes its own path and every subcommand under it, so
// "approvals" admits "approvals plan" without listing each leaf.
func CheckCommandAllowed(allowlist []string, commandPath string) error {
	if len(allowlist) == 0 {
		return nil
	}
	normPath := normalize(commandPath)
	for _, allowed := range allowlist {
		normAllowed := normalize(allowed)
		if normAllowed == normPath {
			return nil
		}
		if strings.HasPrefix(normPath, normAllowed+" ") {
			return nil
		}
	}
	return clierr.New(clierr.CodeBlocked, "command blocked by --enable-commands policy")
}

func normalize(v string) string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(v)))
	return strings.Join(parts, " ")
}
