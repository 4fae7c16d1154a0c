package cmd

import (
	"strings"

	"github.com/gridpilot/gridpilot/pkg/vault"
)

// NewVault builds the credential vault from its URL-style spec. An empty
// spec means no vault: credential references then fail at resolution time.
func NewVault(spec string) vault.Vault {
	if spec == "" {
		return nil
	}

	if prefix, ok := strings.CutPrefix(spec, "env://"); ok {
		return vault.NewEnv(prefix)
	}

	return vault.NewEnv(spec)
}
