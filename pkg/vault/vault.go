// Package vault defines the credential lookup contract consumed by the
// parameter resolver. Storage and encryption are external concerns.
package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrCredentialNotFound indicates the vault is configured but holds no
// credential under the requested name. A nil vault is a different condition
// and is detected by the resolver itself.
var ErrCredentialNotFound = errors.New("credential not found")

// Vault looks up a secret value by name.
type Vault interface {
	Lookup(ctx context.Context, name string) (string, error)
}

// Env resolves credentials from environment variables under a prefix,
// e.g. prefix "GRIDPILOT_SECRET_" maps name "gateway_admin" to the
// variable GRIDPILOT_SECRET_GATEWAY_ADMIN.
type Env struct {
	Prefix string
}

func NewEnv(prefix string) *Env {
	return &Env{Prefix: prefix}
}

func (v *Env) Lookup(_ context.Context, name string) (string, error) {
	key := v.Prefix + strings.ToUpper(name)

	value, ok := os.LookupEnv(key)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrCredentialNotFound, name)
	}

	return value, nil
}

// Static is an in-memory vault for tests and local development.
type Static struct {
	secrets map[string]string
}

func NewStatic(secrets map[string]string) *Static {
	if secrets == nil {
		secrets = make(map[string]string)
	}

	return &Static{secrets: secrets}
}

func (v *Static) Lookup(_ context.Context, name string) (string, error) {
	value, ok := v.secrets[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrCredentialNotFound, name)
	}

	return value, nil
}
