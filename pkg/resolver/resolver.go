// Package resolver evaluates step parameters containing reference markers of
// the form {{ namespace.name }} against the run's declared parameters, its
// mutable variables and the configured credential vault.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/gridpilot/gridpilot/pkg/vault"
)

const (
	NamespaceParameter  = "parameter"
	NamespaceVariable   = "variable"
	NamespaceCredential = "credential"
)

var referencePattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z0-9_.\-]+)\s*\}\}`)

// ResolutionError identifies the reference that could not be resolved.
// Resolution never falls back to a placeholder.
type ResolutionError struct {
	Reference string
	Namespace string
	Name      string
	Err       error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve reference %q: %v", e.Reference, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// IsResolutionError reports whether err is (or wraps) a ResolutionError.
func IsResolutionError(err error) bool {
	var re *ResolutionError

	return errors.As(err, &re)
}

var (
	errUnknownNamespace  = errors.New("unknown namespace")
	errMissingKey        = errors.New("no value under this name")
	errNoVaultConfigured = errors.New("credential reference but no vault configured")
)

// Scope is the reference material one Resolve call evaluates against.
type Scope struct {
	Parameters map[string]any
	Variables  map[string]any
}

// Resolver substitutes reference markers. The vault may be nil, which makes
// any credential reference fail in a way distinguishable from a missing name.
type Resolver struct {
	vault vault.Vault
}

func New(v vault.Vault) *Resolver {
	return &Resolver{vault: v}
}

// Resolve is polymorphic over strings, numbers, booleans, nil, maps and
// slices. Collections are resolved recursively with structure preserved;
// non-string primitives pass through unchanged.
func (r *Resolver) Resolve(ctx context.Context, value any, scope Scope) (any, error) {
	switch v := value.(type) {
	case string:
		return r.resolveString(ctx, v, scope)
	case map[string]any:
		resolved := make(map[string]any, len(v))

		for key, item := range v {
			out, err := r.Resolve(ctx, item, scope)
			if err != nil {
				return nil, err
			}

			resolved[key] = out
		}

		return resolved, nil
	case []any:
		resolved := make([]any, len(v))

		for i, item := range v {
			out, err := r.Resolve(ctx, item, scope)
			if err != nil {
				return nil, err
			}

			resolved[i] = out
		}

		return resolved, nil
	default:
		return value, nil
	}
}

// ResolveParameters resolves every value of a step's parameter mapping.
func (r *Resolver) ResolveParameters(ctx context.Context, params map[string]any, scope Scope) (map[string]any, error) {
	if params == nil {
		return map[string]any{}, nil
	}

	out, err := r.Resolve(ctx, params, scope)
	if err != nil {
		return nil, err
	}

	resolved, ok := out.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("resolved parameters are not a mapping: %T", out)
	}

	return resolved, nil
}

func (r *Resolver) resolveString(ctx context.Context, s string, scope Scope) (any, error) {
	matches := referencePattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	// A string that is exactly one reference keeps the native type of the
	// referenced value, except for the parameter namespace which always
	// substitutes as a string.
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		namespace := s[matches[0][2]:matches[0][3]]
		name := s[matches[0][4]:matches[0][5]]

		value, err := r.lookup(ctx, s, namespace, name, scope)
		if err != nil {
			return nil, err
		}

		if namespace == NamespaceParameter {
			return formatValue(value), nil
		}

		return value, nil
	}

	// References embedded among other text substitute in textual form.
	var out []byte

	last := 0

	for _, m := range matches {
		namespace := s[m[2]:m[3]]
		name := s[m[4]:m[5]]

		value, err := r.lookup(ctx, s[m[0]:m[1]], namespace, name, scope)
		if err != nil {
			return nil, err
		}

		out = append(out, s[last:m[0]]...)
		out = append(out, formatValue(value)...)
		last = m[1]
	}

	out = append(out, s[last:]...)

	return string(out), nil
}

func (r *Resolver) lookup(ctx context.Context, reference, namespace, name string, scope Scope) (any, error) {
	fail := func(err error) error {
		return &ResolutionError{Reference: reference, Namespace: namespace, Name: name, Err: err}
	}

	switch namespace {
	case NamespaceParameter:
		value, ok := scope.Parameters[name]
		if !ok {
			return nil, fail(errMissingKey)
		}

		return value, nil
	case NamespaceVariable:
		value, ok := scope.Variables[name]
		if !ok {
			return nil, fail(errMissingKey)
		}

		return value, nil
	case NamespaceCredential:
		if r.vault == nil {
			return nil, fail(errNoVaultConfigured)
		}

		secret, err := r.vault.Lookup(ctx, name)
		if err != nil {
			return nil, fail(err)
		}

		return secret, nil
	default:
		return nil, fail(errUnknownNamespace)
	}
}

// formatValue renders a resolved value for inline substitution. Integral
// floats print without a trailing ".0" so JSON-decoded numbers round-trip the
// way callers wrote them.
func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
