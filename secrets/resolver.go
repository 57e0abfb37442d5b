package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

var ErrMissing = errors.New("secret not found")

type Resolver interface {
	Resolve(ctx context.Context, secretRef string) (string, error)
}

// EnvResolver resolves secrets from environment variables.
//
// For a ref NAME it reads env NAME, or else the file named by env NAME_FILE
// (container secret mounts). It fails closed:
// - neither set => ErrMissing
// - empty value or empty file => error
type EnvResolver struct {
	Aliases map[string]string
}

func (r *EnvResolver) Resolve(ctx context.Context, secretRef string) (string, error) {
	_ = ctx

	ref := strings.TrimSpace(secretRef)
	if ref == "" {
		return "", fmt.Errorf("empty secret_ref")
	}

	envName := ref
	if r != nil && r.Aliases != nil {
		if v, ok := r.Aliases[ref]; ok && strings.TrimSpace(v) != "" {
			envName = strings.TrimSpace(v)
		}
	}

	if val, ok := os.LookupEnv(envName); ok {
		if strings.TrimSpace(val) == "" {
			return "", fmt.Errorf("secret is empty (env var %q)", envName)
		}
		return val, nil
	}

	fileVar := envName + "_FILE"
	path, ok := os.LookupEnv(fileVar)
	if !ok || strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w (neither %q nor %q is set)", ErrMissing, envName, fileVar)
	}
	raw, err := os.ReadFile(strings.TrimSpace(path))
	if err != nil {
		return "", fmt.Errorf("read secret file from %s: %w", fileVar, err)
	}
	val := strings.TrimSpace(string(raw))
	if val == "" {
		return "", fmt.Errorf("secret is empty (file %q)", path)
	}
	return val, nil
}

// Optional resolves ref and reports a missing secret as ok=false instead of
// an error.
func Optional(ctx context.Context, r Resolver, ref string) (string, bool, error) {
	val, err := r.Resolve(ctx, ref)
	if errors.Is(err, ErrMissing) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}
