package store

import (
	"context"
	"os"
	"strings"
)

// credEnvPrefix is the environment namespace for credential values. A
// credential named "openai-key" is read from FLOWMESH_CRED_OPENAI_KEY.
const credEnvPrefix = "FLOWMESH_CRED_"

// EnvCredentialStore resolves credentials from process environment variables.
// Ids and names resolve identically; the deployment environment is the single
// source of truth.
type EnvCredentialStore struct{}

// NewEnvCredentialStore creates an environment-backed credential store.
func NewEnvCredentialStore() *EnvCredentialStore {
	return &EnvCredentialStore{}
}

func envKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(key)
	return credEnvPrefix + key
}

func (s *EnvCredentialStore) GetDecryptedByID(ctx context.Context, id string) (string, bool) {
	return s.GetDecryptedByName(ctx, id)
}

func (s *EnvCredentialStore) GetDecryptedByName(ctx context.Context, name string) (string, bool) {
	if name == "" {
		return "", false
	}
	value, ok := os.LookupEnv(envKey(name))
	if !ok || value == "" {
		return "", false
	}
	return value, true
}
