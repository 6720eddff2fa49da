// Package secrets stores credential material encrypted at rest and resolves
// it into {{secrets.KEY}} template paths at run time. Plaintext exists only
// in memory, inside a single resolution.
package secrets

import (
	"context"
	"regexp"
)

// Key grammar. Keys are env-style names so they parse as a single segment
// of a secrets.KEY template path: dots would split the path, lowercase
// would collide with node IDs in the resolver's namespace.
var keyPattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// ValidKey reports whether a secret key fits the template grammar.
func ValidKey(key string) bool {
	return keyPattern.MatchString(key)
}

// Vault is the engine's view of secret material.
type Vault interface {
	// Resolve returns the plaintext for a key, for in-memory use only.
	Resolve(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]string, error)
}

// SecretStore is the ciphertext persistence the vault sits on. Satisfied by
// store.RunStore; the store never sees plaintext.
type SecretStore interface {
	StoreSecret(ctx context.Context, key string, value []byte) error
	GetSecret(ctx context.Context, key string) ([]byte, error)
	DeleteSecret(ctx context.Context, key string) error
	ListSecrets(ctx context.Context) ([]string, error)
}
