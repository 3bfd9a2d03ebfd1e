// Package crypto seals stored document content with AES-256-GCM.
//
// Keys come from a KeyProvider: a static key for single-node deployments or
// HashiCorp Vault's KV store. Sealed objects carry their nonce, and the
// object's content hash is bound as additional data, so an object copied
// under another hash fails to open.
package crypto

import "context"

// KeyProvider returns AES-256 keys by id.
type KeyProvider interface {
	// GetKey returns the 32-byte AES-256 key named keyID.
	GetKey(ctx context.Context, keyID string) ([]byte, error)
}
