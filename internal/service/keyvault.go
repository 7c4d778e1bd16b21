package service

import (
	"context"
	"fmt"

	"github.com/streamgate/backend/pkg/crypto"
)

// KeyStore persists encrypted delegated key material keyed by
// subscription id.
type KeyStore interface {
	Put(ctx context.Context, subscriptionID, encryptedKey string) error
	Get(ctx context.Context, subscriptionID string) (string, error)
}

// KeyVault is the only path to delegated private keys. Everything else
// in the system sees subscriptions without signing material; holding a
// subscription record is not a capability to sign with its key.
type KeyVault struct {
	store KeyStore
	enc   *crypto.Encryptor
}

func NewKeyVault(store KeyStore, enc *crypto.Encryptor) *KeyVault {
	return &KeyVault{store: store, enc: enc}
}

// Store encrypts and persists a delegated private key. Write-once per
// subscription; keys are never rotated.
func (v *KeyVault) Store(ctx context.Context, subscriptionID, keyHex string) error {
	encrypted, err := v.enc.Encrypt([]byte(keyHex))
	if err != nil {
		return fmt.Errorf("encrypt delegated key: %w", err)
	}
	if err := v.store.Put(ctx, subscriptionID, encrypted); err != nil {
		return fmt.Errorf("store delegated key: %w", err)
	}
	return nil
}

// SignerKey returns the plaintext delegated key for a subscription.
func (v *KeyVault) SignerKey(ctx context.Context, subscriptionID string) (string, error) {
	encrypted, err := v.store.Get(ctx, subscriptionID)
	if err != nil {
		return "", err
	}
	keyHex, err := v.enc.Decrypt(encrypted)
	if err != nil {
		return "", fmt.Errorf("decrypt delegated key: %w", err)
	}
	return string(keyHex), nil
}
