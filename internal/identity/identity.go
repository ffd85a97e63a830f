// Package identity persists the device identity the gateway handshake
// reuses across restarts: a stable per-install device id and the most
// recently issued device token.
package identity

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/ayano-dev/clawlink/internal/kv"
)

const (
	keyDeviceID    = "device.id"
	keyDeviceToken = "device.token"
)

// Identity is the persisted pair. DeviceToken is empty until the first
// successful handshake issues one.
type Identity struct {
	DeviceID    string
	DeviceToken string
}

type Store struct {
	kv *kv.Store
}

func NewStore(kv *kv.Store) *Store {
	return &Store{kv: kv}
}

// Load returns the device identity, generating and persisting a device id
// on first use.
func (s *Store) Load() (Identity, error) {
	id, ok, err := s.kv.Get(keyDeviceID)
	if err != nil {
		return Identity{}, err
	}
	if !ok {
		id = uuid.NewString()
		if err := s.kv.Put(keyDeviceID, id); err != nil {
			return Identity{}, fmt.Errorf("persist device id: %w", err)
		}
	}
	token, _, err := s.kv.Get(keyDeviceToken)
	if err != nil {
		return Identity{}, err
	}
	return Identity{DeviceID: id, DeviceToken: token}, nil
}

// SaveToken persists a gateway-issued device token for the next handshake.
func (s *Store) SaveToken(token string) error {
	return s.kv.Put(keyDeviceToken, token)
}

// ClearToken drops the persisted token, forcing a fresh issue on the next
// handshake.
func (s *Store) ClearToken() error {
	return s.kv.Delete(keyDeviceToken)
}
