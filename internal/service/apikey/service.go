// Package apikey implements the authentication collaborator: opaque
// credentials with a display name and admin flag, stored through the same
// persistence adapter as the ledger itself.
package apikey

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/netledger/netledger/internal/errs"
	"github.com/netledger/netledger/internal/ledger"
	"github.com/netledger/netledger/internal/storage"
)

// Service manages api keys. Construct with New.
type Service struct {
	store storage.APIKeyStore
	clock ledger.Clock
}

// New constructs the api-key service.
func New(store storage.APIKeyStore, clock ledger.Clock) *Service {
	return &Service{store: store, clock: clock}
}

// Create mints a new active key with fresh random key material.
func (s *Service) Create(ctx context.Context, name string, isAdmin bool) (ledger.APIKey, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ledger.APIKey{}, errs.ErrInvalid
	}
	material, err := generateKeyMaterial()
	if err != nil {
		return ledger.APIKey{}, err
	}
	k := ledger.APIKey{
		GUID:       uuid.New(),
		Name:       name,
		Key:        material,
		Active:     true,
		IsAdmin:    isAdmin,
		CreatedUtc: s.clock.Now(),
	}
	if err := s.store.CreateAPIKey(ctx, k); err != nil {
		return ledger.APIKey{}, err
	}
	return k, nil
}

// Bootstrap ensures an active admin key with the given material exists,
// creating one on first run. Used to seed the initial credential from
// configuration.
func (s *Service) Bootstrap(ctx context.Context, material string) (ledger.APIKey, error) {
	material = strings.TrimSpace(material)
	if material == "" {
		return ledger.APIKey{}, errs.ErrInvalid
	}
	existing, err := s.store.APIKeyByKey(ctx, material)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return ledger.APIKey{}, err
	}
	k := ledger.APIKey{
		GUID:       uuid.New(),
		Name:       "bootstrap admin",
		Key:        material,
		Active:     true,
		IsAdmin:    true,
		CreatedUtc: s.clock.Now(),
	}
	if err := s.store.CreateAPIKey(ctx, k); err != nil {
		return ledger.APIKey{}, err
	}
	return k, nil
}

// ByGUID fetches a key by guid.
func (s *Service) ByGUID(ctx context.Context, guid uuid.UUID) (ledger.APIKey, error) {
	if guid == uuid.Nil {
		return ledger.APIKey{}, errs.ErrInvalid
	}
	return s.store.APIKeyByGUID(ctx, guid)
}

// List returns all keys in creation order.
func (s *Service) List(ctx context.Context) ([]ledger.APIKey, error) {
	return s.store.APIKeys(ctx)
}

// Delete removes a key.
func (s *Service) Delete(ctx context.Context, guid uuid.UUID) error {
	if guid == uuid.Nil {
		return errs.ErrInvalid
	}
	return s.store.DeleteAPIKey(ctx, guid)
}

// Authenticate resolves key material to its credential. Unknown or inactive
// keys fail with errs.ErrUnauthorized.
func (s *Service) Authenticate(ctx context.Context, material string) (ledger.APIKey, error) {
	if material == "" {
		return ledger.APIKey{}, errs.ErrUnauthorized
	}
	k, err := s.store.APIKeyByKey(ctx, material)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return ledger.APIKey{}, errs.ErrUnauthorized
		}
		return ledger.APIKey{}, err
	}
	if !k.Active {
		return ledger.APIKey{}, errs.ErrUnauthorized
	}
	return k, nil
}

func generateKeyMaterial() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
