// Package auth implements the authenticator hook from spec.md §6: the
// engine delegates credential checking to this package's Authenticator
// interface; BcryptAuthenticator is the reference implementation, keeping
// derived credential material in process memory keyed by username. It does
// not write credentials to any entity field.
package auth

import (
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/matthewbaird/eavdb/internal/types"
)

// Authenticator is the engine-facing hook (spec.md §6).
type Authenticator interface {
	Authenticate(user, secret string) (identity string, err error)
	SetCredential(userEntity types.EntityId, secret string) error
	ChangeCredential(userEntity types.EntityId, old, updated string) error
}

// BcryptAuthenticator is a reference implementation keyed by username,
// storing bcrypt hashes in process memory rather than the engine's own
// entity storage. Nothing in this repository stores credentials on a
// Credential field.
type BcryptAuthenticator struct {
	mu    sync.RWMutex
	creds map[string]credential
	cost  int
}

type credential struct {
	hash   []byte
	entity types.EntityId
	hasEnt bool
}

// NewBcryptAuthenticator builds an authenticator using bcrypt.DefaultCost.
func NewBcryptAuthenticator() *BcryptAuthenticator {
	return &BcryptAuthenticator{creds: make(map[string]credential), cost: bcrypt.DefaultCost}
}

// Register hashes secret and stores it for user, with no user entity bound;
// BindEntity adds that binding for ChangeCredential/SetCredential by entity.
func (a *BcryptAuthenticator) Register(user, secret string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), a.cost)
	if err != nil {
		return types.NewErrorf(types.ErrAuthFailed, "hashing credential: %v", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.creds[user] = credential{hash: hash}
	return nil
}

func (a *BcryptAuthenticator) Authenticate(user, secret string) (string, error) {
	a.mu.RLock()
	cred, ok := a.creds[user]
	a.mu.RUnlock()
	if !ok {
		return "", types.NewErrorf(types.ErrAuthFailed, "unknown user %q", user)
	}
	if err := bcrypt.CompareHashAndPassword(cred.hash, []byte(secret)); err != nil {
		return "", types.NewErrorf(types.ErrAuthFailed, "credential mismatch for %q", user)
	}
	return user, nil
}

// SetCredential installs secret for a user previously bound to userEntity
// via BindEntity; bcrypt its hash with a fresh salt.
func (a *BcryptAuthenticator) SetCredential(userEntity types.EntityId, secret string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), a.cost)
	if err != nil {
		return types.NewErrorf(types.ErrAuthFailed, "hashing credential: %v", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for user, cred := range a.creds {
		if cred.hasEnt && cred.entity == userEntity {
			a.creds[user] = credential{hash: hash, entity: userEntity, hasEnt: true}
			return nil
		}
	}
	return types.NewErrorf(types.ErrAuthFailed, "no credential bound to entity %d", userEntity)
}

// ChangeCredential verifies old against the stored hash for userEntity
// before installing new.
func (a *BcryptAuthenticator) ChangeCredential(userEntity types.EntityId, old, updated string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for user, cred := range a.creds {
		if !cred.hasEnt || cred.entity != userEntity {
			continue
		}
		if err := bcrypt.CompareHashAndPassword(cred.hash, []byte(old)); err != nil {
			return types.NewError(types.ErrAuthFailed, "old credential does not match")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(updated), a.cost)
		if err != nil {
			return types.NewErrorf(types.ErrAuthFailed, "hashing credential: %v", err)
		}
		a.creds[user] = credential{hash: hash, entity: userEntity, hasEnt: true}
		return nil
	}
	return types.NewErrorf(types.ErrAuthFailed, "no credential bound to entity %d", userEntity)
}

// BindEntity associates an already-registered user with a user entity id,
// enabling SetCredential/ChangeCredential by entity id.
func (a *BcryptAuthenticator) BindEntity(user string, entity types.EntityId) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	cred, ok := a.creds[user]
	if !ok {
		return types.NewErrorf(types.ErrAuthFailed, "unknown user %q", user)
	}
	cred.entity, cred.hasEnt = entity, true
	a.creds[user] = cred
	return nil
}
