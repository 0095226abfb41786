// Package memstore is an in-memory CredentialRepository. It backs the
// package tests and is good enough for demo servers; real deployments
// implement webauthn.CredentialRepository over durable storage.
package memstore

import (
	"bytes"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/samber/mo"
	log "github.com/sirupsen/logrus"

	"github.com/keyfold/go-webauthn-rp/webauthn"
)

// CredentialRegistration is one stored registration together with the
// bookkeeping the demo layer keeps about it.
type CredentialRegistration struct {
	Username     string
	UserIdentity webauthn.UserIdentity
	Nickname     string
	RegisteredAt time.Time

	Credential         webauthn.RegisteredCredential
	AttestationTrusted bool
}

// Store implements webauthn.CredentialRepository. All methods are safe for
// concurrent use.
type Store struct {
	mu         sync.RWMutex
	byUsername map[string][]*CredentialRegistration
}

func New() *Store {
	return &Store{
		byUsername: map[string][]*CredentialRegistration{},
	}
}

// AddRegistration stores a registration. The credential id must be new
// across all users.
func (s *Store) AddRegistration(reg CredentialRegistration) error {
	if reg.Username == "" {
		return errors.New("username must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, regs := range s.byUsername {
		for _, existing := range regs {
			if bytes.Equal(existing.Credential.CredentialID, reg.Credential.CredentialID) {
				return errors.New("credential id is already registered")
			}
		}
	}

	stored := reg
	s.byUsername[reg.Username] = append(s.byUsername[reg.Username], &stored)

	log.WithFields(log.Fields{
		"username":     reg.Username,
		"nickname":     reg.Nickname,
		"credentialId": webauthn.Base64URLEncode(reg.Credential.CredentialID),
	}).Debug("added registration")

	return nil
}

// UpdateSignatureCount records the counter reported by a verified
// assertion.
func (s *Store) UpdateSignatureCount(username string, credentialID []byte, count uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, reg := range s.byUsername[username] {
		if bytes.Equal(reg.Credential.CredentialID, credentialID) {
			reg.Credential.SignatureCount = count
			return nil
		}
	}
	return errors.Errorf("no registration of this credential for user %q", username)
}

// RemoveRegistration deletes one credential of a user and reports whether
// it existed.
func (s *Store) RemoveRegistration(username string, credentialID []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	regs := s.byUsername[username]
	for i, reg := range regs {
		if bytes.Equal(reg.Credential.CredentialID, credentialID) {
			s.byUsername[username] = append(regs[:i], regs[i+1:]...)
			if len(s.byUsername[username]) == 0 {
				delete(s.byUsername, username)
			}
			return true
		}
	}
	return false
}

// RegistrationsByUsername returns copies of a user's registrations.
func (s *Store) RegistrationsByUsername(username string) []CredentialRegistration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return lo.Map(s.byUsername[username], func(reg *CredentialRegistration, _ int) CredentialRegistration {
		return *reg
	})
}

func (s *Store) GetCredentialIDsForUsername(username string) ([]webauthn.PublicKeyCredentialDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return lo.Map(s.byUsername[username], func(reg *CredentialRegistration, _ int) webauthn.PublicKeyCredentialDescriptor {
		return webauthn.PublicKeyCredentialDescriptor{
			Type: webauthn.PublicKeyType,
			ID:   reg.Credential.CredentialID,
		}
	}), nil
}

func (s *Store) GetUserHandleForUsername(username string) (mo.Option[[]byte], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	regs := s.byUsername[username]
	if len(regs) == 0 {
		return mo.None[[]byte](), nil
	}
	return mo.Some(regs[0].UserIdentity.ID), nil
}

func (s *Store) GetUsernameForUserHandle(userHandle []byte) (mo.Option[string], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for username, regs := range s.byUsername {
		for _, reg := range regs {
			if bytes.Equal(reg.UserIdentity.ID, userHandle) {
				return mo.Some(username), nil
			}
		}
	}
	return mo.None[string](), nil
}

func (s *Store) Lookup(credentialID, userHandle []byte) (mo.Option[webauthn.RegisteredCredential], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, regs := range s.byUsername {
		for _, reg := range regs {
			if bytes.Equal(reg.Credential.CredentialID, credentialID) && bytes.Equal(reg.Credential.UserHandle, userHandle) {
				return mo.Some(reg.Credential), nil
			}
		}
	}
	return mo.None[webauthn.RegisteredCredential](), nil
}

func (s *Store) LookupAll(credentialID []byte) ([]webauthn.RegisteredCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []webauthn.RegisteredCredential
	for _, regs := range s.byUsername {
		for _, reg := range regs {
			if bytes.Equal(reg.Credential.CredentialID, credentialID) {
				out = append(out, reg.Credential)
			}
		}
	}
	return out, nil
}
