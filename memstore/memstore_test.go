package memstore_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keyfold/go-webauthn-rp/memstore"
	"github.com/keyfold/go-webauthn-rp/webauthn"
)

func registration(username string, credentialID string) memstore.CredentialRegistration {
	return memstore.CredentialRegistration{
		Username: username,
		UserIdentity: webauthn.UserIdentity{
			ID:          []byte(username + "-handle"),
			Name:        username,
			DisplayName: username,
		},
		Credential: webauthn.RegisteredCredential{
			CredentialID:   []byte(credentialID),
			UserHandle:     []byte(username + "-handle"),
			PublicKeyCOSE:  []byte{0xa5},
			SignatureCount: 1,
		},
	}
}

func TestAddAndLookup(t *testing.T) {
	s := memstore.New()
	require.NoError(t, s.AddRegistration(registration("alice", "cred-1")))

	got, err := s.Lookup([]byte("cred-1"), []byte("alice-handle"))
	require.NoError(t, err)
	cred, ok := got.Get()
	require.True(t, ok)
	require.Equal(t, uint32(1), cred.SignatureCount)

	// Both the credential id and the user handle must match.
	got, err = s.Lookup([]byte("cred-1"), []byte("mallory-handle"))
	require.NoError(t, err)
	require.True(t, got.IsAbsent())
}

func TestDuplicateCredentialIDRejected(t *testing.T) {
	s := memstore.New()
	require.NoError(t, s.AddRegistration(registration("alice", "cred-1")))
	require.Error(t, s.AddRegistration(registration("bob", "cred-1")))
}

func TestLookupAll(t *testing.T) {
	s := memstore.New()
	require.NoError(t, s.AddRegistration(registration("alice", "cred-1")))

	all, err := s.LookupAll([]byte("cred-1"))
	require.NoError(t, err)
	require.Len(t, all, 1)

	none, err := s.LookupAll([]byte("cred-2"))
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestUsernameAndUserHandleResolution(t *testing.T) {
	s := memstore.New()
	require.NoError(t, s.AddRegistration(registration("alice", "cred-1")))

	handle, err := s.GetUserHandleForUsername("alice")
	require.NoError(t, err)
	require.Equal(t, []byte("alice-handle"), handle.MustGet())

	username, err := s.GetUsernameForUserHandle([]byte("alice-handle"))
	require.NoError(t, err)
	require.Equal(t, "alice", username.MustGet())

	missing, err := s.GetUserHandleForUsername("nobody")
	require.NoError(t, err)
	require.True(t, missing.IsAbsent())

	descriptors, err := s.GetCredentialIDsForUsername("alice")
	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	require.Equal(t, []byte("cred-1"), descriptors[0].ID)
}

func TestUpdateSignatureCount(t *testing.T) {
	s := memstore.New()
	require.NoError(t, s.AddRegistration(registration("alice", "cred-1")))

	require.NoError(t, s.UpdateSignatureCount("alice", []byte("cred-1"), 42))

	got, err := s.Lookup([]byte("cred-1"), []byte("alice-handle"))
	require.NoError(t, err)
	require.Equal(t, uint32(42), got.MustGet().SignatureCount)

	require.Error(t, s.UpdateSignatureCount("alice", []byte("cred-9"), 7))
}

func TestRemoveRegistration(t *testing.T) {
	s := memstore.New()
	require.NoError(t, s.AddRegistration(registration("alice", "cred-1")))

	require.True(t, s.RemoveRegistration("alice", []byte("cred-1")))
	require.False(t, s.RemoveRegistration("alice", []byte("cred-1")))
	require.Empty(t, s.RegistrationsByUsername("alice"))
}

func TestConcurrentAccess(t *testing.T) {
	s := memstore.New()
	require.NoError(t, s.AddRegistration(registration("alice", "cred-1")))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = s.Lookup([]byte("cred-1"), []byte("alice-handle"))
				_ = s.UpdateSignatureCount("alice", []byte("cred-1"), uint32(j))
				_, _ = s.LookupAll([]byte("cred-1"))
			}
		}()
	}
	wg.Wait()
}
