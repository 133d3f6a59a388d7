package credstore

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"flintwallet.org/flint/encrypt"
	"flintwallet.org/flint/wallet"
	"go.etcd.io/bbolt"
)

var tCounter int

type tAuthenticator struct {
	err     error
	reasons []string
}

func (a *tAuthenticator) Authenticate(reason string) error {
	a.reasons = append(a.reasons, reason)
	return a.err
}

func newTestStore(t *testing.T, auth Authenticator, ttl time.Duration) *Store {
	t.Helper()
	tCounter++
	s, err := Open(&Config{
		Path:          filepath.Join(t.TempDir(), fmt.Sprintf("cred%d.db", tCounter)),
		Authenticator: auth,
		CacheTTL:      ttl,
	})
	if err != nil {
		t.Fatalf("error creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSeedRoundTrip(t *testing.T) {
	s := newTestStore(t, nil, 0)
	crypter := encrypt.NewCrypter("testpw")

	exists, err := s.Exists()
	if err != nil {
		t.Fatalf("Exists error: %v", err)
	}
	if exists {
		t.Fatal("credential exists in fresh store")
	}
	if _, err := s.Retrieve(crypter, "test"); !errors.Is(err, wallet.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	seed := "canvas ritual ladder ladder canvas ritual"
	if err := s.StoreSeed(crypter, seed); err != nil {
		t.Fatalf("StoreSeed error: %v", err)
	}
	exists, _ = s.Exists()
	if !exists {
		t.Fatal("credential not found after store")
	}
	reSeed, err := s.Retrieve(crypter, "test")
	if err != nil {
		t.Fatalf("Retrieve error: %v", err)
	}
	if reSeed != seed {
		t.Fatalf("retrieved seed %q != stored seed %q", reSeed, seed)
	}

	// Wrong key fails to decrypt.
	if _, err := s.Retrieve(encrypt.NewCrypter("wrongpw"), "test"); err == nil {
		t.Fatal("no error decrypting with the wrong key")
	}

	// Overwrite.
	seed2 := "ritual canvas ladder canvas ritual ladder"
	if err := s.StoreSeed(crypter, seed2); err != nil {
		t.Fatalf("overwrite error: %v", err)
	}
	reSeed, _ = s.Retrieve(crypter, "test")
	if reSeed != seed2 {
		t.Fatal("overwrite did not replace the credential")
	}

	if err := s.Delete(); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	exists, _ = s.Exists()
	if exists {
		t.Fatal("credential still exists after delete")
	}
	// Deleting again is not an error.
	if err := s.Delete(); err != nil {
		t.Fatalf("second Delete error: %v", err)
	}
}

func TestCredentialStamp(t *testing.T) {
	s := newTestStore(t, nil, 0)
	crypter := encrypt.NewCrypter("testpw")

	stamp, err := s.CredentialStamp()
	if err != nil {
		t.Fatalf("CredentialStamp error: %v", err)
	}
	if !stamp.IsZero() {
		t.Fatalf("fresh store has credential stamp %s", stamp)
	}

	before := time.Now().Add(-time.Second)
	if err := s.StoreSeed(crypter, "canvas ritual ladder"); err != nil {
		t.Fatalf("StoreSeed error: %v", err)
	}
	stamp, err = s.CredentialStamp()
	if err != nil {
		t.Fatalf("CredentialStamp error: %v", err)
	}
	if stamp.Before(before) || stamp.After(time.Now().Add(time.Second)) {
		t.Fatalf("credential stamp %s is not recent", stamp)
	}

	if err := s.Delete(); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	stamp, _ = s.CredentialStamp()
	if !stamp.IsZero() {
		t.Fatal("credential stamp survived delete")
	}
}

func TestCiphertextOnly(t *testing.T) {
	s := newTestStore(t, nil, 0)
	crypter := encrypt.NewCrypter("testpw")
	seed := "owl owl owl owl owl owl owl owl owl owl owl owl"
	if err := s.StoreSeed(crypter, seed); err != nil {
		t.Fatalf("StoreSeed error: %v", err)
	}
	// Read the raw stored bytes and make sure the plaintext is not there.
	var raw []byte
	s.View(func(tx *bbolt.Tx) error {
		raw = append(raw, tx.Bucket(credentialsBucket).Get(seedKey)...)
		return nil
	})
	if len(raw) == 0 {
		t.Fatal("no stored bytes found")
	}
	if bytes.Contains(raw, []byte(seed)) || bytes.Contains(raw, []byte("owl")) {
		t.Fatal("plaintext seed present in durable storage")
	}
}

func TestAuthenticator(t *testing.T) {
	auth := &tAuthenticator{}
	s := newTestStore(t, auth, 0)
	crypter := encrypt.NewCrypter("testpw")
	if err := s.StoreSeed(crypter, "some seed"); err != nil {
		t.Fatalf("StoreSeed error: %v", err)
	}
	if _, err := s.Retrieve(crypter, "export your recovery phrase"); err != nil {
		t.Fatalf("Retrieve error: %v", err)
	}
	if len(auth.reasons) != 1 || auth.reasons[0] != "export your recovery phrase" {
		t.Fatalf("authenticator saw reasons %v", auth.reasons)
	}

	auth.err = errors.New("user canceled")
	_, err := s.Retrieve(crypter, "again")
	if !errors.Is(err, wallet.ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
	}
}

func TestCache(t *testing.T) {
	s := newTestStore(t, nil, 50*time.Millisecond)
	if s.IsCacheValid() {
		t.Fatal("fresh cache reporting valid")
	}
	if _, err := s.RetrieveCached(); !errors.Is(err, wallet.ErrCacheExpired) {
		t.Fatalf("expected ErrCacheExpired, got %v", err)
	}

	s.CacheTransiently("cached seed")
	if !s.IsCacheValid() {
		t.Fatal("cache not valid after CacheTransiently")
	}
	seed, err := s.RetrieveCached()
	if err != nil {
		t.Fatalf("RetrieveCached error: %v", err)
	}
	if seed != "cached seed" {
		t.Fatalf("wrong cached seed %q", seed)
	}

	time.Sleep(60 * time.Millisecond)
	if s.IsCacheValid() {
		t.Fatal("cache still valid past TTL")
	}
	if _, err := s.RetrieveCached(); !errors.Is(err, wallet.ErrCacheExpired) {
		t.Fatalf("expected ErrCacheExpired after TTL, got %v", err)
	}

	s.CacheTransiently("another seed")
	s.ClearCache()
	if s.IsCacheValid() {
		t.Fatal("cache valid after ClearCache")
	}
}

func TestFlags(t *testing.T) {
	s := newTestStore(t, nil, 0)
	for _, tt := range []struct {
		name string
		get  func() (bool, error)
		set  func(bool) error
	}{
		{"hasWallet", s.HasWallet, s.SetHasWallet},
		{"isLoggedIn", s.IsLoggedIn, s.SetIsLoggedIn},
	} {
		v, err := tt.get()
		if err != nil {
			t.Fatalf("%s: get error: %v", tt.name, err)
		}
		if v {
			t.Fatalf("%s: true in fresh store", tt.name)
		}
		if err := tt.set(true); err != nil {
			t.Fatalf("%s: set error: %v", tt.name, err)
		}
		if v, _ = tt.get(); !v {
			t.Fatalf("%s: not true after set", tt.name)
		}
		if err := tt.set(false); err != nil {
			t.Fatalf("%s: unset error: %v", tt.name, err)
		}
		if v, _ = tt.get(); v {
			t.Fatalf("%s: still true after unset", tt.name)
		}
	}
}

func TestKeyParams(t *testing.T) {
	s := newTestStore(t, nil, 0)
	params, err := s.KeyParams()
	if err != nil {
		t.Fatalf("KeyParams error: %v", err)
	}
	if params != nil {
		t.Fatal("key params present in fresh store")
	}
	crypter := encrypt.NewCrypter("apppw")
	if err := s.SetKeyParams(crypter.Serialize()); err != nil {
		t.Fatalf("SetKeyParams error: %v", err)
	}
	params, _ = s.KeyParams()
	if _, err := encrypt.Deserialize("apppw", params); err != nil {
		t.Fatalf("stored key params do not deserialize: %v", err)
	}
	if _, err := encrypt.Deserialize("wrongpw", params); err == nil {
		t.Fatal("key params deserialized with wrong password")
	}
}
