// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package credstore is the durable, secure home of the wallet credential (the
// recovery phrase) and the two wallet flags. The phrase is only ever written
// as ciphertext produced by an encrypt.Crypter; plaintext exists exclusively
// in the short-lived in-memory cache (cache.go). The durable store is the
// source of truth for credential existence.
package credstore

import (
	"context"
	"fmt"
	"time"

	"flintwallet.org/flint/encode"
	"flintwallet.org/flint/encrypt"
	"flintwallet.org/flint/wallet"
	"go.etcd.io/bbolt"
)

// Bolt works on []byte keys and values. These are some commonly used key and
// value encodings.
var (
	credentialsBucket = []byte("credentials")
	flagsBucket       = []byte("flags")
	seedKey           = []byte("seed")
	keyParamsKey      = []byte("keyParams")
	stampKey          = []byte("stamp")
	hasWalletKey      = []byte("hasWallet")
	isLoggedInKey     = []byte("isLoggedIn")
	byteTrue          = encode.ByteTrue
)

// Authenticator gates authenticated credential reads. Implementations would
// typically prompt for a biometric or device passcode. The reason string is
// presentation text for the prompt.
type Authenticator interface {
	Authenticate(reason string) error
}

// allowAll is the default Authenticator. It approves every request.
type allowAll struct{}

func (allowAll) Authenticate(string) error { return nil }

// Config is the configuration for the credential Store.
type Config struct {
	// Path is the filepath of the bolt database file. The file is created if
	// it does not exist.
	Path string
	// Authenticator gates Retrieve. If nil, reads are not gated.
	Authenticator Authenticator
	// CacheTTL overrides the default transient cache validity window.
	CacheTTL time.Duration
	// Logger is the store's logger.
	Logger wallet.Logger
}

// Store is a bbolt-backed credential store.
type Store struct {
	*bbolt.DB
	log   wallet.Logger
	auth  Authenticator
	cache seedCache
}

// Open creates or opens the credential database at cfg.Path.
func Open(cfg *Config) (*Store, error) {
	db, err := bbolt.Open(cfg.Path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	auth := cfg.Authenticator
	if auth == nil {
		auth = allowAll{}
	}
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = defaultCacheTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = wallet.Disabled
	}
	s := &Store{
		DB:   db,
		log:  logger,
		auth: auth,
	}
	s.cache.ttl = ttl
	err = s.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{credentialsBucket, flagsBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s error: %w", string(bucket), err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Run waits for context cancellation, then clears the transient cache and
// closes the database.
func (s *Store) Run(ctx context.Context) {
	<-ctx.Done()
	s.ClearCache()
	if err := s.Close(); err != nil {
		s.log.Errorf("error closing credential database: %v", err)
	}
}

// KeyParams returns the serialized encryption key parameters stored by
// SetKeyParams, or nil if none have been stored. Use encrypt.Deserialize with
// the app password to reconstitute the Crypter.
func (s *Store) KeyParams() ([]byte, error) {
	var params []byte
	return params, s.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(credentialsBucket).Get(keyParamsKey)
		if b != nil {
			params = encode.CopySlice(b)
		}
		return nil
	})
}

// SetKeyParams stores the serialized encryption key parameters.
func (s *Store) SetKeyParams(params []byte) error {
	return s.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(credentialsBucket).Put(keyParamsKey, params)
	})
}

// Exists reports whether a credential is stored. Exists consults the durable
// store only, never the transient cache.
func (s *Store) Exists() (bool, error) {
	var exists bool
	return exists, s.View(func(tx *bbolt.Tx) error {
		exists = tx.Bucket(credentialsBucket).Get(seedKey) != nil
		return nil
	})
}

// StoreSeed encrypts the seed with the crypter and stores the ciphertext,
// overwriting any previous credential.
func (s *Store) StoreSeed(crypter encrypt.Crypter, seed string) error {
	encSeed, err := crypter.Encrypt([]byte(seed))
	if err != nil {
		return fmt.Errorf("seed encryption error: %w", err)
	}
	return s.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(credentialsBucket)
		if err := bkt.Put(seedKey, encSeed); err != nil {
			return err
		}
		return bkt.Put(stampKey, encode.Uint64Bytes(encode.UnixMilliU(time.Now())))
	})
}

// Retrieve performs an authenticated read of the credential, decrypting it
// with the crypter. The reason string is passed to the Authenticator for
// display. Returns wallet.ErrNotFound if no credential is stored, and
// wallet.ErrAuthenticationFailed if the Authenticator rejects the request.
func (s *Store) Retrieve(crypter encrypt.Crypter, reason string) (string, error) {
	if err := s.auth.Authenticate(reason); err != nil {
		return "", wallet.NewError(wallet.ErrAuthenticationFailed, err.Error())
	}
	var encSeed []byte
	err := s.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(credentialsBucket).Get(seedKey)
		if b == nil {
			return wallet.ErrNotFound
		}
		encSeed = encode.CopySlice(b)
		return nil
	})
	if err != nil {
		return "", err
	}
	seedB, err := crypter.Decrypt(encSeed)
	if err != nil {
		return "", fmt.Errorf("seed decryption error: %w", err)
	}
	seed := string(seedB)
	encode.ClearBytes(seedB)
	return seed, nil
}

// CredentialStamp returns the time the stored credential was last written. A
// zero time is returned when no credential is stored.
func (s *Store) CredentialStamp() (time.Time, error) {
	var stamp time.Time
	return stamp, s.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(credentialsBucket).Get(stampKey)
		if len(b) == 8 {
			stamp = encode.DecodeUTime(b)
		}
		return nil
	})
}

// Delete removes the stored credential and clears the transient cache. It is
// not an error to delete when no credential is stored.
func (s *Store) Delete() error {
	s.ClearCache()
	return s.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(credentialsBucket)
		if err := bkt.Delete(seedKey); err != nil {
			return err
		}
		return bkt.Delete(stampKey)
	})
}

// HasWallet reads the durable hasWallet flag.
func (s *Store) HasWallet() (bool, error) {
	return s.flag(hasWalletKey)
}

// SetHasWallet writes the durable hasWallet flag.
func (s *Store) SetHasWallet(v bool) error {
	return s.setFlag(hasWalletKey, v)
}

// IsLoggedIn reads the durable isLoggedIn flag.
func (s *Store) IsLoggedIn() (bool, error) {
	return s.flag(isLoggedInKey)
}

// SetIsLoggedIn writes the durable isLoggedIn flag.
func (s *Store) SetIsLoggedIn(v bool) error {
	return s.setFlag(isLoggedInKey, v)
}

func (s *Store) flag(key []byte) (bool, error) {
	var v bool
	return v, s.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(flagsBucket).Get(key)
		v = b != nil && b[0] == byteTrue[0]
		return nil
	})
}

func (s *Store) setFlag(key []byte, v bool) error {
	val := encode.ByteFalse
	if v {
		val = encode.ByteTrue
	}
	return s.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(flagsBucket).Put(key, val)
	})
}
