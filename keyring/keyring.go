// Package keyring stores router account secrets in an encrypted file,
// keyed by a master key kept in a separate file.
package keyring

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// MaxMasterKeyLength bounds the master key size. Longer keys are a
// configuration error.
const MaxMasterKeyLength = 255

const generatedKeyBytes = 32

// Error wraps keyring failures with the file they concern. The path is
// always the real keyring or key file, never a temporary.
type Error struct {
	Path  string
	Op    string
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("keyring %s %s: %s", e.Op, e.Path, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// MasterKeyTooLongError reports a master key over MaxMasterKeyLength
// bytes.
type MasterKeyTooLongError struct {
	Path   string
	Length int
}

func (e *MasterKeyTooLongError) Error() string {
	return fmt.Sprintf("master key in %s is %d bytes, maximum is %d",
		e.Path, e.Length, MaxMasterKeyLength)
}

// NotFoundError is returned by Retrieve for an unknown entry.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("keyring entry %s not found", e.Name)
}

// Store is a file-backed secret store. Entries are serialized to JSON
// and sealed with AES-GCM under a key derived from the master key.
type Store struct {
	path      string
	masterKey []byte
	entries   map[string]string
}

// Open loads the keyring at path using the master key stored in
// keyPath. Missing files are created on the first Save; a missing
// master key file gets a fresh random key.
func Open(path, keyPath string) (*Store, error) {
	key, err := loadOrCreateMasterKey(keyPath)
	if err != nil {
		return nil, err
	}

	s := &Store{path: path, masterKey: key, entries: map[string]string{}}
	sealed, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, &Error{Path: path, Op: "reading", Cause: err}
	}
	plain, err := unseal(key, sealed)
	if err != nil {
		return nil, &Error{Path: path, Op: "decrypting", Cause: err}
	}
	if err := json.Unmarshal(plain, &s.entries); err != nil {
		return nil, &Error{Path: path, Op: "parsing", Cause: err}
	}
	return s, nil
}

// Store records value under name. The change is not persisted until
// Save.
func (s *Store) Store(name, value string) {
	s.entries[name] = value
}

func (s *Store) Retrieve(name string) (string, error) {
	v, ok := s.entries[name]
	if !ok {
		return "", &NotFoundError{Name: name}
	}
	return v, nil
}

func (s *Store) Remove(name string) {
	delete(s.entries, name)
}

// Save seals the entries and writes them to the keyring file. The
// write goes through a temporary file in the same directory so a crash
// never leaves a half-written keyring behind.
func (s *Store) Save() error {
	plain, err := json.Marshal(s.entries)
	if err != nil {
		return &Error{Path: s.path, Op: "encoding", Cause: err}
	}
	sealed, err := seal(s.masterKey, plain)
	if err != nil {
		return &Error{Path: s.path, Op: "encrypting", Cause: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp")
	if err != nil {
		return &Error{Path: s.path, Op: "writing", Cause: err}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		return &Error{Path: s.path, Op: "writing", Cause: err}
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return &Error{Path: s.path, Op: "writing", Cause: err}
	}
	if err := tmp.Close(); err != nil {
		return &Error{Path: s.path, Op: "writing", Cause: err}
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return &Error{Path: s.path, Op: "writing", Cause: err}
	}
	return nil
}

func loadOrCreateMasterKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err == nil {
		if len(key) > MaxMasterKeyLength {
			return nil, &MasterKeyTooLongError{Path: path, Length: len(key)}
		}
		if len(key) == 0 {
			return nil, &Error{Path: path, Op: "reading", Cause: fmt.Errorf("master key file is empty")}
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, &Error{Path: path, Op: "reading", Cause: err}
	}

	raw := make([]byte, generatedKeyBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, &Error{Path: path, Op: "generating", Cause: err}
	}
	key = []byte(base64.StdEncoding.EncodeToString(raw))
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, &Error{Path: path, Op: "writing", Cause: err}
	}
	return key, nil
}

// seal encrypts plain under a SHA-256 derivation of the master key,
// prefixing the random nonce to the ciphertext.
func seal(masterKey, plain []byte) ([]byte, error) {
	gcm, err := newGCM(masterKey)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plain, nil), nil
}

func unseal(masterKey, sealed []byte) ([]byte, error) {
	gcm, err := newGCM(masterKey)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext shorter than nonce")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

func newGCM(masterKey []byte) (cipher.AEAD, error) {
	derived := sha256.Sum256(masterKey)
	block, err := aes.NewCipher(derived[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
