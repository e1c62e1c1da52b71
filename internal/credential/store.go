package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	credentialFile = "credential.enc"

	keyPrefix    = "sk-"
	minKeyLength = 20

	// The passphrase ships inside the binary. This is obfuscation against
	// casual inspection of the file on disk, not confidentiality against
	// someone with a copy of the code; the credential's real protection is
	// that it is a user-owned, user-revocable provider secret.
	encryptionPassphrase = "ai-image-gen-2024"
	derivationSalt       = "imgstudio.credential.v1"
	derivationIterations = 4096
)

// Store persists the provider credential encrypted on disk.
type Store struct {
	configDir string
}

// NewStore creates a store rooted at the platform config directory.
func NewStore() (*Store, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, err
	}
	return &Store{configDir: configDir}, nil
}

// NewStoreWithDir creates a store rooted at an explicit directory.
func NewStoreWithDir(dir string) *Store {
	return &Store{configDir: dir}
}

// getConfigDir returns the platform-specific config directory
func getConfigDir() (string, error) {
	// Allow override for testing
	if testDir := os.Getenv("IMGSTUDIO_CONFIG_DIR"); testDir != "" {
		return testDir, nil
	}

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", "imgstudio"), nil
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, "imgstudio"), nil
	default: // linux and others
		// Follow XDG Base Directory Specification
		configHome := os.Getenv("XDG_CONFIG_HOME")
		if configHome == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configHome = filepath.Join(home, ".config")
		}
		return filepath.Join(configHome, "imgstudio"), nil
	}
}

// Path returns the path to the encrypted credential file.
func (s *Store) Path() string {
	return filepath.Join(s.configDir, credentialFile)
}

// Save encrypts the secret and writes it to disk, overwriting any prior value.
func (s *Store) Save(secret string) error {
	if err := os.MkdirAll(s.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	blob, err := encrypt([]byte(secret))
	if err != nil {
		return fmt.Errorf("failed to encrypt credential: %w", err)
	}

	// Restricted permissions: owner read/write only
	if err := os.WriteFile(s.Path(), blob, 0600); err != nil {
		return fmt.Errorf("failed to write credential: %w", err)
	}
	return nil
}

// Load reads and decrypts the stored credential. Absent, corrupt, or
// malformed entries all degrade to ("", false) and the bad entry is removed
// so later loads do not trip over it again. Load never returns an error.
func (s *Store) Load() (string, bool) {
	blob, err := os.ReadFile(s.Path())
	if err != nil {
		return "", false
	}

	plain, err := decrypt(blob)
	if err != nil {
		s.Clear()
		return "", false
	}

	secret := string(plain)
	if !IsFormatValid(secret) {
		s.Clear()
		return "", false
	}

	return secret, true
}

// Clear removes the persisted credential.
func (s *Store) Clear() error {
	if err := os.Remove(s.Path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credential: %w", err)
	}
	return nil
}

// IsFormatValid reports whether the secret looks like a provider key:
// non-empty, fixed prefix, minimum length.
func IsFormatValid(secret string) bool {
	return strings.HasPrefix(secret, keyPrefix) && len(secret) > minKeyLength
}

// Mask returns a display-safe version of the secret.
func Mask(secret string) string {
	if len(secret) < 8 {
		return strings.Repeat("•", 8)
	}
	return secret[:7] + strings.Repeat("•", 8) + secret[len(secret)-4:]
}

func derivedKey() []byte {
	return pbkdf2.Key([]byte(encryptionPassphrase), []byte(derivationSalt), derivationIterations, 32, sha256.New)
}

func encrypt(plain []byte) ([]byte, error) {
	block, err := aes.NewCipher(derivedKey())
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plain, nil), nil
}

func decrypt(blob []byte) ([]byte, error) {
	block, err := aes.NewCipher(derivedKey())
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(blob) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := blob[:gcm.NonceSize()], blob[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
