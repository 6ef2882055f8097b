package auth

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// storedTokens is the on-disk token record.
type storedTokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// SecureFileTokenStore persists the session tokens in an AES-GCM
// encrypted file under the user config dir. The encryption key is
// derived from machine-specific data, so the file is useless when
// copied off the device.
type SecureFileTokenStore struct {
	cacheFile  string
	encryptKey []byte
	refresher  TokenRefresher
	mu         sync.RWMutex
}

// NewSecureFileTokenStore creates the store rooted at cacheDir
// (a "~/" prefix expands to the home directory). The refresher owns the
// actual refresh network call; it may be nil for read-only consumers.
func NewSecureFileTokenStore(cacheDir string, refresher TokenRefresher) (*SecureFileTokenStore, error) {
	if strings.HasPrefix(cacheDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cacheDir = filepath.Join(home, cacheDir[2:])
	}

	if err := os.MkdirAll(cacheDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create token directory: %w", err)
	}

	return &SecureFileTokenStore{
		cacheFile:  filepath.Join(cacheDir, ".session"),
		encryptKey: deriveEncryptionKey(),
		refresher:  refresher,
	}, nil
}

// GetAccessToken returns the stored access token, "" when none exists.
func (s *SecureFileTokenStore) GetAccessToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tokens, err := s.read()
	if err != nil {
		return "", err
	}
	return tokens.AccessToken, nil
}

// SaveAccessToken persists the access token, keeping the refresh token.
func (s *SecureFileTokenStore) SaveAccessToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(func(t *storedTokens) { t.AccessToken = token })
}

// GetRefreshToken returns the stored refresh token, "" when none
// exists.
func (s *SecureFileTokenStore) GetRefreshToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tokens, err := s.read()
	if err != nil {
		return "", err
	}
	return tokens.RefreshToken, nil
}

// SaveRefreshToken persists the refresh token, keeping the access
// token.
func (s *SecureFileTokenStore) SaveRefreshToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(func(t *storedTokens) { t.RefreshToken = token })
}

// ClearTokens removes the session file.
func (s *SecureFileTokenStore) ClearTokens(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.cacheFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}

// RefreshAccessToken performs the refresh call through the configured
// refresher and persists the rotated pair. Returns "" with a nil error
// when there is no refresh token to refresh with.
func (s *SecureFileTokenStore) RefreshAccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens, err := s.read()
	if err != nil {
		return "", err
	}
	if tokens.RefreshToken == "" || s.refresher == nil {
		return "", nil
	}

	access, refresh, err := s.refresher.Refresh(ctx, tokens.RefreshToken)
	if err != nil {
		return "", err
	}
	if refresh == "" {
		// Servers that do not rotate keep the old refresh token.
		refresh = tokens.RefreshToken
	}

	if err := s.write(storedTokens{AccessToken: access, RefreshToken: refresh}); err != nil {
		return "", err
	}
	return access, nil
}

func (s *SecureFileTokenStore) read() (storedTokens, error) {
	var tokens storedTokens

	data, err := os.ReadFile(s.cacheFile)
	if err != nil {
		if os.IsNotExist(err) {
			return tokens, nil
		}
		return tokens, fmt.Errorf("failed to read token file: %w", err)
	}

	decrypted, err := s.decrypt(data)
	if err != nil {
		return tokens, fmt.Errorf("failed to decrypt token file: %w", err)
	}
	if err := json.Unmarshal(decrypted, &tokens); err != nil {
		return tokens, fmt.Errorf("failed to unmarshal token file: %w", err)
	}
	return tokens, nil
}

func (s *SecureFileTokenStore) update(mutate func(*storedTokens)) error {
	tokens, err := s.read()
	if err != nil {
		return err
	}
	mutate(&tokens)
	return s.write(tokens)
}

func (s *SecureFileTokenStore) write(tokens storedTokens) error {
	data, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}

	encrypted, err := s.encrypt(data)
	if err != nil {
		return fmt.Errorf("failed to encrypt tokens: %w", err)
	}

	if err := os.WriteFile(s.cacheFile, encrypted, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

func (s *SecureFileTokenStore) encrypt(data []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.encryptKey)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	ciphertext := gcm.Seal(nonce, nonce, data, nil)
	return []byte(base64.StdEncoding.EncodeToString(ciphertext)), nil
}

func (s *SecureFileTokenStore) decrypt(data []byte) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(s.encryptKey)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// deriveEncryptionKey builds a machine-specific 32-byte key from the
// hostname and user name.
func deriveEncryptionKey() []byte {
	hostname, _ := os.Hostname()
	user := os.Getenv("USER")
	if user == "" {
		user = os.Getenv("USERNAME")
	}
	hash := sha256.Sum256([]byte(fmt.Sprintf("zanmi:%s:%s", hostname, user)))
	return hash[:]
}

// MemoryTokenStore is an in-memory token store for tests and embedded
// consumers that manage sessions themselves.
type MemoryTokenStore struct {
	refresher TokenRefresher

	mu     sync.RWMutex
	tokens storedTokens
}

// NewMemoryTokenStore creates an empty in-memory store.
func NewMemoryTokenStore(refresher TokenRefresher) *MemoryTokenStore {
	return &MemoryTokenStore{refresher: refresher}
}

func (s *MemoryTokenStore) GetAccessToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens.AccessToken, nil
}

func (s *MemoryTokenStore) SaveAccessToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens.AccessToken = token
	return nil
}

func (s *MemoryTokenStore) GetRefreshToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens.RefreshToken, nil
}

func (s *MemoryTokenStore) SaveRefreshToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens.RefreshToken = token
	return nil
}

func (s *MemoryTokenStore) ClearTokens(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = storedTokens{}
	return nil
}

func (s *MemoryTokenStore) RefreshAccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tokens.RefreshToken == "" || s.refresher == nil {
		return "", nil
	}
	access, refresh, err := s.refresher.Refresh(ctx, s.tokens.RefreshToken)
	if err != nil {
		return "", err
	}
	if refresh == "" {
		refresh = s.tokens.RefreshToken
	}
	s.tokens = storedTokens{AccessToken: access, RefreshToken: refresh}
	return access, nil
}
