// Package auth provides API key generation and validation for the netsweep
// API server. Keys are random, shown once, and only their bcrypt hashes are
// kept in configuration.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// API key generation and validation constants
const (
	// APIKeyLength is the length of the random part of an API key
	APIKeyLength = 32
	// APIKeyPrefix is the standard prefix for all API keys
	APIKeyPrefix = "ns"

	// BcryptCost is the bcrypt cost for hashing API keys
	BcryptCost = 12
	// BcryptMaxInputLength is the maximum input length for bcrypt (72 bytes)
	BcryptMaxInputLength = 72

	minAPIKeyLength = 15
	maxAPIKeyLength = 50

	// maxCachedKeys bounds the set of keys remembered as valid.
	maxCachedKeys = 256
)

// GeneratedAPIKey is a new key and the hash to put in api.api_key_hashes.
type GeneratedAPIKey struct {
	Key           string `json:"key" yaml:"key"`
	Hash          string `json:"hash" yaml:"hash"`
	DisplayPrefix string `json:"display_prefix" yaml:"display_prefix"`
}

// GenerateAPIKey creates a new random API key and its hash.
func GenerateAPIKey() (*GeneratedAPIKey, error) {
	randomBytes := make([]byte, APIKeyLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}

	// base32 avoids ambiguous characters
	randomPart := strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(randomBytes))
	if len(randomPart) > APIKeyLength {
		randomPart = randomPart[:APIKeyLength]
	}
	fullKey := APIKeyPrefix + "_" + randomPart

	hash, err := HashAPIKey(fullKey)
	if err != nil {
		return nil, err
	}

	return &GeneratedAPIKey{
		Key:           fullKey,
		Hash:          hash,
		DisplayPrefix: CreateDisplayPrefix(fullKey),
	}, nil
}

// HashAPIKey creates a bcrypt hash of an API key for storage.
func HashAPIKey(apiKey string) (string, error) {
	if apiKey == "" {
		return "", fmt.Errorf("API key cannot be empty")
	}

	hash, err := bcrypt.GenerateFromPassword(bcryptInput(apiKey), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash API key: %w", err)
	}
	return string(hash), nil
}

// ValidateAPIKey checks if a provided API key matches the stored hash.
func ValidateAPIKey(apiKey, storedHash string) bool {
	if apiKey == "" || storedHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(storedHash), bcryptInput(apiKey)) == nil
}

// bcrypt has a 72-byte limit, so longer keys are pre-hashed with SHA-256.
func bcryptInput(apiKey string) []byte {
	keyBytes := []byte(apiKey)
	if len(keyBytes) > BcryptMaxInputLength {
		sum := sha256.Sum256(keyBytes)
		keyBytes = sum[:]
	}
	return keyBytes
}

// IsValidAPIKeyFormat checks if an API key has the correct format.
func IsValidAPIKeyFormat(apiKey string) bool {
	if !strings.HasPrefix(apiKey, APIKeyPrefix+"_") {
		return false
	}
	if len(apiKey) < minAPIKeyLength || len(apiKey) > maxAPIKeyLength {
		return false
	}

	for _, char := range apiKey {
		if (char < 'a' || char > 'z') &&
			(char < 'A' || char > 'Z') &&
			(char < '0' || char > '9') &&
			char != '_' {
			return false
		}
	}
	return true
}

// CreateDisplayPrefix creates a safe-to-display prefix from a full API key.
func CreateDisplayPrefix(apiKey string) string {
	if !IsValidAPIKeyFormat(apiKey) {
		return "invalid_key"
	}

	random := strings.TrimPrefix(apiKey, APIKeyPrefix+"_")
	if len(random) > 8 {
		random = random[:8]
	}
	return fmt.Sprintf("%s_%s...", APIKeyPrefix, random)
}

// KeySet validates presented keys against configured bcrypt hashes. Keys
// that matched once are remembered by digest so repeat requests skip bcrypt.
type KeySet struct {
	hashes []string

	mu    sync.RWMutex
	known map[[sha256.Size]byte]struct{}
}

// NewKeySet returns a KeySet for the given hashes. Empty entries are ignored.
func NewKeySet(hashes []string) *KeySet {
	ks := &KeySet{known: make(map[[sha256.Size]byte]struct{})}
	for _, h := range hashes {
		if h = strings.TrimSpace(h); h != "" {
			ks.hashes = append(ks.hashes, h)
		}
	}
	return ks
}

// Len returns the number of configured hashes.
func (ks *KeySet) Len() int {
	return len(ks.hashes)
}

// Validate reports whether key matches any configured hash.
func (ks *KeySet) Validate(key string) bool {
	if !IsValidAPIKeyFormat(key) {
		return false
	}

	digest := sha256.Sum256([]byte(key))
	ks.mu.RLock()
	_, ok := ks.known[digest]
	ks.mu.RUnlock()
	if ok {
		return true
	}

	for _, h := range ks.hashes {
		if ValidateAPIKey(key, h) {
			ks.mu.Lock()
			if len(ks.known) < maxCachedKeys {
				ks.known[digest] = struct{}{}
			}
			ks.mu.Unlock()
			return true
		}
	}
	return false
}
