package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// lowCostHash keeps the tests fast; validation reads the cost from the hash.
func lowCostHash(t *testing.T, key string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword(bcryptInput(key), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestGenerateAPIKey(t *testing.T) {
	generated, err := GenerateAPIKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(generated.Key, "ns_"))
	assert.Len(t, generated.Key, len("ns_")+APIKeyLength)
	assert.True(t, IsValidAPIKeyFormat(generated.Key))
	assert.True(t, strings.HasPrefix(generated.DisplayPrefix, "ns_"))
	assert.True(t, strings.HasSuffix(generated.DisplayPrefix, "..."))
	assert.True(t, ValidateAPIKey(generated.Key, generated.Hash))

	cost, err := bcrypt.Cost([]byte(generated.Hash))
	require.NoError(t, err)
	assert.Equal(t, BcryptCost, cost)
}

func TestGenerateAPIKey_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 3; i++ {
		generated, err := GenerateAPIKey()
		require.NoError(t, err)
		assert.False(t, seen[generated.Key], "duplicate key generated")
		seen[generated.Key] = true
	}
}

func TestHashAPIKey(t *testing.T) {
	_, err := HashAPIKey("")
	assert.Error(t, err)

	key := "ns_" + strings.Repeat("a", 32)
	hash, err := HashAPIKey(key)
	require.NoError(t, err)
	assert.NotEqual(t, key, hash)
	assert.True(t, strings.HasPrefix(hash, "$2a$"))
}

func TestValidateAPIKey(t *testing.T) {
	key := "ns_" + strings.Repeat("b", 32)
	hash := lowCostHash(t, key)

	tests := []struct {
		name  string
		key   string
		hash  string
		valid bool
	}{
		{"matching key", key, hash, true},
		{"wrong key", "ns_" + strings.Repeat("c", 32), hash, false},
		{"empty key", "", hash, false},
		{"empty hash", key, "", false},
		{"garbage hash", key, "not-a-bcrypt-hash", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidateAPIKey(tt.key, tt.hash))
		})
	}

	t.Run("long keys are prehashed", func(t *testing.T) {
		long := strings.Repeat("x", 100)
		longHash := lowCostHash(t, long)
		assert.True(t, ValidateAPIKey(long, longHash))
		// Differs only after byte 72, which bcrypt alone would ignore.
		assert.False(t, ValidateAPIKey(strings.Repeat("x", 99)+"y", longHash))
	})
}

func TestIsValidAPIKeyFormat(t *testing.T) {
	tests := []struct {
		key   string
		valid bool
	}{
		{"ns_" + strings.Repeat("a", 32), true},
		{"ns_ABCdef123456_x", true},
		{"", false},
		{"sk_" + strings.Repeat("a", 32), false},
		{"ns_short", false},
		{"ns_" + strings.Repeat("a", 60), false},
		{"ns_abcdefghijkl-mn", false},
		{"ns_abcdefghijkl mn", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.valid, IsValidAPIKeyFormat(tt.key), tt.key)
	}
}

func TestCreateDisplayPrefix(t *testing.T) {
	assert.Equal(t, "ns_abcdefgh...", CreateDisplayPrefix("ns_abcdefghijklmnop"))
	assert.Equal(t, "invalid_key", CreateDisplayPrefix("bogus"))
}

func TestKeySet(t *testing.T) {
	first := "ns_" + strings.Repeat("d", 32)
	second := "ns_" + strings.Repeat("e", 32)
	ks := NewKeySet([]string{lowCostHash(t, first), " ", lowCostHash(t, second)})

	assert.Equal(t, 2, ks.Len())
	assert.True(t, ks.Validate(first))
	assert.True(t, ks.Validate(second))
	assert.True(t, ks.Validate(first), "cached key still validates")
	assert.False(t, ks.Validate("ns_"+strings.Repeat("f", 32)))
	assert.False(t, ks.Validate("not a key"))

	ks.mu.RLock()
	assert.Len(t, ks.known, 2)
	ks.mu.RUnlock()
}

func BenchmarkKeySetCachedValidate(b *testing.B) {
	key := "ns_" + strings.Repeat("g", 32)
	hash, _ := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	ks := NewKeySet([]string{string(hash)})
	ks.Validate(key)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ks.Validate(key)
	}
}
