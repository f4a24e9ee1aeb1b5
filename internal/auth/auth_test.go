package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret-key-for-token-signing"

func TestPasswordHasher_HashAndVerify(t *testing.T) {
	hasher, err := NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)

	first, err := hasher.Hash("secret123")
	require.NoError(t, err)
	second, err := hasher.Hash("secret123")
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "salt must differ per call")
	assert.True(t, hasher.Verify("secret123", first))
	assert.True(t, hasher.Verify("secret123", second))
	assert.False(t, hasher.Verify("secret124", first))
}

func TestPasswordHasher_MalformedHash(t *testing.T) {
	hasher, err := NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)

	assert.False(t, hasher.Verify("secret123", "not-a-bcrypt-hash"))
	assert.False(t, hasher.Verify("secret123", ""))
}

func TestPasswordHasher_TooLong(t *testing.T) {
	hasher, err := NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)

	_, err = hasher.Hash(strings.Repeat("a", MaxPasswordLength+1))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestNewPasswordHasher_InvalidCost(t *testing.T) {
	_, err := NewPasswordHasher(1)
	assert.Error(t, err)
}

func TestTokenManager_RoundTrip(t *testing.T) {
	manager, err := NewTokenManager(testSecret)
	require.NoError(t, err)

	subject := uuid.Must(uuid.NewV4())
	token, err := manager.Issue(subject)
	require.NoError(t, err)
	assert.Len(t, strings.Split(token, "."), 3)

	got, err := manager.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, subject, got)
}

func TestTokenManager_ExpiresAfterOneHour(t *testing.T) {
	issuedAt := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	current := issuedAt
	clock := func() time.Time { return current }

	manager, err := NewTokenManager(testSecret, WithClock(clock))
	require.NoError(t, err)

	subject := uuid.Must(uuid.NewV4())
	token, err := manager.Issue(subject)
	require.NoError(t, err)

	current = issuedAt.Add(59 * time.Minute)
	_, err = manager.Verify(token)
	assert.NoError(t, err)

	current = issuedAt.Add(TokenTTL)
	_, err = manager.Verify(token)
	assert.ErrorIs(t, err, ErrExpired)

	current = issuedAt.Add(2 * time.Hour)
	_, err = manager.Verify(token)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestTokenManager_InvalidSignature(t *testing.T) {
	issuer, err := NewTokenManager("some-other-secret")
	require.NoError(t, err)
	verifier, err := NewTokenManager(testSecret)
	require.NoError(t, err)

	token, err := issuer.Issue(uuid.Must(uuid.NewV4()))
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + ".AAAA" + parts[2][4:]
	_, err = issuer.Verify(tampered)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestTokenManager_RejectsOtherAlgorithms(t *testing.T) {
	manager, err := NewTokenManager(testSecret)
	require.NoError(t, err)

	claims := jwt.RegisteredClaims{
		Subject:   uuid.Must(uuid.NewV4()).String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = manager.Verify(hs512)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = manager.Verify(none)
	assert.Error(t, err)
}

func TestTokenManager_Malformed(t *testing.T) {
	manager, err := NewTokenManager(testSecret)
	require.NoError(t, err)

	for _, token := range []string{"", "garbage", "a.b", "a.b.c"} {
		_, err := manager.Verify(token)
		assert.ErrorIs(t, err, ErrMalformed, "token %q", token)
	}
}

func TestTokenManager_MissingClaims(t *testing.T) {
	manager, err := NewTokenManager(testSecret)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: uuid.Must(uuid.NewV4()).String(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = manager.Verify(noExpiry)
	assert.ErrorIs(t, err, ErrMalformed)

	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "not-a-uuid",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = manager.Verify(badSubject)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestNewTokenManager_EmptySecret(t *testing.T) {
	_, err := NewTokenManager("")
	assert.ErrorIs(t, err, ErrEmptySecret)
}

func TestSubjectContext(t *testing.T) {
	_, ok := SubjectFromContext(context.Background())
	assert.False(t, ok)

	id := uuid.Must(uuid.NewV4())
	got, ok := SubjectFromContext(WithSubject(context.Background(), id))
	assert.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = SubjectFromContext(WithSubject(context.Background(), uuid.Nil))
	assert.False(t, ok)
}
