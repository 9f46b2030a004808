package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerRoundTrip(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Sign("exp-1", "attendance_2024-03-01_2024-03-08.csv")
	require.NoError(t, err)
	require.NotContains(t, token, "/")

	claims, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "exp-1", claims.ExportID)
	assert.Equal(t, "attendance_2024-03-01_2024-03-08.csv", claims.Path)
	assert.WithinDuration(t, expiresAt, claims.Expiry(), time.Second)
}

func TestSignedURLSignerRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Sign("exp-1", "report.csv")
	require.NoError(t, err)

	other := NewSignedURLSigner("other-secret", time.Hour)
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = signer.Verify(token + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = signer.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSignedURLSignerExpiry(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	signer.now = func() time.Time { return now }
	token, _, err := signer.Sign("exp-1", "report.csv")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = signer.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestSignedURLSignerRequiresSecret(t *testing.T) {
	_, _, err := NewSignedURLSigner("", time.Hour).Sign("exp-1", "report.csv")
	assert.Error(t, err)
}
