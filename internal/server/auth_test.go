package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDevTokenValidity(t *testing.T) {
	token, err := signDevToken("s3cret", "carol", []string{"staff:list"}, time.Now())
	require.NoError(t, err)
	p, err := authenticateJWT(token, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "carol", p.ActorID)
	assert.Equal(t, []string{"staff:list"}, p.Permissions)

	_, err = authenticateJWT(token, "other")
	assert.Error(t, err)

	stale, err := signDevToken("s3cret", "carol", nil, time.Now().Add(-13*time.Hour))
	require.NoError(t, err)
	_, err = authenticateJWT(stale, "s3cret")
	assert.Error(t, err)

	_, err = signDevToken("", "carol", nil, time.Now())
	assert.Error(t, err)
}
