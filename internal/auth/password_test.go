package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordManager_HashAndVerifyRoundTrip(t *testing.T) {
	pm := NewPasswordManager(DefaultBcryptCost)

	hash, err := pm.Hash("correct horse battery staple")
	require.NoError(t, err)

	assert.True(t, pm.Verify("correct horse battery staple", hash))
	assert.False(t, pm.Verify("wrong password", hash))
}

func TestNewPasswordManager_FallsBackBelowBcryptMinCost(t *testing.T) {
	pm := NewPasswordManager(0)
	assert.Equal(t, DefaultBcryptCost, pm.cost)
}
