package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey    = "test-signing-key"
	testIssuer = "scheduler"
)

func TestIssueParseRoundtrip(t *testing.T) {
	token, exp, err := Issue("user-1", RoleInstructor, testIssuer, testKey, time.Hour)
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	actor, err := Parse(token, testKey, testIssuer)
	require.NoError(t, err)
	assert.Equal(t, "user-1", actor.ID)
	assert.Equal(t, RoleInstructor, actor.Role)
}

func TestParseRejections(t *testing.T) {
	token, _, err := Issue("user-1", RoleStudent, testIssuer, testKey, time.Hour)
	require.NoError(t, err)

	_, err = Parse(token, "wrong-key", testIssuer)
	assert.Error(t, err)

	_, err = Parse(token, testKey, "other-issuer")
	assert.Error(t, err)

	expired, _, err := Issue("user-1", RoleStudent, testIssuer, testKey, -time.Minute)
	require.NoError(t, err)
	_, err = Parse(expired, testKey, testIssuer)
	assert.Error(t, err)

	// unknown roles never yield an actor
	bogus, _, err := Issue("user-1", Role("root"), testIssuer, testKey, time.Hour)
	require.NoError(t, err)
	_, err = Parse(bogus, testKey, testIssuer)
	assert.Error(t, err)
}

func TestRoleTiers(t *testing.T) {
	for _, r := range []Role{RoleStudent, RoleInstructor, RoleCoordinator, RoleManager, RoleCEO} {
		assert.True(t, r.Valid(), string(r))
	}
	assert.False(t, Role("admin").Valid())

	assert.True(t, RoleManager.AdminTier())
	assert.True(t, RoleCEO.AdminTier())
	assert.False(t, RoleCoordinator.AdminTier())
	assert.False(t, RoleInstructor.AdminTier())
	assert.False(t, RoleStudent.AdminTier())
}
