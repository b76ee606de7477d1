package adminauth

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticateRejectsWhenDisabled(t *testing.T) {
	_, err := Authenticate(Config{Enabled: false}, http.Header{}, "10.0.0.1")
	require.ErrorIs(t, err, ErrAdminDisabled)
}

func TestAuthenticateRejectsWhenTokenNotConfigured(t *testing.T) {
	_, err := Authenticate(Config{Enabled: true, Token: ""}, http.Header{}, "10.0.0.1")
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestAuthenticateRejectsIPOutsideAllowlist(t *testing.T) {
	cfg := Config{Enabled: true, Token: "secret", Allowlist: []string{"10.0.0.0/24"}}
	_, err := Authenticate(cfg, http.Header{"Authorization": {"Bearer secret"}}, "192.168.1.5")
	require.ErrorIs(t, err, ErrIPNotAllowed)
}

func TestAuthenticateAllowsIPInsideCIDR(t *testing.T) {
	cfg := Config{Enabled: true, Token: "secret", Allowlist: []string{"10.0.0.0/24"}}
	actor, err := Authenticate(cfg, http.Header{"Authorization": {"Bearer secret"}}, "10.0.0.42")
	require.NoError(t, err)
	assert.Equal(t, "admin", actor.ActorID)
	assert.Equal(t, "10.0.0.42", actor.ClientIP)
}

func TestAuthenticateRejectsWrongToken(t *testing.T) {
	cfg := Config{Enabled: true, Token: "secret"}
	_, err := Authenticate(cfg, http.Header{"Authorization": {"Bearer wrong"}}, "10.0.0.1")
	require.ErrorIs(t, err, ErrTokenMismatch)
}

func TestAuthenticateAcceptsXAdminTokenHeader(t *testing.T) {
	cfg := Config{Enabled: true, Token: "secret"}
	actor, err := Authenticate(cfg, http.Header{"X-Admin-Token": {"secret"}, "X-Admin-User": {"alice"}}, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "alice", actor.ActorID)
}

func TestAuthenticateTruncatesLongActorID(t *testing.T) {
	cfg := Config{Enabled: true, Token: "secret"}
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}
	actor, err := Authenticate(cfg, http.Header{"X-Admin-Token": {"secret"}, "X-Admin-User": {string(long)}}, "10.0.0.1")
	require.NoError(t, err)
	assert.Len(t, actor.ActorID, maxActorIDLen)
}

func TestParseAllowlistTrimsAndDropsEmpties(t *testing.T) {
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, ParseAllowlist(" 10.0.0.1 ,10.0.0.2, "))
	assert.Nil(t, ParseAllowlist(""))
}

func TestValidateForEnvironmentRequiresAllowlistInProduction(t *testing.T) {
	open := Config{Enabled: true, Token: "secret"}
	require.Error(t, ValidateForEnvironment(open, "production"))
	require.NoError(t, ValidateForEnvironment(open, "staging"))

	restricted := Config{Enabled: true, Token: "secret", Allowlist: []string{"10.0.0.0/24"}}
	require.NoError(t, ValidateForEnvironment(restricted, "production"))

	disabled := Config{Enabled: false}
	require.NoError(t, ValidateForEnvironment(disabled, "production"))
}

func TestRequireWriteEnabled(t *testing.T) {
	require.Error(t, RequireWriteEnabled(Config{WriteEnabled: false}))
	require.NoError(t, RequireWriteEnabled(Config{WriteEnabled: true}))
}
