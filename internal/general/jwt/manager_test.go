package jwt

import (
	"encoding/json"
	"testing"
	"time"

	"motoride/internal/domain/user"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidateToken(t *testing.T) {
	mgr := NewManager("test-secret", time.Hour)

	signed, claims, err := mgr.IssueUserToken("cust-1", user.RoleCustomer)
	require.NoError(t, err)
	require.NotEmpty(t, signed)
	assert.Equal(t, "cust-1", claims.Subject)
	assert.Equal(t, user.RoleCustomer, claims.Role)

	_, parsed, err := mgr.ParseAndValidate(signed)
	require.NoError(t, err)
	assert.Equal(t, "cust-1", parsed.Subject)
	assert.Equal(t, user.RoleCustomer, parsed.Role)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	mgr := NewManager("test-secret", time.Hour)
	other := NewManager("different-secret", time.Hour)

	signed, _, err := mgr.IssueUserToken("cust-1", user.RoleCustomer)
	require.NoError(t, err)

	_, _, err = other.ParseAndValidate(signed)
	assert.Error(t, err)
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	mgr := NewManager("test-secret", -time.Minute)

	signed, _, err := mgr.IssueUserToken("cust-1", user.RoleCustomer)
	require.NoError(t, err)

	_, _, err = mgr.ParseAndValidate(signed)
	assert.Error(t, err)
}

func TestIssueRejectsInvalidRole(t *testing.T) {
	mgr := NewManager("test-secret", time.Hour)

	_, _, err := mgr.IssueUserToken("cust-1", user.Role("ADMIN"))
	assert.Error(t, err)
}

func TestRoleAllowed(t *testing.T) {
	cl := NewUserClaims("drv-1", user.RoleDriver, time.Hour)

	assert.NoError(t, RoleAllowed(cl, user.RoleDriver))
	assert.NoError(t, RoleAllowed(cl, user.RoleCustomer, user.RoleDriver))
	assert.ErrorIs(t, RoleAllowed(cl, user.RoleCustomer), ErrRoleForbidden)
}

func TestValidateWSAuth(t *testing.T) {
	mgr := NewManager("test-secret", time.Hour)
	signed, _, err := mgr.IssueUserToken("drv-1", user.RoleDriver)
	require.NoError(t, err)

	frame, err := json.Marshal(ClientAuthMessage{Type: "auth", Token: "Bearer " + signed})
	require.NoError(t, err)

	res, err := ValidateWSAuth(frame, mgr, user.RoleDriver)
	require.NoError(t, err)
	assert.Equal(t, "drv-1", res.Claims.Subject)

	// wrong role for the endpoint
	_, err = ValidateWSAuth(frame, mgr, user.RoleCustomer)
	assert.ErrorIs(t, err, ErrRoleForbidden)

	// missing Bearer wrapping
	frame, err = json.Marshal(ClientAuthMessage{Type: "auth", Token: signed})
	require.NoError(t, err)
	_, err = ValidateWSAuth(frame, mgr, user.RoleDriver)
	assert.ErrorIs(t, err, ErrBadTokenWrap)

	// not an auth frame at all
	_, err = ValidateWSAuth([]byte(`{"type":"location_update"}`), mgr, user.RoleDriver)
	assert.ErrorIs(t, err, ErrBadAuthMsg)
}
