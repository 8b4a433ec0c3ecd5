package routing

import (
	"testing"

	"github.com/localnerve/reportdesk/internal/identity"
	"github.com/localnerve/reportdesk/internal/models"
	"github.com/stretchr/testify/assert"
)

func stateFor(role models.Role) identity.State {
	r := role
	return identity.State{
		Session: &identity.Session{AccessToken: "t", User: identity.Identity{ID: "a"}},
		Role:    &r,
	}
}

func TestResolveRouteTable(t *testing.T) {
	guest := identity.State{}
	admin := stateFor(models.RoleAdmin)
	reviewer := stateFor(models.RoleReviewer)
	noRole := identity.State{Session: &identity.Session{AccessToken: "t"}}

	tests := []struct {
		name     string
		path     string
		fragment string
		state    identity.State
		allow    bool
		redirect string
	}{
		{"guest home", "/", "", guest, false, PathLogin},
		{"admin home", "/", "", admin, false, PathAdmin},
		{"reviewer home", "/", "", reviewer, false, PathApp},
		{"no role home", "/", "", noRole, false, PathApp},
		{"guest app", "/app", "", guest, false, PathLogin},
		{"reviewer app", "/app", "", reviewer, true, ""},
		{"report detail", "/app/report/r1", "", reviewer, true, ""},
		{"report detail guest", "/app/report/r1", "", guest, false, PathLogin},
		{"guest admin", "/admin", "", guest, false, PathLogin},
		{"reviewer admin", "/admin", "", reviewer, false, PathHome},
		{"admin admin", "/admin/", "", admin, true, ""},
		{"guest login", "/login", "", guest, true, ""},
		{"admin login", "/login", "", admin, false, PathAdmin},
		{"reviewer forgot", "/forgot-password", "", reviewer, false, PathHome},
		{"reset with link", "/reset-password", "type=recovery&access_token=x", admin, true, ""},
		{"reset without link", "/reset-password", "", guest, false, PathForgotPassword},
		{"unknown", "/nowhere", "", admin, false, PathHome},
		{"report without id", "/app/report/", "", admin, false, PathHome},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Resolve(tt.path, tt.fragment, tt.state)
			assert.Equal(t, tt.allow, d.Allow)
			assert.Equal(t, tt.redirect, d.Redirect)
			assert.False(t, d.Pending)
		})
	}
}

func TestResolvePendingWhileChecking(t *testing.T) {
	d := Resolve("/admin", "", identity.State{Checking: true})
	assert.True(t, d.Pending)
	assert.False(t, d.Allow)
	assert.Empty(t, d.Redirect)

	// the reset page never waits on the session
	d = Resolve("/reset-password", "#type=recovery&access_token=x", identity.State{Checking: true})
	assert.True(t, d.Allow)
}

func TestRecoverySessionIsNotSignedIn(t *testing.T) {
	state := identity.State{Session: &identity.Session{AccessToken: "t", Recovery: true}}
	d := Resolve("/app", "", state)
	assert.Equal(t, PathLogin, d.Redirect)
}
