// Package routing decides where a caller may go given its auth state.
package routing

import (
	"strings"

	"github.com/localnerve/reportdesk/internal/identity"
)

// Paths of the client route table
const (
	PathHome           = "/"
	PathLogin          = "/login"
	PathForgotPassword = "/forgot-password"
	PathResetPassword  = "/reset-password"
	PathAdmin          = "/admin"
	PathApp            = "/app"
	PathReportPrefix   = "/app/report/"
)

// Guard is the kind of protection a route has
type Guard int

const (
	GuardNone Guard = iota
	GuardGuest
	GuardSession
	GuardAdmin
	GuardRoleHome
)

// Decision is the outcome of resolving a path. Pending means the session is still
// being checked and nothing should render yet.
type Decision struct {
	Allow    bool   `json:"allow"`
	Redirect string `json:"redirect,omitempty"`
	Pending  bool   `json:"pending,omitempty"`
	Guard    string `json:"guard"`
}

var guardNames = map[Guard]string{
	GuardNone:     "none",
	GuardGuest:    "guest",
	GuardSession:  "session",
	GuardAdmin:    "admin",
	GuardRoleHome: "role-home",
}

func (g Guard) String() string {
	return guardNames[g]
}

// Match finds the guard for a path; ok is false for unknown paths
func Match(path string) (Guard, bool) {
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	switch path {
	case PathHome:
		return GuardRoleHome, true
	case PathLogin, PathForgotPassword:
		return GuardGuest, true
	case PathResetPassword:
		return GuardNone, true
	case PathAdmin:
		return GuardAdmin, true
	case PathApp:
		return GuardSession, true
	}
	if id := strings.TrimPrefix(path, PathReportPrefix); id != path && id != "" && !strings.Contains(id, "/") {
		return GuardSession, true
	}
	return GuardNone, false
}

func allow(g Guard) Decision {
	return Decision{Allow: true, Guard: g.String()}
}

func redirect(g Guard, to string) Decision {
	return Decision{Redirect: to, Guard: g.String()}
}

// Resolve applies the route guards
func Resolve(path, fragment string, state identity.State) Decision {
	guard, ok := Match(path)
	if !ok {
		return redirect(GuardNone, PathHome)
	}
	if guard == GuardNone {
		// a reset page opened without its link fragment has nothing to work with
		if strings.TrimPrefix(fragment, "#") == "" {
			return redirect(guard, PathForgotPassword)
		}
		return allow(guard)
	}
	if state.Checking {
		return Decision{Pending: true, Guard: guard.String()}
	}

	signedIn := state.SignedIn()
	switch guard {
	case GuardGuest:
		if signedIn {
			if state.IsAdmin() {
				return redirect(guard, PathAdmin)
			}
			return redirect(guard, PathHome)
		}
		return allow(guard)

	case GuardSession:
		if !signedIn {
			return redirect(guard, PathLogin)
		}
		return allow(guard)

	case GuardAdmin:
		if !signedIn {
			return redirect(guard, PathLogin)
		}
		if !state.IsAdmin() {
			return redirect(guard, PathHome)
		}
		return allow(guard)

	case GuardRoleHome:
		if !signedIn {
			return redirect(guard, PathLogin)
		}
		if state.IsAdmin() {
			return redirect(guard, PathAdmin)
		}
		return redirect(guard, PathApp)
	}
	return allow(guard)
}
