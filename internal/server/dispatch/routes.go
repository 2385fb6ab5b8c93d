// Package dispatch maps transport-neutral requests onto the access service:
// route lookup, session verification and renewal, then the privilege check.
package dispatch

import (
	"net/http"

	"github.com/jeremy-quicklearner/clautod/internal/server/models"
)

const (
	SessionLogin  = "SessionLogin"
	SessionInfo   = "SessionInfo"
	SessionRenew  = "SessionRenew"
	SessionLogout = "SessionLogout"
	UserGet       = "UserGet"
	UserAdd       = "UserAdd"
	UserSet       = "UserSet"
	UserDelete    = "UserDelete"
	UserPassword  = "UserPassword"
)

const (
	sessionPath  = "/api/session"
	userPath     = "/api/user"
	passwordPath = "/api/user/password"
)

// Route binds a method and path to a handler name and the privilege level a
// caller needs to reach it.
type Route struct {
	Name   string
	Method string
	Path   string
	Level  models.Level
}

var routes = []Route{
	{Name: SessionLogin, Method: http.MethodPost, Path: sessionPath, Level: models.LevelPublic},
	{Name: SessionInfo, Method: http.MethodGet, Path: sessionPath, Level: models.LevelPublic},
	{Name: SessionRenew, Method: http.MethodPatch, Path: sessionPath, Level: models.LevelRead},
	{Name: SessionLogout, Method: http.MethodDelete, Path: sessionPath, Level: models.LevelRead},
	{Name: UserGet, Method: http.MethodGet, Path: userPath, Level: models.LevelRead},
	{Name: UserAdd, Method: http.MethodPost, Path: userPath, Level: models.LevelAdmin},
	{Name: UserSet, Method: http.MethodPatch, Path: userPath, Level: models.LevelAdmin},
	{Name: UserDelete, Method: http.MethodDelete, Path: userPath, Level: models.LevelAdmin},
	{Name: UserPassword, Method: http.MethodPatch, Path: passwordPath, Level: models.LevelRead},
}

// Routes returns a copy of the route table.
func Routes() []Route {
	out := make([]Route, len(routes))
	copy(out, routes)
	return out
}

// RouteByName finds the route a gRPC method name refers to.
func RouteByName(name string) (Route, bool) {
	for _, r := range routes {
		if r.Name == name {
			return r, true
		}
	}
	return Route{}, false
}
