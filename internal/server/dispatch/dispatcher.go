package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jeremy-quicklearner/clautod/internal/common"
	"github.com/jeremy-quicklearner/clautod/internal/logging"
	"github.com/jeremy-quicklearner/clautod/internal/server/auth"
	"github.com/jeremy-quicklearner/clautod/internal/server/models"
	"github.com/jeremy-quicklearner/clautod/internal/wildcard"
)

// Request is what a transport hands over: method and path pick the route,
// Params is the flat parameter map and Token the session token, if any.
type Request struct {
	Method string
	Path   string
	Params map[string]string
	Token  string
	Peer   string
}

// Response carries the payload to serialize. Token is set when a session was
// opened or renewed, ClearToken when it was closed.
type Response struct {
	Payload    any
	Token      string
	ClearToken bool
}

// Access is the user logic the dispatcher drives.
type Access interface {
	Authenticate(ctx context.Context, username, password string) (models.User, error)
	Get(ctx context.Context, filter models.UserFilter) ([]models.User, error)
	Add(ctx context.Context, spec models.UserSpec) (models.User, error)
	Set(ctx context.Context, filter, updates models.UserFilter) (int64, error)
	Delete(ctx context.Context, filter models.UserFilter) (int64, error)
	ChangeOwnPassword(ctx context.Context, username, current, next string) error
}

// Tokens issues and checks session tokens.
type Tokens interface {
	Issue(username string, level models.Level) (string, auth.Claims, error)
	Verify(ctx context.Context, token string) (auth.Claims, error)
	Renew(ctx context.Context, token string) (string, auth.Claims, error)
	Revoke(ctx context.Context, token string) error
}

type Options struct {
	// RenewWindow is how close to expiry a token gets renewed on use.
	RenewWindow time.Duration
	Now         func() time.Time
	Logger      logging.Logger
}

type Dispatcher struct {
	access      Access
	tokens      Tokens
	renewWindow time.Duration
	now         func() time.Time
	logger      logging.Logger
}

func New(access Access, tokens Tokens, opts Options) *Dispatcher {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	return &Dispatcher{
		access:      access,
		tokens:      tokens,
		renewWindow: opts.RenewWindow,
		now:         opts.Now,
		logger:      opts.Logger.With("module", "dispatch"),
	}
}

// call is one routed request together with the verified identity, if any.
type call struct {
	route    Route
	params   params
	token    string
	identity *auth.Claims
}

// Lookup resolves method and path to a route.
func Lookup(method, path string) (Route, error) {
	pathKnown := false
	for _, r := range routes {
		if r.Path != path {
			continue
		}
		pathKnown = true
		if r.Method == method {
			return r, nil
		}
	}
	if pathKnown {
		return Route{}, fmt.Errorf("%w: %s %s", common.ErrMethodNotAllowed, method, path)
	}
	return Route{}, fmt.Errorf("%w: %s", common.ErrNotFound, path)
}

// Dispatch runs req through lookup, session checks and the handler.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Response, error) {
	route, err := Lookup(req.Method, req.Path)
	if err != nil {
		return Response{}, err
	}
	return d.Call(ctx, route, req)
}

// Call runs req against a route that is already resolved.
func (d *Dispatcher) Call(ctx context.Context, route Route, req Request) (Response, error) {
	c := call{route: route, params: params(req.Params), token: req.Token}
	if c.params == nil {
		c.params = params{}
	}

	identity, err := d.identify(ctx, route, req.Token)
	if err != nil {
		return Response{}, err
	}
	c.identity = identity

	if route.Level > models.LevelPublic {
		if identity == nil {
			return Response{}, fmt.Errorf("%w: %s requires a session", common.ErrorUnauthorized, route.Name)
		}
		if identity.PrivilegeLevel < route.Level {
			d.logger.Info(ctx, "privilege too low", "route", route.Name, "username", identity.Username,
				"have", identity.PrivilegeLevel, "want", route.Level, "peer", req.Peer)
			return Response{}, fmt.Errorf("%w: %s requires %s", common.ErrForbidden, route.Name, route.Level)
		}
	}

	resp, err := d.handle(ctx, c)
	if err != nil {
		return Response{}, err
	}

	// renewal follows a successful call; a failed call keeps the old token
	if identity != nil && d.dueForRenewal(route, identity) {
		token, _, err := d.tokens.Renew(ctx, req.Token)
		if err != nil {
			d.logger.Debug(ctx, "transparent renewal skipped", "username", identity.Username, "error", err)
		} else {
			resp.Token = token
		}
	}
	return resp, nil
}

// identify verifies token. On public routes a bad token counts as no
// identity; elsewhere it is the caller's error.
func (d *Dispatcher) identify(ctx context.Context, route Route, token string) (*auth.Claims, error) {
	claims, err := d.tokens.Verify(ctx, token)
	switch {
	case err == nil:
		return &claims, nil
	case errors.Is(err, auth.ErrNoToken):
		return nil, nil
	case route.Level == models.LevelPublic && errors.Is(err, common.ErrorUnauthorized):
		return nil, nil
	default:
		return nil, err
	}
}

func (d *Dispatcher) dueForRenewal(route Route, c *auth.Claims) bool {
	switch route.Name {
	case SessionLogin, SessionRenew, SessionLogout:
		return false
	}
	if d.renewWindow <= 0 || c.ExpiresAt == nil {
		return false
	}
	return c.ExpiresAt.Time.Sub(d.now()) < d.renewWindow
}

func (d *Dispatcher) handle(ctx context.Context, c call) (Response, error) {
	switch c.route.Name {
	case SessionLogin:
		return d.sessionLogin(ctx, c)
	case SessionInfo:
		return d.sessionInfo(c)
	case SessionRenew:
		return d.sessionRenew(ctx, c)
	case SessionLogout:
		return d.sessionLogout(ctx, c)
	case UserGet:
		return d.userGet(ctx, c)
	case UserAdd:
		return d.userAdd(ctx, c)
	case UserSet:
		return d.userSet(ctx, c)
	case UserDelete:
		return d.userDelete(ctx, c)
	case UserPassword:
		return d.userPassword(ctx, c)
	}
	return Response{}, fmt.Errorf("%w: no handler for route %s", common.ErrorInternal, c.route.Name)
}

func (d *Dispatcher) sessionLogin(ctx context.Context, c call) (Response, error) {
	if err := c.params.only(loginParams); err != nil {
		return Response{}, err
	}
	username, err := c.params.required(paramUsername)
	if err != nil {
		return Response{}, err
	}
	password, err := c.params.required(paramPassword)
	if err != nil {
		return Response{}, err
	}

	user, err := d.access.Authenticate(ctx, username, password)
	if err != nil {
		d.logger.Info(ctx, "login failed", "username", username, "error", err)
		return Response{}, err
	}
	token, claims, err := d.tokens.Issue(user.Username(), user.PrivilegeLevel())
	if err != nil {
		return Response{}, err
	}

	d.logger.Info(ctx, "login", "user", user)
	return Response{Payload: sessionOf(claims, token), Token: token}, nil
}

func (d *Dispatcher) sessionInfo(c call) (Response, error) {
	if err := c.params.only(); err != nil {
		return Response{}, err
	}
	if c.identity == nil {
		return Response{Payload: SessionView{Authenticated: false}}, nil
	}
	return Response{Payload: sessionOf(*c.identity, "")}, nil
}

func (d *Dispatcher) sessionRenew(ctx context.Context, c call) (Response, error) {
	if err := c.params.only(); err != nil {
		return Response{}, err
	}
	token, claims, err := d.tokens.Renew(ctx, c.token)
	if err != nil {
		return Response{}, err
	}
	return Response{Payload: sessionOf(claims, token), Token: token}, nil
}

func (d *Dispatcher) sessionLogout(ctx context.Context, c call) (Response, error) {
	if err := c.params.only(); err != nil {
		return Response{}, err
	}
	if err := d.tokens.Revoke(ctx, c.token); err != nil {
		return Response{}, err
	}
	d.logger.Info(ctx, "logout", "username", c.identity.Username)
	return Response{Payload: SessionView{Authenticated: false}, ClearToken: true}, nil
}

func (d *Dispatcher) userGet(ctx context.Context, c call) (Response, error) {
	if err := c.params.only(filterParams); err != nil {
		return Response{}, err
	}
	filter, err := c.params.filter()
	if err != nil {
		return Response{}, err
	}
	users, err := d.access.Get(ctx, filter)
	if err != nil {
		return Response{}, err
	}
	return Response{Payload: viewsOf(users)}, nil
}

func (d *Dispatcher) userAdd(ctx context.Context, c call) (Response, error) {
	if err := c.params.only(addParams); err != nil {
		return Response{}, err
	}
	username, err := c.params.required(paramUsername)
	if err != nil {
		return Response{}, err
	}
	raw, err := c.params.required(paramPrivilegeLevel)
	if err != nil {
		return Response{}, err
	}
	level, err := models.ParseLevel(raw)
	if err != nil {
		return Response{}, err
	}
	password, err := c.params.required(paramPassword)
	if err != nil {
		return Response{}, err
	}

	user, err := d.access.Add(ctx, models.UserSpec{Username: username, PrivilegeLevel: level, Password: wildcard.Of(password)})
	if err != nil {
		return Response{}, err
	}
	return Response{Payload: viewOf(user)}, nil
}

func (d *Dispatcher) userSet(ctx context.Context, c call) (Response, error) {
	if err := c.params.only(filterParams, updateParams); err != nil {
		return Response{}, err
	}
	filter, err := c.params.filter()
	if err != nil {
		return Response{}, err
	}
	updates, err := c.params.updates()
	if err != nil {
		return Response{}, err
	}
	n, err := d.access.Set(ctx, filter, updates)
	if err != nil {
		return Response{}, err
	}
	return Response{Payload: CountView{Affected: n}}, nil
}

func (d *Dispatcher) userDelete(ctx context.Context, c call) (Response, error) {
	if err := c.params.only(filterParams); err != nil {
		return Response{}, err
	}
	filter, err := c.params.filter()
	if err != nil {
		return Response{}, err
	}
	n, err := d.access.Delete(ctx, filter)
	if err != nil {
		return Response{}, err
	}
	return Response{Payload: CountView{Affected: n}}, nil
}

func (d *Dispatcher) userPassword(ctx context.Context, c call) (Response, error) {
	if err := c.params.only(passwordParams); err != nil {
		return Response{}, err
	}
	current, err := c.params.required(paramPassword)
	if err != nil {
		return Response{}, err
	}
	next, err := c.params.required(paramNewPassword)
	if err != nil {
		return Response{}, err
	}
	if err := d.access.ChangeOwnPassword(ctx, c.identity.Username, current, next); err != nil {
		return Response{}, err
	}
	return Response{Payload: CountView{Affected: 1}}, nil
}
