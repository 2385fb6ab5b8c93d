package cli

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremy-quicklearner/clautod/internal/client/client"
	"github.com/jeremy-quicklearner/clautod/internal/client/config"
)

type fakeClient struct {
	loggedIn bool
	closed   bool

	session client.Session
	users   []client.User
	added   client.User
	count   int64
	err     error

	gotLogin  [2]string
	gotFilter client.Filter
	gotUpdate client.Update
	gotAdd    [3]string
	gotChange [2]string
}

func (f *fakeClient) Close() error   { f.closed = true; return nil }
func (f *fakeClient) LoggedIn() bool { return f.loggedIn }

func (f *fakeClient) Login(_ context.Context, username, password string) (client.Session, error) {
	f.gotLogin = [2]string{username, password}
	if f.err != nil {
		return client.Session{}, f.err
	}
	f.loggedIn = true
	return f.session, nil
}

func (f *fakeClient) Logout(context.Context) error {
	f.loggedIn = false
	return f.err
}

func (f *fakeClient) Session(context.Context) (client.Session, error) { return f.session, f.err }
func (f *fakeClient) Renew(context.Context) (client.Session, error)   { return f.session, f.err }

func (f *fakeClient) Users(_ context.Context, filter client.Filter) ([]client.User, error) {
	f.gotFilter = filter
	return f.users, f.err
}

func (f *fakeClient) AddUser(_ context.Context, username, level, password string) (client.User, error) {
	f.gotAdd = [3]string{username, level, password}
	return f.added, f.err
}

func (f *fakeClient) SetUsers(_ context.Context, filter client.Filter, update client.Update) (int64, error) {
	f.gotFilter, f.gotUpdate = filter, update
	return f.count, f.err
}

func (f *fakeClient) DeleteUsers(_ context.Context, filter client.Filter) (int64, error) {
	f.gotFilter = filter
	return f.count, f.err
}

func (f *fakeClient) ChangePassword(_ context.Context, current, next string) error {
	f.gotChange = [2]string{current, next}
	return f.err
}

func newTestApp(t *testing.T, api *fakeClient, input string) (*App, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return &App{
		config: &config.Config{Timeout: time.Second},
		api:    api,
		reader: bufio.NewReader(strings.NewReader(input)),
		out:    &out,
	}, &out
}

// stubPasswords feeds the given answers to successive password prompts.
func stubPasswords(t *testing.T, answers ...string) {
	t.Helper()
	orig := getPassword
	getPassword = func(io.Writer, string) ([]byte, error) {
		if len(answers) == 0 {
			return nil, io.EOF
		}
		pw := []byte(answers[0])
		answers = answers[1:]
		return pw, nil
	}
	t.Cleanup(func() { getPassword = orig })
}

func TestLogin(t *testing.T) {
	stubPasswords(t, "pw")
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	api := &fakeClient{session: client.Session{Authenticated: true, Username: "bob", Privilege: "write", ExpiresAt: &exp}}
	a, out := newTestApp(t, api, "bob\n")

	require.NoError(t, a.Login(context.Background(), nil))
	assert.Equal(t, [2]string{"bob", "pw"}, api.gotLogin)
	assert.Equal(t, "bob", a.username)
	assert.Equal(t, " (bob)", a.getStatus())
	assert.Contains(t, out.String(), "Logged in as bob (write), session expires")
	assert.True(t, a.isLoggedIn())
}

func TestLogin_Failure(t *testing.T) {
	stubPasswords(t, "bad")
	api := &fakeClient{err: client.ErrUnauthorized}
	a, _ := newTestApp(t, api, "")

	err := a.Login(context.Background(), []string{"bob"})
	require.ErrorIs(t, err, client.ErrUnauthorized)
	assert.Empty(t, a.username)
}

func TestLogout(t *testing.T) {
	api := &fakeClient{loggedIn: true}
	a, out := newTestApp(t, api, "")
	a.username = "bob"

	require.NoError(t, a.Logout(context.Background()))
	assert.Empty(t, a.username)
	assert.Contains(t, out.String(), "Logged out")

	api.err = client.ErrUnauthorized
	require.NoError(t, a.Logout(context.Background()), "an already invalid session still logs out")

	api.err = client.ErrUnavailable
	require.ErrorIs(t, a.Logout(context.Background()), client.ErrUnavailable)
}

func TestWhoami(t *testing.T) {
	api := &fakeClient{session: client.Session{Authenticated: true, Username: "admin", Privilege: "admin"}}
	a, out := newTestApp(t, api, "")

	require.NoError(t, a.Whoami(context.Background()))
	assert.Equal(t, "admin (admin)\n", out.String())
	assert.Equal(t, "admin", a.username)

	out.Reset()
	api.session = client.Session{}
	require.NoError(t, a.Whoami(context.Background()))
	assert.Equal(t, "Not logged in\n", out.String())
	assert.Empty(t, a.username)
}

func TestUsers(t *testing.T) {
	api := &fakeClient{users: []client.User{
		{Username: "admin", PrivilegeLevel: 3, Privilege: "admin"},
		{Username: "bob", PrivilegeLevel: 2, Privilege: "write"},
	}}
	a, out := newTestApp(t, api, "")

	require.NoError(t, a.Users(context.Background(), []string{"*", "write"}))
	assert.Equal(t, client.Filter{Username: "*", PrivilegeLevel: "write"}, api.gotFilter)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"USERNAME", "LEVEL", "PRIVILEGE"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"bob", "2", "write"}, strings.Fields(lines[2]))

	out.Reset()
	api.users = nil
	require.NoError(t, a.Users(context.Background(), nil))
	assert.Equal(t, "No users\n", out.String())

	var usage usageError
	require.ErrorAs(t, a.Users(context.Background(), []string{"a", "b", "c"}), &usage)
}

func TestAddUser(t *testing.T) {
	stubPasswords(t, "pw", "pw")
	api := &fakeClient{added: client.User{Username: "carol", PrivilegeLevel: 1, Privilege: "read"}}
	a, out := newTestApp(t, api, "read\n")

	require.NoError(t, a.AddUser(context.Background(), []string{"carol"}))
	assert.Equal(t, [3]string{"carol", "read", "pw"}, api.gotAdd)
	assert.Contains(t, out.String(), "Added carol (read)")
}

func TestAddUser_PasswordMismatch(t *testing.T) {
	stubPasswords(t, "one", "two")
	api := &fakeClient{}
	a, _ := newTestApp(t, api, "")

	err := a.AddUser(context.Background(), []string{"carol", "read"})
	require.ErrorIs(t, err, errPasswordMismatch)
	assert.Empty(t, api.gotAdd[0], "nothing should reach the server")
}

func TestSetLevelAndDelUser(t *testing.T) {
	api := &fakeClient{count: 1}
	a, out := newTestApp(t, api, "")

	require.NoError(t, a.SetLevel(context.Background(), []string{"bob", "read"}))
	assert.Equal(t, client.Filter{Username: "bob"}, api.gotFilter)
	assert.Equal(t, client.Update{PrivilegeLevel: "read"}, api.gotUpdate)
	assert.Contains(t, out.String(), "Privilege level updated: 1 user(s)")

	out.Reset()
	api.count = 0
	require.NoError(t, a.DelUser(context.Background(), []string{"ghost"}))
	assert.Equal(t, client.Filter{Username: "ghost"}, api.gotFilter)
	assert.Equal(t, "No matching users\n", out.String())

	var usage usageError
	require.ErrorAs(t, a.SetLevel(context.Background(), []string{"bob"}), &usage)
	require.ErrorAs(t, a.DelUser(context.Background(), nil), &usage)

	api.err = &client.RemoteError{Message: "illegal operation"}
	require.Error(t, a.DelUser(context.Background(), []string{"admin"}))
}

func TestPasswd_Own(t *testing.T) {
	stubPasswords(t, "old", "new", "new")
	api := &fakeClient{}
	a, out := newTestApp(t, api, "")

	require.NoError(t, a.Passwd(context.Background(), nil))
	assert.Equal(t, [2]string{"old", "new"}, api.gotChange)
	assert.Equal(t, "Password changed\n", out.String())
}

func TestPasswd_OtherUser(t *testing.T) {
	stubPasswords(t, "new", "new")
	api := &fakeClient{count: 1}
	a, out := newTestApp(t, api, "")

	require.NoError(t, a.Passwd(context.Background(), []string{"bob"}))
	assert.Equal(t, client.Filter{Username: "bob"}, api.gotFilter)
	assert.Equal(t, client.Update{Password: "new"}, api.gotUpdate)
	assert.Contains(t, out.String(), "Password updated: 1 user(s)")
}

func TestPasswd_Errors(t *testing.T) {
	stubPasswords(t, "old")
	api := &fakeClient{}
	a, _ := newTestApp(t, api, "")

	require.ErrorIs(t, a.Passwd(context.Background(), nil), io.EOF)

	var usage usageError
	require.ErrorAs(t, a.Passwd(context.Background(), []string{"a", "b"}), &usage)
	assert.Equal(t, "usage: passwd [username]", usage.Error())
}

func TestRoot_ChecksStoredSession(t *testing.T) {
	lines := capturePrintln(t)
	api := &fakeClient{loggedIn: true, err: client.ErrUnauthorized}
	a, _ := newTestApp(t, api, "exit\n")

	a.Root(context.Background())

	out := strings.Join(*lines, "\n")
	assert.Contains(t, out, "stored session not usable: unauthorized")
	assert.True(t, strings.HasSuffix(out, "Bye!"))
}

func TestRun_ClosesClient(t *testing.T) {
	capturePrintln(t)
	api := &fakeClient{}
	a, _ := newTestApp(t, api, "")

	a.Run(context.Background())
	assert.True(t, api.closed)
}
