package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jeremy-quicklearner/clautod/internal/client/client"
	"github.com/jeremy-quicklearner/clautod/internal/shared"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

var errPasswordMismatch = errors.New("passwords do not match")

// Login authenticates as args[0], prompting for the username when absent.
// The password is always read from the terminal and wiped afterwards.
func (a *App) Login(ctx context.Context, args []string) error {
	username, err := a.argOrPrompt(args, 0, "Username")
	if err != nil {
		return err
	}

	password, err := getPassword(a.out, "Password: ")
	if err != nil {
		return err
	}
	defer shared.WipeByteArray(password)

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	s, err := a.api.Login(ctx, username, string(password))
	if err != nil {
		return err
	}

	a.username = s.Username
	fmt.Fprintf(a.out, "Logged in as %s (%s)%s\n", s.Username, s.Privilege, expiry(s))
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	a.username = ""
	if err := a.api.Logout(ctx); err != nil && !errors.Is(err, client.ErrUnauthorized) {
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func (a *App) Whoami(ctx context.Context) error {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	s, err := a.api.Session(ctx)
	if err != nil {
		return err
	}
	if !s.Authenticated {
		a.username = ""
		fmt.Fprintln(a.out, "Not logged in")
		return nil
	}

	a.username = s.Username
	fmt.Fprintf(a.out, "%s (%s)%s\n", s.Username, s.Privilege, expiry(s))
	return nil
}

// Passwd changes the caller's own password, or with a username argument
// resets that user's password.
func (a *App) Passwd(ctx context.Context, args []string) error {
	if len(args) > 1 {
		return usageError("passwd [username]")
	}

	if len(args) == 1 {
		next, err := a.newPassword()
		if err != nil {
			return err
		}
		defer shared.WipeByteArray(next)

		ctx, cancel := a.withTimeout(ctx)
		defer cancel()

		n, err := a.api.SetUsers(ctx, client.Filter{Username: args[0]}, client.Update{Password: string(next)})
		if err != nil {
			return err
		}
		return a.reportAffected(n, "Password updated")
	}

	current, err := getPassword(a.out, "Current password: ")
	if err != nil {
		return err
	}
	defer shared.WipeByteArray(current)

	next, err := a.newPassword()
	if err != nil {
		return err
	}
	defer shared.WipeByteArray(next)

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	if err := a.api.ChangePassword(ctx, string(current), string(next)); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Password changed")
	return nil
}

// newPassword reads a password twice and insists both reads agree.
func (a *App) newPassword() ([]byte, error) {
	first, err := getPassword(a.out, "New password: ")
	if err != nil {
		return nil, err
	}
	second, err := getPassword(a.out, "Repeat password: ")
	if err != nil {
		shared.WipeByteArray(first)
		return nil, err
	}
	defer shared.WipeByteArray(second)

	if string(first) != string(second) {
		shared.WipeByteArray(first)
		return nil, errPasswordMismatch
	}
	return first, nil
}

func (a *App) argOrPrompt(args []string, i int, prompt string) (string, error) {
	if i < len(args) {
		return args[i], nil
	}
	return getSimpleText(a.reader, prompt, a.out)
}

func expiry(s client.Session) string {
	if s.ExpiresAt == nil {
		return ""
	}
	return ", session expires " + s.ExpiresAt.Local().Format(time.RFC3339)
}

type usageError string

func (u usageError) Error() string {
	return "usage: " + string(u)
}
