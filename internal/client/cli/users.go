package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/jeremy-quicklearner/clautod/internal/client/client"
	"github.com/jeremy-quicklearner/clautod/internal/shared"
)

// Users lists users matching an optional username and level. "*" matches
// anything in either position.
func (a *App) Users(ctx context.Context, args []string) error {
	if len(args) > 2 {
		return usageError("users [username] [level]")
	}
	var filter client.Filter
	if len(args) > 0 {
		filter.Username = args[0]
	}
	if len(args) > 1 {
		filter.PrivilegeLevel = args[1]
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	users, err := a.api.Users(ctx, filter)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Fprintln(a.out, "No users")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USERNAME\tLEVEL\tPRIVILEGE")
	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", u.Username, u.PrivilegeLevel, u.Privilege)
	}
	return tw.Flush()
}

func (a *App) AddUser(ctx context.Context, args []string) error {
	if len(args) > 2 {
		return usageError("adduser [username] [level]")
	}
	username, err := a.argOrPrompt(args, 0, "Username")
	if err != nil {
		return err
	}
	level, err := a.argOrPrompt(args, 1, "Privilege level (public, read, write)")
	if err != nil {
		return err
	}
	password, err := a.newPassword()
	if err != nil {
		return err
	}
	defer shared.WipeByteArray(password)

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	u, err := a.api.AddUser(ctx, username, level, string(password))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Added %s (%s)\n", u.Username, u.Privilege)
	return nil
}

func (a *App) SetLevel(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usageError("setlevel <username> <level>")
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	n, err := a.api.SetUsers(ctx, client.Filter{Username: args[0]}, client.Update{PrivilegeLevel: args[1]})
	if err != nil {
		return err
	}
	return a.reportAffected(n, "Privilege level updated")
}

func (a *App) DelUser(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageError("deluser <username>")
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	n, err := a.api.DeleteUsers(ctx, client.Filter{Username: args[0]})
	if err != nil {
		return err
	}
	return a.reportAffected(n, "Deleted")
}

func (a *App) reportAffected(n int64, what string) error {
	if n == 0 {
		fmt.Fprintln(a.out, "No matching users")
		return nil
	}
	fmt.Fprintf(a.out, "%s: %d user(s)\n", what, n)
	return nil
}
