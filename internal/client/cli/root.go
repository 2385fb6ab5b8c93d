package cli

import (
	"context"
	"fmt"
)

func (a *App) getStatus() string {
	if a.username == "" {
		return ""
	}
	return fmt.Sprintf(" (%s)", a.username)
}

// Root runs the REPL until the user exits.
func (a *App) Root(ctx context.Context) {
	printlnFn("Welcome to clautod CLI (type 'help' for commands)")

	if a.api.LoggedIn() {
		if err := a.Whoami(ctx); err != nil {
			printlnFn("stored session not usable:", err)
		}
	}

	runREPL(ctx, a, a.getStatus, a.reader)
}
