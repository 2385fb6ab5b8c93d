package cli

import (
	"bufio"
	"context"
	"io"
	"os"

	"github.com/jeremy-quicklearner/clautod/internal/client/client"
	"github.com/jeremy-quicklearner/clautod/internal/client/config"
)

type App struct {
	config   *config.Config
	api      client.Client
	reader   *bufio.Reader
	out      io.Writer
	username string
}

func NewApp(c *config.Config) (*App, error) {
	apiClient, err := client.NewGRPCClient(client.Options{
		Addr:      c.ServerAddr,
		CACert:    c.CACert,
		TokenFile: c.TokenFile,
	})
	if err != nil {
		return nil, err
	}

	return &App{config: c, api: apiClient, reader: bufio.NewReader(os.Stdin), out: os.Stdout}, nil
}

func (a *App) Run(ctx context.Context) {
	defer a.api.Close()
	a.Root(ctx)
}

func (a *App) isLoggedIn() bool {
	return a.api.LoggedIn()
}

func (a *App) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.config.Timeout)
}
