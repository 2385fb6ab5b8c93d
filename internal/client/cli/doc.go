// Package cli provides the interactive clautod admin client.
//
// It wires configuration, the gRPC client and an interactive REPL. The
// session token lives in the client; renewed tokens handed back by the
// server replace it transparently.
//
// Commands:
//   - login [username], logout, whoami
//   - users [username] [level]
//   - adduser [username] [level]
//   - setlevel <username> <level>
//   - passwd [username]
//   - deluser <username>
//   - help, exit
//
// The REPL is started via App.Root(ctx), which blocks until the user exits.
package cli
