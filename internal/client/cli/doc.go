// Package cli provides the GophAuth command-line client.
//
// It wires configuration, the local session database and the API client,
// then either runs the single command given on the command line or starts
// an interactive shell with a background connectivity watcher.
//
// Commands:
//   - signup, login, google <id-token>
//   - refresh, logout, passwd
//   - status, help, exit
//
// Passwords are read from the terminal without echo and wiped after use.
package cli
