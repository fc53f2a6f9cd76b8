// Package cli provides the interactive Daybook command-line client.
//
// It wires configuration, local storage, the backend API client and an
// interactive REPL that works online and offline. Typical flow: restore or
// prompt for a session, start the background connectivity watcher and the
// sync workers, then execute user commands.
//
// Key features:
//   - Register / Login / Logout
//   - Add, list, show and delete journal entries
//   - Attach images to an entry
//   - Manual sync plus automatic drains on reconnect
//   - Generated writing prompts
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
