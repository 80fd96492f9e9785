// Package cli provides the interactive artforge command-line client.
//
// It wires configuration, local storage, the image API client, the
// entitlement gate and the generation service, and runs a REPL on top of
// them. Typical flow: pick a source image, type a prompt, generate, save.
//
// Key features:
//   - source / prompt / generate / create / reset
//   - status, with live progress printed while a generation runs
//   - history, show, delete, clear
//   - plan, buy, restore
//
// Build assembles an App from a Config; App.Run blocks until the user exits.
package cli
