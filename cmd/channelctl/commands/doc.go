// Package commands defines the channelctl developer CLI.
//
// Commands
//
//   - demo     Run a handshake and message exchange between two in-process parties
//   - inspect  List saved channels or print non-secret metadata of one
//
// # Implementation
//
// The root command parses the shared flags into an app.Config and configures
// logging before any subcommand runs. Subcommands build their own app.Wire
// from that config.
package commands
