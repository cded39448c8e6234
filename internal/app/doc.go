// Package app wires application dependencies for the CLI.
//
// It builds the identity key material, the sealed ratchet store and the
// session service from Config and exposes them via the Wire struct.
package app
