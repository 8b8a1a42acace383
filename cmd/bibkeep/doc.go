// Package main hosts the bibkeep CLI entrypoint and command graph.
//
// Commands resolve configuration once through commandContext, take the store
// lock before mutating anything and print a summary as a table or, with
// --json, as a JSON document on stdout. Logs go to stderr.
//
// Keep this package thin: behaviour lives in the internal packages and is
// surfaced here as commands and flags.
package main
