// Package normalize turns raw bibliographic metadata into canonical values:
// author lists, sanitized titles, deterministic filenames and Harvard-style
// reference lines.
//
// Every function here is pure and total. Malformed input never produces an
// error; it degrades to a documented fallback ("Unknown", "Untitled", "n.d.",
// a truncated title) that later stages can flag for review. Nothing in this
// package reads configuration or touches the filesystem; limits are passed in
// as parameters.
package normalize
