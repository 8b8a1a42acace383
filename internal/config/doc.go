// Package config loads, normalizes, and validates bibkeep configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads an optional .env file, and honours
// environment fallbacks such as BIBKEEP_LIBRARY_ROOT. Every directory the
// library uses (inbox, reference tree, quarantine, proposals) is derived from
// the library root unless overridden, so a single knob relocates the whole
// library.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, canonical log formats, and clear validation errors.
package config
