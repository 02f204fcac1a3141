// Package config owns ircctl configuration sources.
//
// Ownership boundary:
// - TOML file overlays onto service defaults (only keys that are defined)
// - IRCCTL_* environment overrides
// - whole-config validation and the example template
//
// Precedence, lowest first: defaults, file, environment, command line.
package config
