// Package config loads the vclient configuration.
//
// Values are resolved in this order, later sources winning:
//
//  1. Built-in defaults
//  2. The YAML file, if one is given
//  3. VCLIENT_* environment variables
//  4. Overrides supplied by the caller (command-line flags)
//
// The result is validated before it is returned.
package config
