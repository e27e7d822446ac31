// Package config handles loading and parsing of configuration from YAML files
// and environment variables. It defines the gateway configuration structure
// including server settings, the named upstream connections, client TLS
// material and the optional connection health probe.
package config
