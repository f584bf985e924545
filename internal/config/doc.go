// Package config handles configuration loading, parsing, and validation
// from environment variables and an optional config file. It provides
// type-safe access to the settings the engine, scheduler and HTTP server
// need, keeping configuration details separate from the lifecycle logic.
package config
