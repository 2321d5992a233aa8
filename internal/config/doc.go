// Package config provides configuration loading and validation for this service
// applications.
//
// It uses Viper to load configuration from files and environment variables,
// supporting multiple formats (YAML, JSON, TOML) and environment-specific
// overrides.
//
// # Usage
//
//	var cfg MyConfig
//	err := config.LoadConfig("my-service", &cfg)
//
// Environment variables override file values without any prefix: the
// variable name is lower-cased and its underscores are read as key
// separators (e.g., DATABASE_HOST sets database.host).
package config
