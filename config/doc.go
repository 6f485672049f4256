// Package config loads parstream configuration from YAML files, .env files
// and environment variables using Viper.
//
// # Usage
//
//	var cfg AppConfig
//	err := config.LoadConfig("parstream", &cfg)
//
// Environment variables override file values. Keys are the mapstructure
// paths of the target struct, upper-cased, joined with underscores and
// prefixed with PARSTREAM_ (e.g. PARSTREAM_STREAM_CONCURRENCY_LIMIT).
package config
