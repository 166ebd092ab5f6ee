// Package config reads batchrow settings from .env files and the process environment.
package config

// Config is the read-only view of configuration every component receives.
type Config interface {
	Get(string) string
	GetOrDefault(string, string) string
}
