// Package config holds linkprobe's run configuration: the flat Config built
// from CLI flags, the optional YAML site file with per-host cookies, headers
// and crawl patterns, and environment overrides read from .env files.
package config
