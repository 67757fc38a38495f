// Package config loads the application configuration from layered JSON
// files with environment variable overrides. Defaults come first, each
// file layer is deep-merged over them in order, and RXCRAFT_* environment
// variables win over everything. Validation is opt-in on the loader so
// tooling can inspect partial configurations.
package config
