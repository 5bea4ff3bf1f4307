// Package config loads alertd.yaml (or a JSON file), validates it and watches
// it for changes. Only the logging section is applied without a restart.
package config
