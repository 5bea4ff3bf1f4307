// Package version holds build metadata injected with -ldflags -X.
package version
