// Package store persists scheduled alerts so they survive a restart.
//
// Every backend keeps the same single-line format per alert id (see
// EncodeLine), so a malformed entry is reported identically whichever driver
// holds it.
package store
