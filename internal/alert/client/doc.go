// Package client is the facade other subsystems use to schedule, cancel and
// observe alerts. It owns source registrations, observers and the in-memory
// record list, persists every accepted alert and restores them at startup.
//
// All client state lives on one task queue. Requests travel to the
// coordinator task and come back as posts, so AddAlert and DeleteAlert return
// before the outcome is known.
package client
