// Package alert defines the alert record, its lifecycle states and the error
// taxonomy shared by the scheduler, coordinator, store and client packages.
//
// Lifecycle:
//
//	Draft --accepted--> Scheduled --timer fires--> Active
//	Scheduled|Active --delete--> Terminal(Acknowledged)
//	Scheduled|Active --source unregistered--> Terminal(Disabled)
package alert
