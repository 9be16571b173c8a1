// Package trigger is the boundary to an optional external trigger device:
// when one is configured, the acquisition worker sends it a pulse before
// every frame.
package trigger

type Driver interface {
	Open() error
	Close() error
	Pulse() error
}
