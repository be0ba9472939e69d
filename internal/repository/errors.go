// Package repository holds the MySQL side of the service: the event
// catalog (events, event_seats) and the record of completed sales
// (tickets).  Live seat state never touches MySQL; the ledger owns it.
package repository

import "errors"

// ErrConflict is returned when a write collides with an existing row that
// it must not overwrite, such as a second ticket for an already sold seat.
var ErrConflict = errors.New("conflict")
