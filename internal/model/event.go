package model

import "time"

// Event is a ticketed occasion with a fixed seat inventory.  From the
// engine's point of view an event is immutable reference data supplied by
// the catalog; capacity is the number of seats it owns.
//
// Fields:
//  ID          – opaque identifier (UUID in practice).
//  Name        – display name.
//  Description – optional free text.
//  Venue       – where the event takes place.
//  Date        – when the event starts (UTC).
//  Capacity    – number of seats owned by the event.
type Event struct {
    ID          string    `json:"id" yaml:"id"`
    Name        string    `json:"name" yaml:"name"`
    Description string    `json:"description,omitempty" yaml:"description"`
    Venue       string    `json:"venue" yaml:"venue"`
    Date        time.Time `json:"date" yaml:"date"`
    Capacity    int       `json:"capacity" yaml:"capacity"`
}
