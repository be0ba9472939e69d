// Package catalog supplies read-only event reference data: which events
// exist and which seats each one owns.  Seat state lives in the ledger; the
// catalog only describes the inventory the ledger is seeded from.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iliyamo/seat-reservation-engine/internal/model"
)

// ErrEventNotFound is returned for unknown event IDs.
var ErrEventNotFound = errors.New("event not found")

// Catalog is implemented by Static and by the MySQL event repository.
type Catalog interface {
	Event(ctx context.Context, id string) (model.Event, error)
	Events(ctx context.Context) ([]model.Event, error)
	// Seats lists the event's seats as available seats with prices.
	Seats(ctx context.Context, eventID string) ([]model.Seat, error)
}

// Static is an in-memory catalog.
type Static struct {
	events map[string]model.Event
	order  []string
	seats  map[string][]model.Seat
}

// NewStatic returns an empty catalog.
func NewStatic() *Static {
	return &Static{
		events: make(map[string]model.Event),
		seats:  make(map[string][]model.Seat),
	}
}

// Add registers an event and its seats.  Capacity is set to the number of
// seats.  Adding an ID twice replaces the earlier entry.
func (s *Static) Add(ev model.Event, seats []model.Seat) {
	if _, ok := s.events[ev.ID]; !ok {
		s.order = append(s.order, ev.ID)
	}
	out := make([]model.Seat, len(seats))
	for i, seat := range seats {
		seat.Ref.EventID = ev.ID
		seat.Status = model.SeatAvailable
		seat.Holder, seat.ReservedUntil, seat.TicketID = "", nil, ""
		out[i] = seat
	}
	ev.Capacity = len(out)
	s.events[ev.ID] = ev
	s.seats[ev.ID] = out
}

func (s *Static) Event(_ context.Context, id string) (model.Event, error) {
	ev, ok := s.events[id]
	if !ok {
		return model.Event{}, ErrEventNotFound
	}
	return ev, nil
}

// Events lists events ordered by date, then by the order they were added.
func (s *Static) Events(_ context.Context) ([]model.Event, error) {
	out := make([]model.Event, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.events[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Static) Seats(_ context.Context, eventID string) ([]model.Seat, error) {
	seats, ok := s.seats[eventID]
	if !ok {
		return nil, ErrEventNotFound
	}
	return append([]model.Seat(nil), seats...), nil
}

// file is the YAML layout of a seed catalog.
type file struct {
	Events []eventEntry `yaml:"events"`
}

type eventEntry struct {
	ID          string      `yaml:"id"`
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Venue       string      `yaml:"venue"`
	Date        time.Time   `yaml:"date"`
	Capacity    int         `yaml:"capacity"`
	SeatsPerRow int         `yaml:"seats_per_row"`
	PriceCents  uint32      `yaml:"price_cents"`
	Seats       []seatEntry `yaml:"seats"`
}

type seatEntry struct {
	ID         string  `yaml:"id"`
	Row        string  `yaml:"row"`
	Number     uint32  `yaml:"number"`
	PriceCents *uint32 `yaml:"price_cents"`
}

// LoadFile reads a YAML seed catalog from path.
func LoadFile(path string) (*Static, error) {
	const op = "catalog.LoadFile"

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer f.Close()

	c, err := LoadYAML(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

// LoadYAML decodes a seed catalog.  An event without an explicit seat list
// gets capacity seats laid out seats_per_row to a row (default 10), rows
// labelled A..Z, AA, AB and so on, seat IDs like "C7".
func LoadYAML(r io.Reader) (*Static, error) {
	const op = "catalog.LoadYAML"

	var doc file
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	c := NewStatic()
	for i, e := range doc.Events {
		if e.ID == "" {
			return nil, fmt.Errorf("%s: event #%d has no id", op, i)
		}
		if _, dup := c.events[e.ID]; dup {
			return nil, fmt.Errorf("%s: duplicate event id %q", op, e.ID)
		}

		var seats []model.Seat
		if len(e.Seats) > 0 {
			seen := make(map[string]bool, len(e.Seats))
			for _, se := range e.Seats {
				id := se.ID
				if id == "" {
					id = fmt.Sprintf("%s%d", se.Row, se.Number)
				}
				if id == "" || seen[id] {
					return nil, fmt.Errorf("%s: event %q: missing or duplicate seat id %q", op, e.ID, id)
				}
				seen[id] = true
				price := e.PriceCents
				if se.PriceCents != nil {
					price = *se.PriceCents
				}
				seats = append(seats, model.Seat{
					Ref:        model.SeatRef{EventID: e.ID, SeatID: id},
					Row:        se.Row,
					Number:     se.Number,
					PriceCents: price,
				})
			}
		} else {
			if e.Capacity <= 0 {
				return nil, fmt.Errorf("%s: event %q needs a capacity or a seat list", op, e.ID)
			}
			seats = GenerateSeats(e.ID, e.Capacity, e.SeatsPerRow, e.PriceCents)
		}

		c.Add(model.Event{
			ID:          e.ID,
			Name:        e.Name,
			Description: e.Description,
			Venue:       e.Venue,
			Date:        e.Date.UTC(),
		}, seats)
	}
	return c, nil
}

// GenerateSeats lays out capacity seats in rows of perRow.
func GenerateSeats(eventID string, capacity, perRow int, priceCents uint32) []model.Seat {
	if perRow <= 0 {
		perRow = 10
	}
	seats := make([]model.Seat, 0, capacity)
	for i := 0; i < capacity; i++ {
		row := RowLabel(i / perRow)
		num := uint32(i%perRow + 1)
		seats = append(seats, model.Seat{
			Ref:        model.SeatRef{EventID: eventID, SeatID: fmt.Sprintf("%s%d", row, num)},
			Row:        row,
			Number:     num,
			Status:     model.SeatAvailable,
			PriceCents: priceCents,
		})
	}
	return seats
}

// RowLabel converts a zero-based row index to A, B, ... Z, AA, AB ...
func RowLabel(i int) string {
	if i < 0 {
		return ""
	}
	var res []byte
	for {
		res = append(res, byte('A'+i%26))
		i = i/26 - 1
		if i < 0 {
			break
		}
	}
	for j, k := 0, len(res)-1; j < k; j, k = j+1, k-1 {
		res[j], res[k] = res[k], res[j]
	}
	return string(res)
}
