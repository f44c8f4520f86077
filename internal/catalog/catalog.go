// Package catalog describes bookable flights and hotels. Offers and their
// units are read-only for the booking flow.
package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/robertarktes/travel-reservations/internal/domain"
)

type Airport struct {
	Code string `json:"code" yaml:"code" bson:"code"`
	City string `json:"city" yaml:"city" bson:"city"`
}

// FlightOffer is one flight number on one departure date.
type FlightOffer struct {
	ID           string                 `json:"id"`
	FlightNumber string                 `json:"flight_number"`
	Airline      string                 `json:"airline"`
	From         Airport                `json:"from"`
	To           Airport                `json:"to"`
	Departure    time.Time              `json:"departure"`
	Arrival      time.Time              `json:"arrival"`
	Seats        []domain.InventoryUnit `json:"seats"`
}

// Window is the day the flight occupies its seats.
func (f FlightOffer) Window() domain.Window {
	return domain.NewWindow(f.Departure, f.Departure)
}

func (f FlightOffer) Departed(now time.Time) bool {
	return !f.Departure.After(now)
}

func (f FlightOffer) Seat(id string) (domain.InventoryUnit, bool) {
	return findUnit(f.Seats, id)
}

type HotelOffer struct {
	ID      string                 `json:"id"`
	Slug    string                 `json:"slug"`
	Name    string                 `json:"name"`
	City    string                 `json:"city"`
	Address string                 `json:"address"`
	Stars   int                    `json:"stars"`
	Rooms   []domain.InventoryUnit `json:"rooms"`
}

func (h HotelOffer) Room(id string) (domain.InventoryUnit, bool) {
	return findUnit(h.Rooms, id)
}

type City struct {
	Code    string `json:"iata_code" yaml:"iata_code" bson:"iata_code"`
	Name    string `json:"name" yaml:"name" bson:"name"`
	City    string `json:"city" yaml:"city" bson:"city"`
	Country string `json:"country" yaml:"country" bson:"country"`
	Type    string `json:"type" yaml:"type" bson:"type"`
}

func (c City) Matches(q string) bool {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return true
	}
	for _, s := range []string{c.Code, c.Name, c.City, c.Country} {
		if strings.Contains(strings.ToLower(s), q) {
			return true
		}
	}
	return false
}

type FlightQuery struct {
	From       string
	To         string
	Date       time.Time
	Class      string
	Passengers int
}

// Matches reports whether f serves the route and date and has enough seats of
// the requested class. Holds are not considered here.
func (q FlightQuery) Matches(f FlightOffer) bool {
	if q.From != "" && !strings.EqualFold(f.From.Code, q.From) {
		return false
	}
	if q.To != "" && !strings.EqualFold(f.To.Code, q.To) {
		return false
	}
	if !q.Date.IsZero() && !sameDay(f.Departure, q.Date) {
		return false
	}
	seats := 0
	for _, s := range f.Seats {
		if q.Class == "" || strings.EqualFold(s.Class, q.Class) {
			seats++
		}
	}
	return seats > 0 && seats >= q.Passengers
}

type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Repository is implemented by the file and MongoDB backends. Lookups of
// missing offers or units return domain.ErrNotFound.
type Repository interface {
	Flight(ctx context.Context, flightNumber string, date time.Time) (FlightOffer, error)
	Hotel(ctx context.Context, slug string) (HotelOffer, error)
	SearchFlights(ctx context.Context, q FlightQuery) ([]FlightOffer, error)
	SearchHotels(ctx context.Context, city string) ([]HotelOffer, error)
	Cities(ctx context.Context, query string, limit int) ([]City, error)
	// FlightDateRange spans the departures still ahead of now.
	FlightDateRange(ctx context.Context, now time.Time) (DateRange, error)
	Unit(ctx context.Context, unitID string) (domain.InventoryUnit, error)
}

const DefaultCityLimit = 50

// FlightOfferID keys a flight offer by number and departure day.
func FlightOfferID(flightNumber string, departure time.Time) string {
	return strings.ToUpper(flightNumber) + "-" + departure.UTC().Format("2006-01-02")
}

// UnitID builds the global id of a seat or room from its container and label.
func UnitID(container, label string) string {
	return container + ":" + label
}

// SplitUnitID splits a unit id into its container and label.
func SplitUnitID(id string) (container, label string, ok bool) {
	i := strings.LastIndex(id, ":")
	if i <= 0 || i == len(id)-1 {
		return "", "", false
	}
	return id[:i], id[i+1:], true
}

// ParseFlightOfferID reverses FlightOfferID.
func ParseFlightOfferID(id string) (flightNumber string, date time.Time, ok bool) {
	const layout = "2006-01-02"
	if len(id) < len(layout)+2 || id[len(id)-len(layout)-1] != '-' {
		return "", time.Time{}, false
	}
	date, err := time.Parse(layout, id[len(id)-len(layout):])
	if err != nil {
		return "", time.Time{}, false
	}
	return id[:len(id)-len(layout)-1], date, true
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func findUnit(units []domain.InventoryUnit, id string) (domain.InventoryUnit, bool) {
	for _, u := range units {
		if u.ID == id {
			return u, true
		}
	}
	return domain.InventoryUnit{}, false
}

// Units lists the ids of units, keeping order.
func Units(units []domain.InventoryUnit) []string {
	ids := make([]string, len(units))
	for i, u := range units {
		ids[i] = u.ID
	}
	return ids
}
