package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/travel-reservations/internal/domain"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Document is the on-disk catalog layout. The MongoDB backend stores its
// flights and hotels in the same shape.
type Document struct {
	Cities  []City       `json:"cities" yaml:"cities"`
	Flights []FlightSpec `json:"flights" yaml:"flights"`
	Hotels  []HotelSpec  `json:"hotels" yaml:"hotels"`
}

type FlightSpec struct {
	FlightNumber string     `json:"flight_number" yaml:"flight_number" bson:"flight_number"`
	Airline      string     `json:"airline" yaml:"airline" bson:"airline"`
	From         Airport    `json:"from" yaml:"from" bson:"from"`
	To           Airport    `json:"to" yaml:"to" bson:"to"`
	Departure    time.Time  `json:"departure" yaml:"departure" bson:"departure"`
	Arrival      time.Time  `json:"arrival" yaml:"arrival" bson:"arrival"`
	Seats        []UnitSpec `json:"seats" yaml:"seats" bson:"seats"`
}

// Offer resolves the seats of f into inventory units.
func (f FlightSpec) Offer() (FlightOffer, error) {
	offer := FlightOffer{
		ID:           FlightOfferID(f.FlightNumber, f.Departure),
		FlightNumber: strings.ToUpper(f.FlightNumber),
		Airline:      f.Airline,
		From:         f.From,
		To:           f.To,
		Departure:    f.Departure.UTC(),
		Arrival:      f.Arrival.UTC(),
	}
	for _, s := range f.Seats {
		unit, err := s.toUnit(offer.ID, domain.UnitKindSeat)
		if err != nil {
			return FlightOffer{}, err
		}
		offer.Seats = append(offer.Seats, unit)
	}
	return offer, nil
}

type HotelSpec struct {
	Slug    string     `json:"slug" yaml:"slug" bson:"slug"`
	Name    string     `json:"name" yaml:"name" bson:"name"`
	City    string     `json:"city" yaml:"city" bson:"city"`
	Address string     `json:"address" yaml:"address" bson:"address"`
	Stars   int        `json:"stars" yaml:"stars" bson:"stars"`
	Rooms   []UnitSpec `json:"rooms" yaml:"rooms" bson:"rooms"`
}

func (h HotelSpec) Offer() (HotelOffer, error) {
	offer := HotelOffer{
		ID:      h.Slug,
		Slug:    h.Slug,
		Name:    h.Name,
		City:    h.City,
		Address: h.Address,
		Stars:   h.Stars,
	}
	for _, room := range h.Rooms {
		unit, err := room.toUnit(h.Slug, domain.UnitKindRoom)
		if err != nil {
			return HotelOffer{}, err
		}
		offer.Rooms = append(offer.Rooms, unit)
	}
	return offer, nil
}

// UnitSpec is a seat or room. Fare is a decimal string; Capacity defaults to 1.
type UnitSpec struct {
	Label    string `json:"label" yaml:"label" bson:"label"`
	Class    string `json:"class" yaml:"class" bson:"class"`
	Capacity int    `json:"capacity,omitempty" yaml:"capacity" bson:"capacity,omitempty"`
	Fare     string `json:"fare" yaml:"fare" bson:"fare"`
}

func (u UnitSpec) toUnit(container string, kind domain.UnitKind) (domain.InventoryUnit, error) {
	fare, err := decimal.NewFromString(u.Fare)
	if err != nil {
		return domain.InventoryUnit{}, errors.Wrapf(err, "fare of %s %s", container, u.Label)
	}
	capacity := u.Capacity
	if capacity == 0 {
		capacity = 1
	}
	return domain.InventoryUnit{
		ID:        UnitID(container, u.Label),
		Container: container,
		Kind:      kind,
		Class:     strings.ToLower(u.Class),
		Label:     u.Label,
		Capacity:  capacity,
		BaseFare:  fare,
	}, nil
}

// FileRepository serves the catalog from a JSON or YAML document loaded once.
type FileRepository struct {
	cities  []City
	flights []FlightOffer
	hotels  map[string]HotelOffer
	units   map[string]domain.InventoryUnit
}

// ReadDocument parses path as YAML when it ends in .yaml or .yml and as JSON
// otherwise.
func ReadDocument(path string) (Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Document{}, errors.Wrapf(err, "read catalog %s", path)
	}

	var doc Document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &doc)
	default:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		err = dec.Decode(&doc)
	}
	if err != nil {
		return Document{}, errors.Wrapf(err, "parse catalog %s", path)
	}
	return doc, nil
}

func LoadFile(path string) (*FileRepository, error) {
	doc, err := ReadDocument(path)
	if err != nil {
		return nil, err
	}
	return NewFileRepository(doc)
}

func NewFileRepository(doc Document) (*FileRepository, error) {
	r := &FileRepository{
		cities: doc.Cities,
		hotels: map[string]HotelOffer{},
		units:  map[string]domain.InventoryUnit{},
	}

	for _, f := range doc.Flights {
		offer, err := f.Offer()
		if err != nil {
			return nil, err
		}
		for _, unit := range offer.Seats {
			if err := r.index(unit); err != nil {
				return nil, err
			}
		}
		r.flights = append(r.flights, offer)
	}
	sort.SliceStable(r.flights, func(i, j int) bool {
		return r.flights[i].Departure.Before(r.flights[j].Departure)
	})

	for _, h := range doc.Hotels {
		offer, err := h.Offer()
		if err != nil {
			return nil, err
		}
		for _, unit := range offer.Rooms {
			if err := r.index(unit); err != nil {
				return nil, err
			}
		}
		r.hotels[h.Slug] = offer
	}
	return r, nil
}

func (r *FileRepository) index(u domain.InventoryUnit) error {
	if _, dup := r.units[u.ID]; dup {
		return errors.Newf("duplicate unit %s", u.ID)
	}
	r.units[u.ID] = u
	return nil
}

func (r *FileRepository) Flight(ctx context.Context, flightNumber string, date time.Time) (FlightOffer, error) {
	for _, f := range r.flights {
		if strings.EqualFold(f.FlightNumber, flightNumber) && sameDay(f.Departure, date) {
			return f, nil
		}
	}
	return FlightOffer{}, errors.Wrapf(domain.ErrNotFound, "flight %s on %s", flightNumber, date.Format("2006-01-02"))
}

func (r *FileRepository) Hotel(ctx context.Context, slug string) (HotelOffer, error) {
	h, ok := r.hotels[slug]
	if !ok {
		return HotelOffer{}, errors.Wrapf(domain.ErrNotFound, "hotel %s", slug)
	}
	return h, nil
}

func (r *FileRepository) SearchFlights(ctx context.Context, q FlightQuery) ([]FlightOffer, error) {
	var out []FlightOffer
	for _, f := range r.flights {
		if q.Matches(f) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *FileRepository) SearchHotels(ctx context.Context, city string) ([]HotelOffer, error) {
	var out []HotelOffer
	for _, h := range r.hotels {
		if city == "" || strings.EqualFold(h.City, city) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (r *FileRepository) Cities(ctx context.Context, query string, limit int) ([]City, error) {
	if limit <= 0 {
		limit = DefaultCityLimit
	}
	var out []City
	for _, c := range r.cities {
		if len(out) == limit {
			break
		}
		if c.Matches(query) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *FileRepository) FlightDateRange(ctx context.Context, now time.Time) (DateRange, error) {
	var dr DateRange
	for _, f := range r.flights {
		if f.Departed(now) {
			continue
		}
		if dr.From.IsZero() || f.Departure.Before(dr.From) {
			dr.From = f.Departure
		}
		if f.Departure.After(dr.To) {
			dr.To = f.Departure
		}
	}
	if dr.From.IsZero() {
		return DateRange{}, errors.Wrap(domain.ErrNotFound, "no upcoming flights")
	}
	return dr, nil
}

func (r *FileRepository) Unit(ctx context.Context, unitID string) (domain.InventoryUnit, error) {
	u, ok := r.units[unitID]
	if !ok {
		return domain.InventoryUnit{}, errors.Wrapf(domain.ErrNotFound, "unit %s", unitID)
	}
	return u, nil
}
