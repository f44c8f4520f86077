package mongo

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/travel-reservations/internal/catalog"
	"github.com/robertarktes/travel-reservations/internal/domain"
	"github.com/robertarktes/travel-reservations/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ catalog.Repository = (*CatalogRepository)(nil)

// CatalogRepository serves flights, hotels and cities from MongoDB. Documents
// have the catalog file layout; fares are stored as decimal strings.
type CatalogRepository struct {
	flights *mongo.Collection
	hotels  *mongo.Collection
	cities  *mongo.Collection
	logger  observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		flights: db.Collection("flights"),
		hotels:  db.Collection("hotels"),
		cities:  db.Collection("cities"),
		logger:  logger,
	}
}

// Import replaces the catalog with doc. Flight numbers are stored upper case.
func (c *CatalogRepository) Import(ctx context.Context, doc catalog.Document) error {
	for _, coll := range []*mongo.Collection{c.flights, c.hotels, c.cities} {
		if _, err := coll.DeleteMany(ctx, bson.M{}); err != nil {
			return errors.Wrapf(err, "clear %s", coll.Name())
		}
	}

	flights := make([]interface{}, 0, len(doc.Flights))
	for _, f := range doc.Flights {
		if _, err := f.Offer(); err != nil {
			return err
		}
		f.FlightNumber = strings.ToUpper(f.FlightNumber)
		f.Departure = f.Departure.UTC()
		f.Arrival = f.Arrival.UTC()
		flights = append(flights, f)
	}
	hotels := make([]interface{}, 0, len(doc.Hotels))
	for _, h := range doc.Hotels {
		if _, err := h.Offer(); err != nil {
			return err
		}
		hotels = append(hotels, h)
	}
	cities := make([]interface{}, 0, len(doc.Cities))
	for _, city := range doc.Cities {
		cities = append(cities, city)
	}

	for coll, docs := range map[*mongo.Collection][]interface{}{c.flights: flights, c.hotels: hotels, c.cities: cities} {
		if len(docs) == 0 {
			continue
		}
		if _, err := coll.InsertMany(ctx, docs); err != nil {
			return errors.Wrapf(err, "import %s", coll.Name())
		}
	}

	_, err := c.flights.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "flight_number", Value: 1}, {Key: "departure", Value: 1}},
	})
	if err != nil {
		return errors.Wrap(err, "index flights")
	}
	_, err = c.hotels.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "slug", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return errors.Wrap(err, "index hotels")
}

func dayRange(t time.Time) bson.M {
	y, m, d := t.UTC().Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return bson.M{"$gte": start, "$lt": start.AddDate(0, 0, 1)}
}

func exact(s string) primitive.Regex {
	return primitive.Regex{Pattern: "^" + regexp.QuoteMeta(s) + "$", Options: "i"}
}

func (c *CatalogRepository) findFlights(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]catalog.FlightOffer, error) {
	cur, err := c.flights.Find(ctx, filter, opts...)
	if err != nil {
		c.logger.WithError(err).Error("failed to find flights")
		return nil, err
	}
	var specs []catalog.FlightSpec
	if err := cur.All(ctx, &specs); err != nil {
		return nil, err
	}

	offers := make([]catalog.FlightOffer, 0, len(specs))
	for _, s := range specs {
		offer, err := s.Offer()
		if err != nil {
			return nil, err
		}
		offers = append(offers, offer)
	}
	return offers, nil
}

func (c *CatalogRepository) Flight(ctx context.Context, flightNumber string, date time.Time) (catalog.FlightOffer, error) {
	offers, err := c.findFlights(ctx, bson.M{
		"flight_number": strings.ToUpper(flightNumber),
		"departure":     dayRange(date),
	}, options.Find().SetLimit(1))
	if err != nil {
		return catalog.FlightOffer{}, err
	}
	if len(offers) == 0 {
		return catalog.FlightOffer{}, errors.Wrapf(domain.ErrNotFound, "flight %s on %s", flightNumber, date.Format("2006-01-02"))
	}
	return offers[0], nil
}

func (c *CatalogRepository) Hotel(ctx context.Context, slug string) (catalog.HotelOffer, error) {
	var spec catalog.HotelSpec
	err := c.hotels.FindOne(ctx, bson.M{"slug": slug}).Decode(&spec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return catalog.HotelOffer{}, errors.Wrapf(domain.ErrNotFound, "hotel %s", slug)
	}
	if err != nil {
		c.logger.WithError(err).Error("failed to get hotel")
		return catalog.HotelOffer{}, err
	}
	return spec.Offer()
}

// SearchFlights filters route and day in MongoDB and seat class and count
// in process.
func (c *CatalogRepository) SearchFlights(ctx context.Context, q catalog.FlightQuery) ([]catalog.FlightOffer, error) {
	filter := bson.M{}
	if q.From != "" {
		filter["from.code"] = strings.ToUpper(q.From)
	}
	if q.To != "" {
		filter["to.code"] = strings.ToUpper(q.To)
	}
	if !q.Date.IsZero() {
		filter["departure"] = dayRange(q.Date)
	}

	offers, err := c.findFlights(ctx, filter, options.Find().SetSort(bson.D{{Key: "departure", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var out []catalog.FlightOffer
	for _, f := range offers {
		if q.Matches(f) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (c *CatalogRepository) SearchHotels(ctx context.Context, city string) ([]catalog.HotelOffer, error) {
	filter := bson.M{}
	if city != "" {
		filter["city"] = exact(city)
	}
	cur, err := c.hotels.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "slug", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var specs []catalog.HotelSpec
	if err := cur.All(ctx, &specs); err != nil {
		return nil, err
	}

	out := make([]catalog.HotelOffer, 0, len(specs))
	for _, s := range specs {
		offer, err := s.Offer()
		if err != nil {
			return nil, err
		}
		out = append(out, offer)
	}
	return out, nil
}

func (c *CatalogRepository) Cities(ctx context.Context, query string, limit int) ([]catalog.City, error) {
	if limit <= 0 {
		limit = catalog.DefaultCityLimit
	}
	filter := bson.M{}
	if q := strings.TrimSpace(query); q != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(q), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"iata_code": re},
			bson.M{"name": re},
			bson.M{"city": re},
			bson.M{"country": re},
		}
	}

	cur, err := c.cities.Find(ctx, filter, options.Find().SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	var out []catalog.City
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CatalogRepository) FlightDateRange(ctx context.Context, now time.Time) (catalog.DateRange, error) {
	upcoming := bson.M{"departure": bson.M{"$gt": now.UTC()}}

	first, err := c.findFlights(ctx, upcoming, options.Find().SetSort(bson.D{{Key: "departure", Value: 1}}).SetLimit(1))
	if err != nil {
		return catalog.DateRange{}, err
	}
	if len(first) == 0 {
		return catalog.DateRange{}, errors.Wrap(domain.ErrNotFound, "no upcoming flights")
	}
	last, err := c.findFlights(ctx, upcoming, options.Find().SetSort(bson.D{{Key: "departure", Value: -1}}).SetLimit(1))
	if err != nil {
		return catalog.DateRange{}, err
	}
	return catalog.DateRange{From: first[0].Departure, To: last[0].Departure}, nil
}

// Unit resolves a seat through its flight offer id and a room through its
// hotel slug.
func (c *CatalogRepository) Unit(ctx context.Context, unitID string) (domain.InventoryUnit, error) {
	container, _, ok := catalog.SplitUnitID(unitID)
	if !ok {
		return domain.InventoryUnit{}, errors.Wrapf(domain.ErrNotFound, "unit %s", unitID)
	}

	if number, date, ok := catalog.ParseFlightOfferID(container); ok {
		f, err := c.Flight(ctx, number, date)
		if err == nil {
			if u, ok := f.Seat(unitID); ok {
				return u, nil
			}
			return domain.InventoryUnit{}, errors.Wrapf(domain.ErrNotFound, "unit %s", unitID)
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.InventoryUnit{}, err
		}
	}

	h, err := c.Hotel(ctx, container)
	if err != nil {
		return domain.InventoryUnit{}, err
	}
	if u, ok := h.Room(unitID); ok {
		return u, nil
	}
	return domain.InventoryUnit{}, errors.Wrapf(domain.ErrNotFound, "unit %s", unitID)
}
