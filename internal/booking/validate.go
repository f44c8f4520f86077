package booking

import (
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"time"

	"github.com/robertarktes/travel-reservations/internal/catalog"
	"github.com/robertarktes/travel-reservations/internal/domain"
)

var travellerTypes = []string{"adult", "child", "infant"}

// validateTravellers checks names, traveller types and the primary contact.
// field is the input key, "passengers" or "guests".
func validateTravellers(v *domain.ValidationError, field string, travellers []domain.Traveller, typed bool) {
	if len(travellers) == 0 {
		v.Add(field, fmt.Sprintf("Please add at least one %s", strings.TrimSuffix(field, "s")))
		return
	}

	primaries := 0
	for i, t := range travellers {
		key := fmt.Sprintf("%s[%d]", field, i)
		if strings.TrimSpace(t.FirstName) == "" {
			v.Add(key+".firstName", "First name is required")
		}
		if strings.TrimSpace(t.LastName) == "" {
			v.Add(key+".lastName", "Last name is required")
		}
		if typed && t.Type != "" && !slices.Contains(travellerTypes, t.Type) {
			v.Add(key+".type", "Type must be adult, child or infant")
		}
		if t.Email != "" {
			if _, err := mail.ParseAddress(t.Email); err != nil {
				v.Add(key+".email", "Email is invalid")
			}
		}
		if !t.IsPrimary {
			continue
		}
		primaries++
		if t.Email == "" {
			v.Add(key+".email", "Email is required")
		}
		if strings.TrimSpace(t.Phone) == "" {
			v.Add(key+".phone", "Phone number is required")
		}
	}

	switch {
	case primaries == 0:
		v.Add(field, "Please mark one "+strings.TrimSuffix(field, "s")+" as the primary contact")
	case primaries > 1:
		v.Add(field, "Only one primary contact is allowed")
	}
}

// selectUnits resolves the selected ids against the offer's units.
func selectUnits(v *domain.ValidationError, field string, ids []string, lookup func(string) (domain.InventoryUnit, bool), noun string) []domain.InventoryUnit {
	if len(ids) == 0 {
		v.Add(field, "Please select at least one "+noun)
		return nil
	}
	units := make([]domain.InventoryUnit, 0, len(ids))
	for i, id := range ids {
		key := fmt.Sprintf("%s[%d]", field, i)
		if slices.Contains(ids[:i], id) {
			v.Add(key, fmt.Sprintf("The %s %s is selected twice", noun, id))
			continue
		}
		u, ok := lookup(id)
		if !ok {
			v.Add(key, fmt.Sprintf("The %s %s is not part of this offer", noun, id))
			continue
		}
		units = append(units, u)
	}
	return units
}

// validateFlight returns the passengers with their seats assigned and the
// selected seats.
func validateFlight(offer catalog.FlightOffer, in FlightReserveInput, now time.Time) ([]domain.Traveller, []domain.InventoryUnit, error) {
	v := domain.NewValidationError()
	if offer.Departed(now) {
		v.Add("date", "This flight has already departed")
		return nil, nil, v
	}

	seats := selectUnits(v, "seats", in.Seats, offer.Seat, "seat")
	validateTravellers(v, "passengers", in.Passengers, true)
	if len(in.Seats) > 0 && len(in.Passengers) > 0 && len(in.Seats) != len(in.Passengers) {
		v.Add("seats", "Please select exactly one seat per passenger")
	}

	passengers := slices.Clone(in.Passengers)
	for i := range passengers {
		if passengers[i].Type == "" {
			passengers[i].Type = "adult"
		}
		switch {
		case passengers[i].UnitID == "" && i < len(in.Seats):
			passengers[i].UnitID = in.Seats[i]
		case passengers[i].UnitID != "" && !slices.Contains(in.Seats, passengers[i].UnitID):
			v.Add(fmt.Sprintf("passengers[%d].seat", i), "Seat is not among the selected seats")
		}
	}
	for i, p := range passengers {
		if p.UnitID == "" {
			continue
		}
		if slices.ContainsFunc(passengers[:i], func(o domain.Traveller) bool { return o.UnitID == p.UnitID }) {
			v.Add(fmt.Sprintf("passengers[%d].seat", i), "Seat is already assigned to another passenger")
		}
	}

	if err := v.Err(); err != nil {
		return nil, nil, err
	}
	return passengers, seats, nil
}

func validateHotel(offer catalog.HotelOffer, in HotelReserveInput, now time.Time) ([]domain.InventoryUnit, error) {
	v := domain.NewValidationError()

	checkIn, checkOut := startOfDay(in.CheckIn), startOfDay(in.CheckOut)
	switch {
	case in.CheckIn.IsZero():
		v.Add("checkIn", "Check-in date is required")
	case checkIn.Before(startOfDay(now)):
		v.Add("checkIn", "Check-in date has already passed")
	}
	switch {
	case in.CheckOut.IsZero():
		v.Add("checkOut", "Check-out date is required")
	case !checkOut.After(checkIn):
		v.Add("checkOut", "Check-out must be after check-in")
	}

	switch in.PaymentMethod {
	case "", domain.PaymentCard, domain.PaymentCash:
	default:
		v.Add("paymentMethod", "Payment method must be card or cash")
	}

	rooms := selectUnits(v, "rooms", in.Rooms, offer.Room, "room")
	validateTravellers(v, "guests", in.Guests, false)

	capacity := 0
	for _, r := range rooms {
		capacity += r.Capacity
	}
	if len(rooms) > 0 && len(in.Guests) > capacity {
		v.Add("guests", fmt.Sprintf("The selected rooms fit at most %d guests", capacity))
	}

	if err := v.Err(); err != nil {
		return nil, err
	}
	return rooms, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// stayWindow spans the nights from check-in to check-out.
func stayWindow(checkIn, checkOut time.Time) domain.Window {
	return domain.NewWindow(startOfDay(checkIn), startOfDay(checkOut))
}
