package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type UnitKind string

const (
	UnitKindSeat UnitKind = "seat"
	UnitKindRoom UnitKind = "room"
)

// InventoryUnit is a seat on a dated flight or a hotel room. Units come from
// the catalog and are never mutated by the booking flow.
type InventoryUnit struct {
	ID        string          `json:"id"`
	Container string          `json:"container"`
	Kind      UnitKind        `json:"kind"`
	Class     string          `json:"class"`
	Label     string          `json:"label"`
	Capacity  int             `json:"capacity"`
	BaseFare  decimal.Decimal `json:"base_fare"`
}

type ReservationKind string

const (
	KindFlight ReservationKind = "flight"
	KindHotel  ReservationKind = "hotel"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCanceled  BookingStatus = "canceled"
)

type PaymentMethod string

const (
	PaymentCard PaymentMethod = "card"
	PaymentCash PaymentMethod = "cash"
)

type CancelCode string

const (
	CancelExpired    CancelCode = "expired"
	CancelDeparted   CancelCode = "departed"
	CancelConflict   CancelCode = "conflict"
	CancelSuperseded CancelCode = "superseded"
	CancelUser       CancelCode = "user_request"
)

// ActorSystem marks cancellations made by the service itself.
const ActorSystem = "system"

type Cancellation struct {
	Code   CancelCode `json:"code"`
	Reason string     `json:"reason"`
	At     time.Time  `json:"canceled_at"`
	By     string     `json:"canceled_by"`
}

// Traveller is a passenger on a flight reservation or a guest on a hotel
// reservation. UnitID is the seat assigned to a passenger; guests leave it empty.
type Traveller struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Type        string `json:"type"`
	Age         int    `json:"age,omitempty"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	IsPrimary   bool   `json:"is_primary"`
	UnitID      string `json:"unit_id,omitempty"`
}

type Reservation struct {
	Code            string          `json:"code"`
	Kind            ReservationKind `json:"kind"`
	UserID          string          `json:"user_id"`
	OfferRef        string          `json:"offer_ref"`
	Units           []string        `json:"units"`
	Window          Window          `json:"window"`
	Travellers      []Traveller     `json:"travellers"`
	CreatedAt       time.Time       `json:"created_at"`
	GuaranteedUntil time.Time       `json:"guaranteed_until"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	BookingStatus   BookingStatus   `json:"booking_status"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	Fare            Fare            `json:"fare"`
	PaymentIntentID string          `json:"payment_intent_id,omitempty"`
	Cancellation    *Cancellation   `json:"cancellation,omitempty"`
	Demo            bool            `json:"demo"`
}

type Account struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	CustomerID string `json:"customer_id,omitempty"`
}

const (
	RoleCustomer = "customer"
	RoleOperator = "operator"
)

// Session is the authenticated caller as reported by the auth provider.
type Session struct {
	UserID string
	Email  string
	Name   string
	Role   string
}

func (s *Session) IsOperator() bool {
	return s != nil && s.Role == RoleOperator
}
