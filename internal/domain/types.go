package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// MaxTickets bounds every ticket count; counters are stored as 32-bit
// integers.
const MaxTickets = math.MaxInt32

type Role string

const (
	RoleUser         Role = "user"
	RoleEventManager Role = "event_manager"
)

type City string

const (
	CityBengaluru City = "bengaluru"
	CityHyderabad City = "hyderabad"
	CityChennai   City = "chennai"
	CityDelhi     City = "delhi"
	CityMumbai    City = "mumbai"
	CityPune      City = "pune"
	CityKolkata   City = "kolkata"
	CityJaipur    City = "jaipur"
)

var cities = []City{
	CityBengaluru, CityHyderabad, CityChennai, CityDelhi,
	CityMumbai, CityPune, CityKolkata, CityJaipur,
}

func (c City) Valid() bool {
	for _, known := range cities {
		if c == known {
			return true
		}
	}
	return false
}

type Category string

const (
	CategoryMusic   Category = "music"
	CategorySports  Category = "sports"
	CategoryTheatre Category = "theatre"
	CategoryDance   Category = "dance"
)

var categories = []Category{CategoryMusic, CategorySports, CategoryTheatre, CategoryDance}

func (c Category) Valid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

// DateLayout and TimeLayout are the wire formats of Event.Date and Event.Time.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

type User struct {
	ID           int64
	Username     string
	Email        string
	Name         string
	PasswordHash string
	Role         Role
	IsAdmin      bool
	CreatedAt    time.Time
}

type Event struct {
	ID               int64
	Title            string
	Description      string
	Date             time.Time
	Time             string
	Location         City
	Category         Category
	PaymentOptions   string
	Price            decimal.Decimal
	AvailableTickets int
	CreatedBy        int64
}

type EventFilter struct {
	Location City
	Category Category
	Date     *time.Time
}

// InventorySnapshot is the state of an event's counter as seen by the
// statement that last touched it.
type InventorySnapshot struct {
	EventID   int64
	Price     decimal.Decimal
	Available int
}
