package entities

import (
	"fmt"
	"time"
)

// Seats is a per-category seat quantity. It is used both for requirements
// of a price option and for signed counter deltas.
type Seats struct {
	Children int `json:"children" db:"children"`
	Adult    int `json:"adult" db:"adult"`
}

func (s Seats) Neg() Seats {
	return Seats{Children: -s.Children, Adult: -s.Adult}
}

func (s Seats) Add(o Seats) Seats {
	return Seats{Children: s.Children + o.Children, Adult: s.Adult + o.Adult}
}

func (s Seats) IsZero() bool {
	return s.Children == 0 && s.Adult == 0
}

// Covers reports whether s has at least as many seats as need in every category.
func (s Seats) Covers(need Seats) bool {
	return s.Children >= need.Children && s.Adult >= need.Adult
}

type SeatCounts struct {
	Total        int `json:"total" db:"total"`
	Available    int `json:"available" db:"available"`
	NonConfirmed int `json:"non_confirmed" db:"non_confirmed"`
}

func (c SeatCounts) Valid() bool {
	return c.Available >= 0 && c.NonConfirmed >= 0 && c.Available+c.NonConfirmed <= c.Total
}

type Show struct {
	ShowID   int        `json:"show_id" db:"show_id"`
	Name     string     `json:"name" db:"name"`
	Date     time.Time  `json:"date" db:"show_date"`
	Time     string     `json:"time" db:"show_time"`
	Children SeatCounts `json:"children" db:"children"`
	Adult    SeatCounts `json:"adult" db:"adult"`
}

const DateKeyLayout = "2006-01-02"

// DateKey is the stable selection value for the show's date.
func (s Show) DateKey() string {
	return s.Date.Format(DateKeyLayout)
}

func (s Show) Label() string {
	return fmt.Sprintf("%s %s %s", s.Name, s.Date.Format("02.01"), s.Time)
}

func (s Show) Available() Seats {
	return Seats{Children: s.Children.Available, Adult: s.Adult.Available}
}

func (s Show) NonConfirmed() Seats {
	return Seats{Children: s.Children.NonConfirmed, Adult: s.Adult.NonConfirmed}
}

// SeatsValid checks available + non_confirmed <= total for both categories.
func (s Show) SeatsValid() bool {
	return s.Children.Valid() && s.Adult.Valid()
}

// ApplySeatDelta returns a copy of the show with the deltas applied, and
// false if the result would break the seat invariant.
func (s Show) ApplySeatDelta(deltaAvailable, deltaNonConfirmed Seats) (Show, bool) {
	s.Children.Available += deltaAvailable.Children
	s.Adult.Available += deltaAvailable.Adult
	s.Children.NonConfirmed += deltaNonConfirmed.Children
	s.Adult.NonConfirmed += deltaNonConfirmed.Adult

	return s, s.SeatsValid()
}

type PriceOption struct {
	OptionID   int    `json:"option_id" db:"option_id"`
	Name       string `json:"name" db:"name"`
	Price      int    `json:"price" db:"price"`
	Seats      Seats  `json:"seats" db:"seats"`
	Individual bool   `json:"individual" db:"individual"`
}

// RequiresChildrenNames is true when the applicant must list the children
// attending. Individual options are booked for a named group upfront.
func (o PriceOption) RequiresChildrenNames() bool {
	return o.Seats.Children > 0 && !o.Individual
}
