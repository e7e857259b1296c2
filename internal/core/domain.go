package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Monthly Cycle = "Monthly"
	Yearly  Cycle = "Yearly"
	Weekly  Cycle = "Weekly"
)

const (
	MaxNameLength  = 200
	MaxNotesLength = 1000
)

type (
	// Cycle is the billing period of a subscription.
	Cycle string

	Money struct {
		Cents int64
	}

	// Subscription is a user-recorded recurring charge.
	Subscription struct {
		ID          string
		Name        string
		Price       Money
		Cycle       Cycle
		RenewalDate time.Time // next renewal instant
		Notes       string
		CreatedAt   time.Time
	}
)

var (
	ErrEmptyName          = errors.New("name is required")
	ErrNameTooLong        = fmt.Errorf("name too long (max %d characters)", MaxNameLength)
	ErrNotesTooLong       = fmt.Errorf("notes too long (max %d characters)", MaxNotesLength)
	ErrInvalidPrice       = errors.New("invalid price")
	ErrInvalidCycle       = errors.New("invalid billing cycle")
	ErrInvalidRenewalDate = errors.New("invalid renewal date")
	ErrEmptyID            = errors.New("subscription id is required")
)

// ParseCycle maps user input onto a Cycle. Empty input means Monthly.
func ParseCycle(s string) (Cycle, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "monthly":
		return Monthly, nil
	case "yearly":
		return Yearly, nil
	case "weekly":
		return Weekly, nil
	default:
		return "", ErrInvalidCycle
	}
}

// IsValid reports whether c is one of the known billing cycles.
func (c Cycle) IsValid() bool {
	switch c {
	case Monthly, Yearly, Weekly:
		return true
	default:
		return false
	}
}

// OrDefault returns Monthly for the zero value.
func (c Cycle) OrDefault() Cycle {
	if c == "" {
		return Monthly
	}
	return c
}

func (m Money) Validate() error {
	if m.Cents < 0 {
		return ErrInvalidPrice
	}
	return nil
}

// Validate checks the fields a user supplies when creating or replacing a
// subscription. The ID is checked separately because it is assigned by the
// service, not by the caller.
func (s Subscription) Validate() error {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return &ValidationError{Field: "name", Err: ErrEmptyName}
	}
	if len(name) > MaxNameLength {
		return &ValidationError{Field: "name", Err: ErrNameTooLong}
	}
	if err := s.Price.Validate(); err != nil {
		return &ValidationError{Field: "price", Err: err}
	}
	if !s.Cycle.OrDefault().IsValid() {
		return &ValidationError{Field: "cycle", Err: ErrInvalidCycle}
	}
	if s.RenewalDate.IsZero() {
		return &ValidationError{Field: "renewal_date", Err: ErrInvalidRenewalDate}
	}
	if len(s.Notes) > MaxNotesLength {
		return &ValidationError{Field: "notes", Err: ErrNotesTooLong}
	}
	return nil
}

// ValidateStored additionally requires an assigned ID.
func (s Subscription) ValidateStored() error {
	if strings.TrimSpace(s.ID) == "" {
		return &ValidationError{Field: "id", Err: ErrEmptyID}
	}
	return s.Validate()
}
