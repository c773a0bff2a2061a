package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/melbournemould/leadboard/internal/models"
)

// Assignment narrows leads by whether a technician is attached
type Assignment string

const (
	AssignmentAny        Assignment = ""
	AssignmentAssigned   Assignment = "assigned"
	AssignmentUnassigned Assignment = "unassigned"
)

// DateRange names a relative creation-time window
type DateRange string

const (
	DateRangeAny        DateRange = ""
	DateRangeToday      DateRange = "today"
	DateRangeYesterday  DateRange = "yesterday"
	DateRangeLast7Days  DateRange = "last7days"
	DateRangeLast30Days DateRange = "last30days"
	DateRangeLast90Days DateRange = "last90days"
)

// allSentinel is the UI value meaning "no restriction"
const allSentinel = "all"

var trailingDays = map[DateRange]int{
	DateRangeLast7Days:  7,
	DateRangeLast30Days: 30,
	DateRangeLast90Days: 90,
}

// IsValid checks if the range is a known name
func (r DateRange) IsValid() bool {
	switch r {
	case DateRangeAny, DateRangeToday, DateRangeYesterday:
		return true
	}
	_, ok := trailingDays[r]
	return ok
}

// TimeWindow is a half-open interval [From, To)
type TimeWindow struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether t falls inside the window
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

// Window resolves the range against now in loc.
// Days are calendar days in loc, so windows follow daylight saving changes.
// DateRangeAny yields ok=false.
func (r DateRange) Window(now time.Time, loc *time.Location) (TimeWindow, bool) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	startOfToday := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	startOfTomorrow := startOfToday.AddDate(0, 0, 1)

	switch r {
	case DateRangeToday:
		return TimeWindow{From: startOfToday, To: startOfTomorrow}, true
	case DateRangeYesterday:
		return TimeWindow{From: startOfToday.AddDate(0, 0, -1), To: startOfToday}, true
	}

	if days, ok := trailingDays[r]; ok {
		return TimeWindow{From: startOfToday.AddDate(0, 0, -(days - 1)), To: startOfTomorrow}, true
	}
	return TimeWindow{}, false
}

// Criteria holds the structured board filters. Empty fields pass everything.
type Criteria struct {
	ServiceType models.ServiceType `json:"serviceType,omitempty"`
	Urgency     models.Urgency     `json:"urgency,omitempty"`
	Source      models.LeadSource  `json:"source,omitempty"`
	Assignment  Assignment         `json:"assignment,omitempty"`
	DateRange   DateRange          `json:"dateRange,omitempty"`

	// Created holds the resolved bounds of DateRange; see Resolve
	Created *TimeWindow `json:"created,omitempty"`
}

// Normalize maps the "all" sentinel on every field to the empty value
func (c Criteria) Normalize() Criteria {
	if strings.EqualFold(string(c.ServiceType), allSentinel) {
		c.ServiceType = ""
	}
	if strings.EqualFold(string(c.Urgency), allSentinel) {
		c.Urgency = ""
	}
	if strings.EqualFold(string(c.Source), allSentinel) {
		c.Source = ""
	}
	if strings.EqualFold(string(c.Assignment), allSentinel) {
		c.Assignment = AssignmentAny
	}
	if strings.EqualFold(string(c.DateRange), allSentinel) {
		c.DateRange = DateRangeAny
	}
	return c
}

// Validate rejects values outside the closed enumerations
func (c Criteria) Validate() error {
	if c.ServiceType != "" && !c.ServiceType.IsValid() {
		return models.NewValidationError("serviceType", "unknown service type", string(c.ServiceType))
	}
	if c.Urgency != "" && !c.Urgency.IsValid() {
		return models.NewValidationError("urgency", "unknown urgency", string(c.Urgency))
	}
	if c.Source != "" && !c.Source.IsValid() {
		return models.NewValidationError("source", "unknown source", string(c.Source))
	}
	switch c.Assignment {
	case AssignmentAny, AssignmentAssigned, AssignmentUnassigned:
	default:
		return models.NewValidationError("assignment", "must be 'assigned' or 'unassigned'", string(c.Assignment))
	}
	if !c.DateRange.IsValid() {
		return models.NewValidationError("dateRange", "unknown date range", string(c.DateRange))
	}
	return nil
}

// Resolve normalizes and validates the criteria and fixes the date range to concrete bounds
func (c Criteria) Resolve(now time.Time, loc *time.Location) (Criteria, error) {
	c = c.Normalize()
	if err := c.Validate(); err != nil {
		return Criteria{}, fmt.Errorf("invalid filter criteria: %w", err)
	}

	c.Created = nil
	if window, ok := c.DateRange.Window(now, loc); ok {
		c.Created = &window
	}
	return c, nil
}

// IsZero reports whether no filter is set
func (c Criteria) IsZero() bool {
	return c.ServiceType == "" && c.Urgency == "" && c.Source == "" &&
		c.Assignment == AssignmentAny && c.DateRange == DateRangeAny && c.Created == nil
}
