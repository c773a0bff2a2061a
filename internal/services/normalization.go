package services

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/melbournemould/leadboard/internal/models"
)

// Normalizer cleans up request values before they are stored
type Normalizer struct {
	spacePattern *regexp.Regexp
}

// NewNormalizer creates a new Normalizer instance
func NewNormalizer() *Normalizer {
	return &Normalizer{
		spacePattern: regexp.MustCompile(`\s+`),
	}
}

// NormalizeString trims the value and collapses runs of whitespace
func (n *Normalizer) NormalizeString(s string) string {
	return n.spacePattern.ReplaceAllString(strings.TrimSpace(s), " ")
}

// NormalizeEmail normalizes an email address
// Converts to lowercase and trims whitespace
func (n *Normalizer) NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone trims the number but keeps its formatting, since phone
// search matches the text as entered
func (n *Normalizer) NormalizePhone(phone string) string {
	return strings.TrimSpace(phone)
}

// NormalizeBookingDates converts the bookingDates value into the stored
// JSON-array string. Arrays are encoded, a string holding a JSON array is
// re-encoded, and any other non-empty string becomes a single date.
// A missing, null or empty value yields nil.
func (n *Normalizer) NormalizeBookingDates(raw json.RawMessage) (*string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var dates []string
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &dates); err != nil {
			return nil, models.NewValidationError("bookingDates", "must be a list of dates", string(trimmed))
		}
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, models.NewValidationError("bookingDates", "must be a list of dates", string(trimmed))
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		if strings.HasPrefix(s, "[") {
			if err := json.Unmarshal([]byte(s), &dates); err != nil {
				return nil, models.NewValidationError("bookingDates", "must be a list of dates", s)
			}
		} else {
			dates = []string{s}
		}
	default:
		return nil, models.NewValidationError("bookingDates", "must be a list of dates", string(trimmed))
	}

	cleaned := make([]string, 0, len(dates))
	for _, d := range dates {
		if d = strings.TrimSpace(d); d != "" {
			cleaned = append(cleaned, d)
		}
	}

	encoded, err := json.Marshal(cleaned)
	if err != nil {
		return nil, err
	}
	s := string(encoded)
	return &s, nil
}

func (n *Normalizer) optional(s *string) *string {
	if s == nil {
		return nil
	}
	v := n.NormalizeString(*s)
	return &v
}

// NormalizeIntake builds a new lead from a validated creation request.
// New leads always start in the NEW stage; urgency defaults to MEDIUM and
// source to WEBSITE.
func (n *Normalizer) NormalizeIntake(req *IntakeRequest) (*models.Lead, error) {
	bookingDates, err := n.NormalizeBookingDates(req.BookingDates)
	if err != nil {
		return nil, err
	}

	lead := &models.Lead{
		FirstName:      n.NormalizeString(req.FirstName),
		LastName:       n.NormalizeString(req.LastName),
		Email:          n.NormalizeEmail(req.Email),
		Phone:          n.NormalizePhone(req.Phone),
		Suburb:         n.NormalizeString(req.Suburb),
		Address:        n.optional(req.Address),
		Postcode:       n.optional(req.Postcode),
		ServiceType:    models.ServiceType(req.ServiceType),
		Urgency:        models.Urgency(req.Urgency),
		Source:         models.LeadSource(req.Source),
		Status:         models.LeadStatusNew,
		Notes:          req.Notes,
		EstimatedValue: req.EstimatedValue,
		BookingDates:   bookingDates,
		AssignedToID:   req.AssignedToID,
	}

	if lead.Urgency == "" {
		lead.Urgency = models.UrgencyMedium
	}
	if lead.Source == "" {
		lead.Source = models.LeadSourceWebsite
	}
	if lead.AssignedToID != nil && *lead.AssignedToID == "" {
		lead.AssignedToID = nil
	}

	return lead, nil
}

// NormalizeUpdate converts a validated update request into a store update
func (n *Normalizer) NormalizeUpdate(req *UpdateRequest) (models.LeadUpdate, error) {
	update := models.LeadUpdate{
		FirstName:      n.optional(req.FirstName),
		LastName:       n.optional(req.LastName),
		Suburb:         n.optional(req.Suburb),
		Address:        n.optional(req.Address),
		Postcode:       n.optional(req.Postcode),
		Notes:          req.Notes,
		EstimatedValue: req.EstimatedValue,
		AssignedToID:   req.AssignedToID,
	}

	if req.Email != nil {
		email := n.NormalizeEmail(*req.Email)
		update.Email = &email
	}
	if req.Phone != nil {
		phone := n.NormalizePhone(*req.Phone)
		update.Phone = &phone
	}
	if req.ServiceType != nil {
		v := models.ServiceType(*req.ServiceType)
		update.ServiceType = &v
	}
	if req.Urgency != nil {
		v := models.Urgency(*req.Urgency)
		update.Urgency = &v
	}
	if req.Source != nil {
		v := models.LeadSource(*req.Source)
		update.Source = &v
	}
	if req.Status != nil {
		v := models.LeadStatus(*req.Status)
		update.Status = &v
	}

	if len(req.BookingDates) > 0 {
		bookingDates, err := n.NormalizeBookingDates(req.BookingDates)
		if err != nil {
			return models.LeadUpdate{}, err
		}
		if bookingDates == nil {
			// An explicit null clears the dates
			empty := "[]"
			bookingDates = &empty
		}
		update.BookingDates = bookingDates
	}

	return update, nil
}
