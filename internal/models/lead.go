package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Technician is a reference to a field technician leads can be assigned to.
// Technicians are owned by the assignment service; the pipeline only points at them.
type Technician struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// Lead represents a prospective customer moving through the sales pipeline
type Lead struct {
	ID             string      `json:"id" db:"id"`
	FirstName      string      `json:"firstName" db:"first_name"`
	LastName       string      `json:"lastName" db:"last_name"`
	Email          string      `json:"email" db:"email"`
	Phone          string      `json:"phone" db:"phone"`
	Suburb         string      `json:"suburb" db:"suburb"`
	Address        *string     `json:"address,omitempty" db:"address"`
	Postcode       *string     `json:"postcode,omitempty" db:"postcode"`
	ServiceType    ServiceType `json:"serviceType" db:"service_type"`
	Urgency        Urgency     `json:"urgency" db:"urgency"`
	Source         LeadSource  `json:"source" db:"source"`
	Status         LeadStatus  `json:"status" db:"status"`
	Notes          *string     `json:"notes,omitempty" db:"notes"`
	EstimatedValue *float64    `json:"estimatedValue,omitempty" db:"estimated_value"`
	BookingDates   *string     `json:"bookingDates,omitempty" db:"booking_dates"`
	AssignedToID   *string     `json:"assignedToId,omitempty" db:"assigned_to_id"`
	AssignedTo     *Technician `json:"assignedTo,omitempty"`
	CreatedAt      time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time   `json:"updatedAt" db:"updated_at"`
	ContactedAt    *time.Time  `json:"contactedAt,omitempty" db:"contacted_at"`
	QualifiedAt    *time.Time  `json:"qualifiedAt,omitempty" db:"qualified_at"`
	ConvertedAt    *time.Time  `json:"convertedAt,omitempty" db:"converted_at"`
}

// FullName returns "first last" as searched and displayed on the card
func (l *Lead) FullName() string {
	return l.FirstName + " " + l.LastName
}

// IsAssigned reports whether a technician reference is present
func (l *Lead) IsAssigned() bool {
	return l.AssignedToID != nil && *l.AssignedToID != ""
}

// ProposedBookingDates decodes the serialized booking dates list.
// A lead without booking dates yields an empty slice.
func (l *Lead) ProposedBookingDates() ([]string, error) {
	if l.BookingDates == nil || strings.TrimSpace(*l.BookingDates) == "" {
		return []string{}, nil
	}

	var dates []string
	if err := json.Unmarshal([]byte(*l.BookingDates), &dates); err != nil {
		return nil, fmt.Errorf("failed to decode booking dates for lead %s: %w", l.ID, err)
	}
	return dates, nil
}

// CanTransitionTo checks if the lead can move to the target stage.
// Any stage can reach any other stage; moving onto the current stage is not a transition.
func (l *Lead) CanTransitionTo(target LeadStatus) bool {
	return target.IsValid() && target != l.Status
}

// Validate checks that every enumerated field holds a known value.
// The first offending field is reported as an *InvalidEnumerationError.
func (l *Lead) Validate() error {
	if !l.Status.IsValid() {
		return NewInvalidEnumerationError(l.ID, "status", string(l.Status))
	}
	if !l.ServiceType.IsValid() {
		return NewInvalidEnumerationError(l.ID, "serviceType", string(l.ServiceType))
	}
	if !l.Urgency.IsValid() {
		return NewInvalidEnumerationError(l.ID, "urgency", string(l.Urgency))
	}
	if !l.Source.IsValid() {
		return NewInvalidEnumerationError(l.ID, "source", string(l.Source))
	}
	return nil
}

// LeadUpdate carries the fields of a partial lead update.
// Nil fields are left untouched by the store.
type LeadUpdate struct {
	FirstName      *string      `json:"firstName,omitempty"`
	LastName       *string      `json:"lastName,omitempty"`
	Email          *string      `json:"email,omitempty"`
	Phone          *string      `json:"phone,omitempty"`
	Suburb         *string      `json:"suburb,omitempty"`
	Address        *string      `json:"address,omitempty"`
	Postcode       *string      `json:"postcode,omitempty"`
	ServiceType    *ServiceType `json:"serviceType,omitempty"`
	Urgency        *Urgency     `json:"urgency,omitempty"`
	Source         *LeadSource  `json:"source,omitempty"`
	Status         *LeadStatus  `json:"status,omitempty"`
	Notes          *string      `json:"notes,omitempty"`
	EstimatedValue *float64     `json:"estimatedValue,omitempty"`
	BookingDates   *string      `json:"bookingDates,omitempty"`
	AssignedToID   *string      `json:"assignedToId,omitempty"`
}

// StatusUpdate builds an update that only changes the stage
func StatusUpdate(status LeadStatus) LeadUpdate {
	return LeadUpdate{Status: &status}
}

// IsEmpty reports whether the update changes nothing
func (u LeadUpdate) IsEmpty() bool {
	return u.FirstName == nil && u.LastName == nil && u.Email == nil &&
		u.Phone == nil && u.Suburb == nil && u.Address == nil &&
		u.Postcode == nil && u.ServiceType == nil && u.Urgency == nil &&
		u.Source == nil && u.Status == nil && u.Notes == nil &&
		u.EstimatedValue == nil && u.BookingDates == nil && u.AssignedToID == nil
}

// StatusChange records a single stage transition of a lead
type StatusChange struct {
	ID        int64       `json:"id" db:"id"`
	LeadID    string      `json:"leadId" db:"lead_id"`
	OldStatus *LeadStatus `json:"oldStatus,omitempty" db:"old_status"`
	NewStatus LeadStatus  `json:"newStatus" db:"new_status"`
	ChangedAt time.Time   `json:"changedAt" db:"changed_at"`
}

// NotificationAttempt represents a single attempt to deliver a status-change notification
type NotificationAttempt struct {
	ID             int64     `json:"id" db:"id"`
	LeadID         string    `json:"lead_id" db:"lead_id"`
	ChangeID       int64     `json:"change_id" db:"change_id"`
	AttemptNo      int       `json:"attempt_no" db:"attempt_no"`
	RequestedAt    time.Time `json:"requested_at" db:"requested_at"`
	ResponseStatus *int      `json:"response_status,omitempty" db:"response_status"`
	ResponseBody   *string   `json:"response_body,omitempty" db:"response_body"`
	ErrorMessage   *string   `json:"error_message,omitempty" db:"error_message"`
	Success        bool      `json:"success" db:"success"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// NewNotificationAttempt creates a new delivery attempt for a status change
func NewNotificationAttempt(leadID string, changeID int64, attemptNo int) *NotificationAttempt {
	now := time.Now()
	return &NotificationAttempt{
		LeadID:      leadID,
		ChangeID:    changeID,
		AttemptNo:   attemptNo,
		RequestedAt: now,
		Success:     false,
		CreatedAt:   now,
	}
}

// MarkSuccess marks the notification attempt as successful
func (a *NotificationAttempt) MarkSuccess(statusCode int, responseBody string) {
	a.Success = true
	a.ResponseStatus = &statusCode
	a.ResponseBody = &responseBody
}

// MarkFailure marks the notification attempt as failed
func (a *NotificationAttempt) MarkFailure(statusCode *int, errorMessage string) {
	a.Success = false
	a.ResponseStatus = statusCode
	a.ErrorMessage = &errorMessage
}
