package services

import "encoding/json"

// IntakeRequest is the body of a lead creation request.
// BookingDates may be a JSON array of dates or a string.
type IntakeRequest struct {
	FirstName      string          `json:"firstName" validate:"required,max=100"`
	LastName       string          `json:"lastName" validate:"required,max=100"`
	Email          string          `json:"email" validate:"required,email,max=255"`
	Phone          string          `json:"phone" validate:"required,max=50"`
	Suburb         string          `json:"suburb" validate:"max=100"`
	Address        *string         `json:"address" validate:"omitempty,max=500"`
	Postcode       *string         `json:"postcode" validate:"omitempty,number,len=4"`
	ServiceType    string          `json:"serviceType" validate:"required,service_type"`
	Urgency        string          `json:"urgency" validate:"omitempty,urgency"`
	Source         string          `json:"source" validate:"omitempty,lead_source"`
	Notes          *string         `json:"notes" validate:"omitempty,max=5000"`
	EstimatedValue *float64        `json:"estimatedValue" validate:"omitempty,gte=0"`
	BookingDates   json.RawMessage `json:"bookingDates"`
	AssignedToID   *string         `json:"assignedToId" validate:"omitempty,max=64"`
}

// UpdateRequest is the body of a partial lead update. Absent fields are left untouched.
type UpdateRequest struct {
	FirstName      *string         `json:"firstName" validate:"omitempty,min=1,max=100"`
	LastName       *string         `json:"lastName" validate:"omitempty,min=1,max=100"`
	Email          *string         `json:"email" validate:"omitempty,email,max=255"`
	Phone          *string         `json:"phone" validate:"omitempty,min=1,max=50"`
	Suburb         *string         `json:"suburb" validate:"omitempty,max=100"`
	Address        *string         `json:"address" validate:"omitempty,max=500"`
	Postcode       *string         `json:"postcode" validate:"omitempty,number,len=4"`
	ServiceType    *string         `json:"serviceType" validate:"omitempty,service_type"`
	Urgency        *string         `json:"urgency" validate:"omitempty,urgency"`
	Source         *string         `json:"source" validate:"omitempty,lead_source"`
	Status         *string         `json:"status" validate:"omitempty,lead_status"`
	Notes          *string         `json:"notes" validate:"omitempty,max=5000"`
	EstimatedValue *float64        `json:"estimatedValue" validate:"omitempty,gte=0"`
	BookingDates   json.RawMessage `json:"bookingDates"`
	AssignedToID   *string         `json:"assignedToId" validate:"omitempty,max=64"`
}

// AssignRequest is the body of a bulk technician assignment
type AssignRequest struct {
	LeadIDs      []string `json:"leadIds" validate:"required,min=1,max=500,dive,required"`
	TechnicianID string   `json:"technicianId" validate:"required,max=64"`
}
