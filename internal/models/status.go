package models

// LeadStatus is the pipeline stage a lead currently occupies
type LeadStatus string

const (
	// LeadStatusNew indicates a freshly captured lead that nobody has contacted yet
	LeadStatusNew LeadStatus = "NEW"

	// LeadStatusContacted indicates first contact has been made with the customer
	LeadStatusContacted LeadStatus = "CONTACTED"

	// LeadStatusQualified indicates the job is in the service area and worth quoting
	LeadStatusQualified LeadStatus = "QUALIFIED"

	// LeadStatusQuoted indicates a quote has been sent
	LeadStatusQuoted LeadStatus = "QUOTED"

	// LeadStatusConverted indicates the customer accepted and the job is booked
	LeadStatusConverted LeadStatus = "CONVERTED"

	// LeadStatusFollowUp is a side stage for leads parked for a later call back
	LeadStatusFollowUp LeadStatus = "FOLLOW_UP"

	// LeadStatusClosedLost is a side stage for leads that will not convert
	LeadStatusClosedLost LeadStatus = "CLOSED_LOST"
)

// orderedStages is the declared column order of the board
var orderedStages = []LeadStatus{
	LeadStatusNew,
	LeadStatusContacted,
	LeadStatusQualified,
	LeadStatusQuoted,
	LeadStatusConverted,
	LeadStatusFollowUp,
	LeadStatusClosedLost,
}

var stageTitles = map[LeadStatus]string{
	LeadStatusNew:        "New Leads",
	LeadStatusContacted:  "Contacted",
	LeadStatusQualified:  "Qualified",
	LeadStatusQuoted:     "Quoted",
	LeadStatusConverted:  "Converted",
	LeadStatusFollowUp:   "Follow Up",
	LeadStatusClosedLost: "Closed Lost",
}

// Stages returns every valid stage in board order.
// The returned slice is a copy and may be modified by the caller.
func Stages() []LeadStatus {
	stages := make([]LeadStatus, len(orderedStages))
	copy(stages, orderedStages)
	return stages
}

// IsValid checks if the status is one of the fixed pipeline stages
func (s LeadStatus) IsValid() bool {
	_, ok := stageTitles[s]
	return ok
}

// IsSideStage reports whether the stage sits outside the main NEW → CONVERTED line
func (s LeadStatus) IsSideStage() bool {
	return s == LeadStatusFollowUp || s == LeadStatusClosedLost
}

// Title returns the column heading shown for the stage
func (s LeadStatus) Title() string {
	if title, ok := stageTitles[s]; ok {
		return title
	}
	return string(s)
}

// String returns the string representation of the status
func (s LeadStatus) String() string {
	return string(s)
}
