package models

// ServiceType is the kind of mould work the customer is asking for
type ServiceType string

const (
	ServiceTypeMouldInspection        ServiceType = "MOULD_INSPECTION"
	ServiceTypeMouldRemoval           ServiceType = "MOULD_REMOVAL"
	ServiceTypeCompleteRemoval        ServiceType = "COMPLETE_REMOVAL"
	ServiceTypeComprehensiveRemoval   ServiceType = "COMPREHENSIVE_REMOVAL"
	ServiceTypeSubfloorRemediation    ServiceType = "SUBFLOOR_REMEDIATION"
	ServiceTypeAdvancedFogging        ServiceType = "ADVANCED_FOGGING"
	ServiceTypeMaterialRemoval        ServiceType = "MATERIAL_REMOVAL"
	ServiceTypeEmergencyResponse      ServiceType = "EMERGENCY_RESPONSE"
	ServiceTypeWaterDamageRestoration ServiceType = "WATER_DAMAGE_RESTORATION"
)

var serviceTypes = map[ServiceType]struct{}{
	ServiceTypeMouldInspection:        {},
	ServiceTypeMouldRemoval:           {},
	ServiceTypeCompleteRemoval:        {},
	ServiceTypeComprehensiveRemoval:   {},
	ServiceTypeSubfloorRemediation:    {},
	ServiceTypeAdvancedFogging:        {},
	ServiceTypeMaterialRemoval:        {},
	ServiceTypeEmergencyResponse:      {},
	ServiceTypeWaterDamageRestoration: {},
}

// IsValid checks if the service type is one of the offered services
func (t ServiceType) IsValid() bool {
	_, ok := serviceTypes[t]
	return ok
}

// Urgency is how quickly the customer wants someone on site
type Urgency string

const (
	UrgencyLow    Urgency = "LOW"
	UrgencyMedium Urgency = "MEDIUM"
	UrgencyHigh   Urgency = "HIGH"
	UrgencyUrgent Urgency = "URGENT"
)

// IsValid checks if the urgency is a known level
func (u Urgency) IsValid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyUrgent:
		return true
	default:
		return false
	}
}

// LeadSource is the channel a lead came in through
type LeadSource string

const (
	LeadSourceWebsite   LeadSource = "WEBSITE"
	LeadSourcePhone     LeadSource = "PHONE"
	LeadSourceReferral  LeadSource = "REFERRAL"
	LeadSourceGoogleAds LeadSource = "GOOGLE_ADS"
	LeadSourceFacebook  LeadSource = "FACEBOOK"
	LeadSourceOther     LeadSource = "OTHER"
)

// IsValid checks if the source is a known channel
func (s LeadSource) IsValid() bool {
	switch s {
	case LeadSourceWebsite, LeadSourcePhone, LeadSourceReferral,
		LeadSourceGoogleAds, LeadSourceFacebook, LeadSourceOther:
		return true
	default:
		return false
	}
}
