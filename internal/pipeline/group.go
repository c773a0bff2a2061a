package pipeline

import "github.com/melbournemould/leadboard/internal/models"

// Grouping is a partition of a lead list into stage buckets
type Grouping struct {
	// Order lists the stages in column order, without duplicates
	Order []models.LeadStatus
	// Buckets holds a key for every stage in Order, possibly with an empty list
	Buckets map[models.LeadStatus][]models.Lead
	// Unbucketed holds leads whose status is not one of the grouped stages
	Unbucketed []models.Lead
}

// GroupByStatus partitions leads into one bucket per stage, preserving source order.
// Leads whose status is not in stages are returned in Unbucketed and never placed in a bucket.
func GroupByStatus(leads []models.Lead, stages []models.LeadStatus) Grouping {
	g := Grouping{
		Order:      make([]models.LeadStatus, 0, len(stages)),
		Buckets:    make(map[models.LeadStatus][]models.Lead, len(stages)),
		Unbucketed: []models.Lead{},
	}

	for _, stage := range stages {
		if _, seen := g.Buckets[stage]; seen {
			continue
		}
		g.Order = append(g.Order, stage)
		g.Buckets[stage] = []models.Lead{}
	}

	for _, lead := range leads {
		bucket, ok := g.Buckets[lead.Status]
		if !ok {
			g.Unbucketed = append(g.Unbucketed, lead)
			continue
		}
		g.Buckets[lead.Status] = append(bucket, lead)
	}

	return g
}

// Count returns the number of bucketed leads
func (g Grouping) Count() int {
	n := 0
	for _, bucket := range g.Buckets {
		n += len(bucket)
	}
	return n
}

// IDs returns the lead ids of a bucket in order
func (g Grouping) IDs(stage models.LeadStatus) []string {
	bucket := g.Buckets[stage]
	ids := make([]string, len(bucket))
	for i, lead := range bucket {
		ids[i] = lead.ID
	}
	return ids
}
