package filter

import (
	"strings"

	"github.com/melbournemould/leadboard/internal/models"
)

// predicate reports whether a lead stays in the candidate set
type predicate func(lead *models.Lead) bool

// Apply returns the leads matching search and criteria, in source order.
//
// The input slice is never modified. The date range is taken from criteria.Created,
// which callers fill through Criteria.Resolve; Apply itself never reads the clock.
func Apply(leads []models.Lead, search string, criteria Criteria) []models.Lead {
	steps := buildSteps(search, criteria)

	candidates := make([]models.Lead, len(leads))
	copy(candidates, leads)

	for _, keep := range steps {
		if len(candidates) == 0 {
			break
		}
		narrowed := candidates[:0:0]
		for i := range candidates {
			if keep(&candidates[i]) {
				narrowed = append(narrowed, candidates[i])
			}
		}
		candidates = narrowed
	}

	return candidates
}

func buildSteps(search string, c Criteria) []predicate {
	var steps []predicate

	if search != "" {
		steps = append(steps, matchesSearch(search))
	}
	if c.ServiceType != "" {
		steps = append(steps, func(l *models.Lead) bool { return l.ServiceType == c.ServiceType })
	}
	if c.Urgency != "" {
		steps = append(steps, func(l *models.Lead) bool { return l.Urgency == c.Urgency })
	}
	if c.Source != "" {
		steps = append(steps, func(l *models.Lead) bool { return l.Source == c.Source })
	}
	switch c.Assignment {
	case AssignmentAssigned:
		steps = append(steps, func(l *models.Lead) bool { return l.IsAssigned() })
	case AssignmentUnassigned:
		steps = append(steps, func(l *models.Lead) bool { return !l.IsAssigned() })
	}
	if c.Created != nil {
		window := *c.Created
		steps = append(steps, func(l *models.Lead) bool { return window.Contains(l.CreatedAt) })
	}

	return steps
}

// matchesSearch matches name, email and suburb case-insensitively and phone as a raw substring
func matchesSearch(search string) predicate {
	term := strings.ToLower(search)
	return func(l *models.Lead) bool {
		return strings.Contains(strings.ToLower(l.FullName()), term) ||
			strings.Contains(strings.ToLower(l.Email), term) ||
			strings.Contains(l.Phone, search) ||
			strings.Contains(strings.ToLower(l.Suburb), term)
	}
}
