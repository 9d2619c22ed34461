// Package normalize maps jurisdiction-specific vocabularies and formats onto the
// shared record representation.
package normalize

import (
	"strings"

	"github.com/use-agent/regscout/models"
)

// statusRule maps raw status fragments to a vocabulary value. Rules are tried
// in order, so more specific fragments ("not in good standing", "inact")
// must precede the fragments they contain ("good standing", "active").
type statusRule struct {
	fragments []string
	status    models.EntityStatus
}

var statusRules = []statusRule{
	{[]string{"merg"}, models.StatusMerged},
	{[]string{"convert"}, models.StatusConverted},
	{[]string{"forfeit", "void"}, models.StatusForfeited},
	{[]string{"revok"}, models.StatusRevoked},
	{[]string{"cancel", "withdraw"}, models.StatusCancelled},
	{[]string{"suspend"}, models.StatusSuspended},
	{[]string{"dissol", "diss", "terminat", "surrender", "expunge"}, models.StatusDissolved},
	{[]string{"not in good standing", "inact", "delinquent", "expired", "lapsed", "noncompli", "non-compli", "dormant"}, models.StatusInactive},
	{[]string{"pending", "reserv", "incomplete", "in process"}, models.StatusPending},
	{[]string{"active", "good standing", "exist", "current", "registered", "live", "in compliance"}, models.StatusActive},
}

// Status maps a raw registry status onto the fixed vocabulary.
//
// The mapping is total: empty or unrecognised values become Pending, meaning
// the status could not be verified. Normalising an already-normalised value is
// a no-op.
func Status(raw string) models.EntityStatus {
	s := strings.ToLower(collapseSpace(raw))
	if s == "" {
		return models.StatusPending
	}
	for _, v := range models.AllStatuses {
		if strings.EqualFold(s, string(v)) {
			return v
		}
	}
	for _, rule := range statusRules {
		for _, frag := range rule.fragments {
			if strings.Contains(s, frag) {
				return rule.status
			}
		}
	}
	return models.StatusPending
}
