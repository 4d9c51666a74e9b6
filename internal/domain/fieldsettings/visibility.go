package fieldsettings

import (
	"encoding/json"

	"fieldsettings/internal/core/apperror"
)

// Location is a UI surface that can independently show or hide a field.
type Location string

const (
	LocationLearnersList            Location = "learnersList"
	LocationLearnerEnrollment       Location = "learnerEnrollment"
	LocationEnrollRequestList       Location = "enrollRequestList"
	LocationInviteList              Location = "inviteList"
	LocationAssessmentRegistration  Location = "assessmentRegistration"
	LocationLiveSessionRegistration Location = "liveSessionRegistration"
	LocationLearnerProfile          Location = "learnerProfile"
	LocationCampaign                Location = "campaign"
	LocationEnquiry                 Location = "enquiry"
)

// Locations lists the closed set of locations in display order.
var Locations = []Location{
	LocationLearnersList,
	LocationLearnerEnrollment,
	LocationEnrollRequestList,
	LocationInviteList,
	LocationAssessmentRegistration,
	LocationLiveSessionRegistration,
	LocationLearnerProfile,
	LocationCampaign,
	LocationEnquiry,
}

// Valid reports whether l belongs to the closed location set.
func (l Location) Valid() bool {
	for _, known := range Locations {
		if l == known {
			return true
		}
	}
	return false
}

// ParseLocation validates a location key coming from the outside.
func ParseLocation(s string) (Location, error) {
	l := Location(s)
	if !l.Valid() {
		return "", apperror.NewValidation("unknown location").
			WithDetail("location", s)
	}
	return l, nil
}

// Visibility maps every location to shown (true) or hidden (false).
type Visibility map[Location]bool

// NewVisibility returns a map with every location hidden.
func NewVisibility() Visibility {
	v := make(Visibility, len(Locations))
	for _, l := range Locations {
		v[l] = false
	}
	return v
}

// Toggle flips one location bit.
func (v Visibility) Toggle(l Location) {
	v[l] = !v[l]
}

// Shown reports whether the field is visible at l.
func (v Visibility) Shown(l Location) bool {
	return v[l]
}

// Clone returns a copy carrying every location key.
func (v Visibility) Clone() Visibility {
	out := NewVisibility()
	for l, shown := range v {
		if l.Valid() {
			out[l] = shown
		}
	}
	return out
}

// UnmarshalJSON rejects unknown location keys and fills missing ones.
func (v *Visibility) UnmarshalJSON(data []byte) error {
	var raw map[string]bool
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := NewVisibility()
	for k, shown := range raw {
		l, err := ParseLocation(k)
		if err != nil {
			return err
		}
		out[l] = shown
	}
	*v = out
	return nil
}
