package prospects

import (
	"time"

	"github.com/openharvest/outreach-platform/internal/aireview"
	"github.com/openharvest/outreach-platform/internal/store"
)

// Status is a prospect's lifecycle stage. It only ever changes through
// an explicit user action; the cycle New -> FollowedUp -> Member ->
// New is the single manual toggle.
type Status string

const (
	StatusNew        Status = "New"
	StatusFollowedUp Status = "FollowedUp"
	StatusMember     Status = "Member"
)

// Next returns the following stage in the manual cycle.
func (s Status) Next() Status {
	switch s {
	case StatusNew:
		return StatusFollowedUp
	case StatusFollowedUp:
		return StatusMember
	default:
		return StatusNew
	}
}

// FollowUp records a subsequent contact with a prospect. Immutable
// once appended.
type FollowUp struct {
	ID         string    `json:"id"`
	Date       time.Time `json:"date"`
	Notes      string    `json:"notes"`
	RecordedBy string    `json:"recordedBy"`
}

// Prospect is a person logged as contacted during outreach. The
// address and coordinates are mutually exclusive in practice but the
// schema does not enforce it.
type Prospect struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Phone        string           `json:"phone,omitempty"`
	Notes        string           `json:"notes,omitempty"`
	Review       *aireview.Review `json:"review,omitempty"`
	FollowUps    []FollowUp       `json:"followUps"`
	Status       Status           `json:"status"`
	WantsBaptism bool             `json:"wantsBaptism"`
	Address      string           `json:"address,omitempty"`
	Latitude     *float64         `json:"latitude,omitempty"`
	Longitude    *float64         `json:"longitude,omitempty"`
	PhotoDataURI string           `json:"photo,omitempty"`
	AssignedID   string           `json:"assignedId,omitempty"`
	AssignedName string           `json:"assignedName,omitempty"`
	RecordedBy   string           `json:"recordedBy"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// prospectToRecord maps a Prospect onto the sanitized document shape.
func prospectToRecord(p *Prospect) store.Record {
	rec := store.Record{
		"id":           p.ID,
		"name":         p.Name,
		"status":       string(p.Status),
		"wantsBaptism": p.WantsBaptism,
		"recordedBy":   p.RecordedBy,
		"createdAt":    p.CreatedAt.UTC().Format(time.RFC3339Nano),
		"followUps":    followUpsToRecords(p.FollowUps),
	}
	if p.Phone != "" {
		rec["phone"] = p.Phone
	}
	if p.Notes != "" {
		rec["notes"] = p.Notes
	}
	if p.Review != nil {
		rec["review"] = reviewToRecord(*p.Review)
	}
	if p.Address != "" {
		rec["address"] = p.Address
	}
	if p.Latitude != nil {
		rec["latitude"] = *p.Latitude
	}
	if p.Longitude != nil {
		rec["longitude"] = *p.Longitude
	}
	if p.PhotoDataURI != "" {
		rec["photo"] = p.PhotoDataURI
	}
	if p.AssignedID != "" {
		rec["assignedId"] = p.AssignedID
		rec["assignedName"] = p.AssignedName
	}
	return rec
}

func reviewToRecord(r aireview.Review) map[string]any {
	return map[string]any{
		"hungerLevel":    string(r.HungerLevel),
		"suggestedVerse": r.SuggestedVerse,
		"nextAction":     r.NextAction,
		"summary":        r.Summary,
	}
}

func followUpsToRecords(fs []FollowUp) []any {
	out := make([]any, 0, len(fs))
	for _, f := range fs {
		out = append(out, map[string]any{
			"id":         f.ID,
			"date":       f.Date.UTC().Format(time.RFC3339Nano),
			"notes":      f.Notes,
			"recordedBy": f.RecordedBy,
		})
	}
	return out
}

func prospectFromRecord(rec store.Record) *Prospect {
	p := &Prospect{
		ID:           recString(rec, "id"),
		Name:         recString(rec, "name"),
		Phone:        recString(rec, "phone"),
		Notes:        recString(rec, "notes"),
		Status:       Status(recString(rec, "status")),
		RecordedBy:   recString(rec, "recordedBy"),
		Address:      recString(rec, "address"),
		PhotoDataURI: recString(rec, "photo"),
		AssignedID:   recString(rec, "assignedId"),
		AssignedName: recString(rec, "assignedName"),
		FollowUps:    []FollowUp{},
	}
	if v, ok := rec["wantsBaptism"].(bool); ok {
		p.WantsBaptism = v
	}
	if v, ok := recFloat(rec, "latitude"); ok {
		p.Latitude = &v
	}
	if v, ok := recFloat(rec, "longitude"); ok {
		p.Longitude = &v
	}
	if ts, err := time.Parse(time.RFC3339Nano, recString(rec, "createdAt")); err == nil {
		p.CreatedAt = ts
	}
	if m, ok := rec["review"].(map[string]any); ok {
		p.Review = &aireview.Review{
			HungerLevel:    aireview.HungerLevel(mapString(m, "hungerLevel")),
			SuggestedVerse: mapString(m, "suggestedVerse"),
			NextAction:     mapString(m, "nextAction"),
			Summary:        mapString(m, "summary"),
		}
	}
	if list, ok := rec["followUps"].([]any); ok {
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			f := FollowUp{
				ID:         mapString(m, "id"),
				Notes:      mapString(m, "notes"),
				RecordedBy: mapString(m, "recordedBy"),
			}
			if ts, err := time.Parse(time.RFC3339Nano, mapString(m, "date")); err == nil {
				f.Date = ts
			}
			p.FollowUps = append(p.FollowUps, f)
		}
	}
	return p
}

func recString(rec store.Record, key string) string {
	s, _ := rec[key].(string)
	return s
}

func mapString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func recFloat(rec store.Record, key string) (float64, bool) {
	switch v := rec[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
