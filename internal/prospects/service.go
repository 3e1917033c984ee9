package prospects

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openharvest/outreach-platform/internal/aireview"
	"github.com/openharvest/outreach-platform/internal/store"
	"github.com/openharvest/outreach-platform/pkg/logging"
)

// ErrNotFound indicates the prospect does not exist.
var ErrNotFound = errors.New("prospects: prospect not found")

// CreateRequest carries a "new outreach" submission.
type CreateRequest struct {
	Name         string   `json:"name"`
	Phone        string   `json:"phone,omitempty"`
	Notes        string   `json:"notes,omitempty"`
	Address      string   `json:"address,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	PhotoDataURI string   `json:"photo,omitempty"`
	WantsBaptism bool     `json:"wantsBaptism"`
}

// Validate checks required submission fields.
func (r *CreateRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("prospects: name is required")
	}
	return nil
}

// Service owns prospect lifecycle mutations. All storage goes through
// the persistence gateway; the service holds no backend specifics.
type Service struct {
	backend store.Backend
	reviews *aireview.Service
	logger  *logging.Logger
}

// NewService wires the prospect manager.
func NewService(backend store.Backend, reviews *aireview.Service, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{backend: backend, reviews: reviews, logger: logger}
}

// Create logs a new prospect. The AI review is attached synchronously
// before first persistence; if analysis degrades, the prospect is
// still saved with the default review and the degraded flag tells the
// caller to warn (not fail) the volunteer.
func (s *Service) Create(ctx context.Context, req CreateRequest, recordedBy string) (*Prospect, bool, error) {
	if err := req.Validate(); err != nil {
		return nil, false, err
	}

	result := s.reviews.Assess(ctx, req.Notes)

	p := &Prospect{
		ID:           uuid.New().String(),
		Name:         strings.TrimSpace(req.Name),
		Phone:        req.Phone,
		Notes:        req.Notes,
		Review:       &result.Review,
		FollowUps:    []FollowUp{},
		Status:       StatusNew,
		WantsBaptism: req.WantsBaptism,
		Address:      req.Address,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		PhotoDataURI: req.PhotoDataURI,
		RecordedBy:   recordedBy,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.backend.Put(ctx, store.CollectionProspects, p.ID, prospectToRecord(p)); err != nil {
		return nil, result.Degraded, fmt.Errorf("prospects: save failed: %w", err)
	}

	s.logger.Info("prospect created",
		"id", p.ID, "recorded_by", recordedBy, "review_degraded", result.Degraded)
	return p, result.Degraded, nil
}

// Get loads one prospect.
func (s *Service) Get(ctx context.Context, id string) (*Prospect, error) {
	rec, err := s.backend.Get(ctx, store.CollectionProspects, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return prospectFromRecord(rec), nil
}

// List returns all prospects, newest first.
func (s *Service) List(ctx context.Context) ([]*Prospect, error) {
	records, err := s.backend.List(ctx, store.CollectionProspects)
	if err != nil {
		return nil, err
	}
	out := make([]*Prospect, 0, len(records))
	for _, rec := range records {
		out = append(out, prospectFromRecord(rec))
	}
	return out, nil
}

// AddFollowUp prepends a new follow-up record, keeping the list newest
// first. Existing entries are never modified or removed.
func (s *Service) AddFollowUp(ctx context.Context, prospectID, notes, recordedBy string) (*Prospect, error) {
	if strings.TrimSpace(notes) == "" {
		return nil, errors.New("prospects: follow-up notes are required")
	}

	p, err := s.Get(ctx, prospectID)
	if err != nil {
		return nil, err
	}

	f := FollowUp{
		ID:         uuid.New().String(),
		Date:       time.Now().UTC(),
		Notes:      notes,
		RecordedBy: recordedBy,
	}
	p.FollowUps = append([]FollowUp{f}, p.FollowUps...)

	if err := s.backend.Patch(ctx, store.CollectionProspects, prospectID, store.Record{
		"followUps": followUpsToRecords(p.FollowUps),
	}); err != nil {
		return nil, fmt.Errorf("prospects: follow-up save failed: %w", err)
	}
	return p, nil
}

// CycleStatus advances the lifecycle stage one step around the manual
// cycle and returns the updated prospect.
func (s *Service) CycleStatus(ctx context.Context, prospectID string) (*Prospect, error) {
	p, err := s.Get(ctx, prospectID)
	if err != nil {
		return nil, err
	}

	p.Status = p.Status.Next()
	if err := s.backend.Patch(ctx, store.CollectionProspects, prospectID, store.Record{
		"status": string(p.Status),
	}); err != nil {
		return nil, err
	}
	return p, nil
}

// ToggleBaptism flips the baptism-interest flag.
func (s *Service) ToggleBaptism(ctx context.Context, prospectID string) (*Prospect, error) {
	p, err := s.Get(ctx, prospectID)
	if err != nil {
		return nil, err
	}

	p.WantsBaptism = !p.WantsBaptism
	if err := s.backend.Patch(ctx, store.CollectionProspects, prospectID, store.Record{
		"wantsBaptism": p.WantsBaptism,
	}); err != nil {
		return nil, err
	}
	return p, nil
}

// Assign sets or clears (empty userID) the responsible team member.
func (s *Service) Assign(ctx context.Context, prospectID, userID, userName string) (*Prospect, error) {
	p, err := s.Get(ctx, prospectID)
	if err != nil {
		return nil, err
	}

	p.AssignedID = userID
	p.AssignedName = userName
	if err := s.backend.Patch(ctx, store.CollectionProspects, prospectID, store.Record{
		"assignedId":   userID,
		"assignedName": userName,
	}); err != nil {
		return nil, err
	}
	return p, nil
}

// Subscribe registers for prospect collection snapshots.
func (s *Service) Subscribe(fn store.SubscriberFunc) func() {
	return s.backend.Subscribe(store.CollectionProspects, fn)
}
