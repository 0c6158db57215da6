package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/tutorhive/matching-api/internal/models"
	appErrors "github.com/tutorhive/matching-api/pkg/errors"
)

type conflictCandidateLister interface {
	ListConflictCandidates(ctx context.Context, tutorID, subject, educationLevel string, mode models.ClassMode) ([]models.ConflictCandidate, error)
}

// ClassProposal describes a class about to be created, checked against
// the tutor's existing classes before the enrollment transaction runs.
type ClassProposal struct {
	TutorID        string
	Subject        string
	EducationLevel string
	Mode           models.ClassMode
	Budget         *int64
	Schedules      []models.WeeklyInterval
}

// ConflictDetector flags proposals that would duplicate an existing
// class of the tutor: same subject, level and mode, a price within
// tolerance of the budget, and at least one overlapping weekly slot.
type ConflictDetector struct {
	classes      conflictCandidateLister
	tolerancePct int64
	logger       *zap.Logger
}

// NewConflictDetector constructs the detector.
func NewConflictDetector(classes conflictCandidateLister, tolerancePct int, logger *zap.Logger) *ConflictDetector {
	if tolerancePct <= 0 {
		tolerancePct = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictDetector{classes: classes, tolerancePct: int64(tolerancePct), logger: logger}
}

// Check returns ErrScheduleConflict when the proposal collides with one
// of the tutor's live classes. A proposal without a budget never
// conflicts on price and is only compared on schedule.
func (d *ConflictDetector) Check(ctx context.Context, proposal ClassProposal) error {
	candidates, err := d.classes.ListConflictCandidates(ctx, proposal.TutorID, proposal.Subject, proposal.EducationLevel, proposal.Mode)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load candidate classes")
	}
	for _, candidate := range candidates {
		if !d.priceWithinTolerance(candidate.Class.Price, proposal.Budget) {
			continue
		}
		if conflicts(candidate.Rules, proposal.Schedules) {
			d.logger.Sugar().Infow("schedule conflict detected",
				"tutor_id", proposal.TutorID, "class_id", candidate.Class.ID, "subject", proposal.Subject)
			return appErrors.Clone(appErrors.ErrScheduleConflict, "tutor already teaches an equivalent class at this time")
		}
	}
	return nil
}

// priceWithinTolerance reports whether the class price sits within the
// configured percentage of the proposal budget. Proposals without a
// budget skip the price comparison entirely.
func (d *ConflictDetector) priceWithinTolerance(price, budget *int64) bool {
	if budget == nil {
		return true
	}
	if price == nil {
		return false
	}
	diff := *price - *budget
	if diff < 0 {
		diff = -diff
	}
	return diff*100 <= *budget*d.tolerancePct
}

func conflicts(rules []models.ClassScheduleRule, proposed []models.WeeklyInterval) bool {
	for _, rule := range rules {
		for _, interval := range proposed {
			if rule.WeeklyInterval.Overlaps(interval) {
				return true
			}
		}
	}
	return false
}
