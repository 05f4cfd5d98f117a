package flashcards

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/imitation/backend/internal/apperrors"
)

const (
	opInterval = "flashcards.interval"

	minIntervalValue = 1
	maxIntervalValue = 365

	// Reviews past this count promote a card to reviewed.
	reviewedThreshold = 3
)

// ReviewState is either Unreviewed or Tracked. Build it with StateOf.
type ReviewState interface {
	Status() Status
	ReviewCount() int
	NextReviewAt() *time.Time
	LastReviewedAt() *time.Time
	IsDue(now time.Time) bool
}

// Unreviewed is a card the user has never reviewed.
type Unreviewed struct{}

func (Unreviewed) Status() Status { return StatusNew }
func (Unreviewed) ReviewCount() int { return 0 }
func (Unreviewed) NextReviewAt() *time.Time { return nil }
func (Unreviewed) LastReviewedAt() *time.Time { return nil }
func (Unreviewed) IsDue(time.Time) bool { return true }

// Tracked is a card with a stored study record.
type Tracked struct {
	Record StudyQueue
}

func (t Tracked) Status() Status { return t.Record.Status }
func (t Tracked) ReviewCount() int { return t.Record.ReviewCount }

func (t Tracked) NextReviewAt() *time.Time {
	next := t.Record.NextReviewAt
	return &next
}

func (t Tracked) LastReviewedAt() *time.Time {
	last := t.Record.LastReviewedAt
	return &last
}

func (t Tracked) IsDue(now time.Time) bool {
	return !t.Record.NextReviewAt.After(now)
}

// StateOf maps an optional study record to its review state.
func StateOf(record *StudyQueue) ReviewState {
	if record == nil {
		return Unreviewed{}
	}
	return Tracked{Record: *record}
}

// Interval is the delay until the next review.
type Interval struct {
	Value int
	Unit  time.Duration
}

// NewInterval validates a delay magnitude (1..365) and unit name.
func NewInterval(value int, unit string) (Interval, error) {
	if value < minIntervalValue || value > maxIntervalValue {
		return Interval{}, apperrors.New(apperrors.KindValidation, opInterval, "invalid_value",
			fmt.Sprintf("remind_value must be between %d and %d", minIntervalValue, maxIntervalValue), nil)
	}
	duration, ok := unitDuration(unit)
	if !ok {
		return Interval{}, apperrors.New(apperrors.KindValidation, opInterval, "invalid_unit",
			"remind_unit must be one of min, hr, day", nil)
	}
	return Interval{Value: value, Unit: duration}, nil
}

// Duration is the total delay.
func (i Interval) Duration() time.Duration {
	return time.Duration(i.Value) * i.Unit
}

func unitDuration(unit string) (time.Duration, bool) {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "min", "minute", "minutes":
		return time.Minute, true
	case "hr", "hour", "hours":
		return time.Hour, true
	case "day", "days":
		return 24 * time.Hour, true
	default:
		return 0, false
	}
}

// applyReview computes the study record after one review at now.
func applyReview(state ReviewState, cardID, userID uint, interval Interval, now time.Time) StudyQueue {
	next := now.Add(interval.Duration())
	switch current := state.(type) {
	case Tracked:
		record := current.Record
		if record.ReviewCount < reviewedThreshold {
			record.Status = StatusLearning
		} else {
			record.Status = StatusReviewed
		}
		record.ReviewCount++
		record.LastReviewedAt = now
		record.NextReviewAt = next
		return record
	default:
		return StudyQueue{
			CardID:         cardID,
			UserID:         userID,
			Status:         StatusLearning,
			NextReviewAt:   next,
			LastReviewedAt: now,
			ReviewCount:    1,
		}
	}
}

// countStates partitions card states by status.
func countStates(states []ReviewState) StatusCounts {
	counts := StatusCounts{Total: len(states)}
	for _, state := range states {
		switch state.Status() {
		case StatusLearning:
			counts.Learning++
		case StatusReviewed:
			counts.Reviewed++
		default:
			counts.New++
		}
	}
	return counts
}
