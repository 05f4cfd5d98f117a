package flashcards

import (
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/imitation/backend/internal/apperrors"
)

func TestNewIntervalAcceptsUnitAliases(t *testing.T) {
	testCases := []struct {
		value int
		unit  string
		want  time.Duration
	}{
		{value: 30, unit: "min", want: 30 * time.Minute},
		{value: 1, unit: "minutes", want: time.Minute},
		{value: 2, unit: "hr", want: 2 * time.Hour},
		{value: 3, unit: "Hours", want: 3 * time.Hour},
		{value: 1, unit: "day", want: 24 * time.Hour},
		{value: 365, unit: "days", want: 365 * 24 * time.Hour},
	}
	for _, testCase := range testCases {
		interval, err := NewInterval(testCase.value, testCase.unit)
		if err != nil {
			t.Fatalf("NewInterval(%d, %q) failed: %v", testCase.value, testCase.unit, err)
		}
		if got := interval.Duration(); got != testCase.want {
			t.Fatalf("NewInterval(%d, %q).Duration() = %s, want %s", testCase.value, testCase.unit, got, testCase.want)
		}
	}
}

func TestNewIntervalRejectsOutOfRangeInput(t *testing.T) {
	testCases := []struct {
		value int
		unit  string
	}{
		{value: 0, unit: "min"},
		{value: 366, unit: "day"},
		{value: -1, unit: "hr"},
		{value: 5, unit: "week"},
		{value: 5, unit: ""},
	}
	for _, testCase := range testCases {
		if _, err := NewInterval(testCase.value, testCase.unit); !apperrors.Is(err, apperrors.KindValidation) {
			t.Fatalf("NewInterval(%d, %q): expected validation error, got %v", testCase.value, testCase.unit, err)
		}
	}
}

func TestStateOfDistinguishesMissingRecord(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	unreviewed := StateOf(nil)
	if unreviewed.Status() != StatusNew || unreviewed.ReviewCount() != 0 || unreviewed.NextReviewAt() != nil {
		t.Fatalf("unexpected unreviewed state %+v", unreviewed)
	}
	if !unreviewed.IsDue(now) {
		t.Fatalf("an unreviewed card must always be due")
	}

	future := StateOf(&StudyQueue{Status: StatusLearning, ReviewCount: 1, NextReviewAt: now.Add(time.Minute)})
	if future.IsDue(now) {
		t.Fatalf("a card scheduled in the future must not be due")
	}
	exact := StateOf(&StudyQueue{Status: StatusLearning, ReviewCount: 1, NextReviewAt: now})
	if !exact.IsDue(now) {
		t.Fatalf("a card scheduled exactly now must be due")
	}
}

func TestApplyReviewFirstReviewStartsLearning(t *testing.T) {
	reviewedAt := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	interval, err := NewInterval(30, "min")
	if err != nil {
		t.Fatalf("interval: %v", err)
	}

	record := applyReview(Unreviewed{}, 7, 3, interval, reviewedAt)
	if record.ReviewCount != 1 || record.Status != StatusLearning {
		t.Fatalf("unexpected first review record %+v", record)
	}
	if !record.NextReviewAt.Equal(reviewedAt.Add(30 * time.Minute)) {
		t.Fatalf("expected next review at T+30m, got %s", record.NextReviewAt)
	}
	if !record.LastReviewedAt.Equal(reviewedAt) || record.CardID != 7 || record.UserID != 3 {
		t.Fatalf("unexpected record identity or timestamp %+v", record)
	}
}

func TestApplyReviewPromotesAfterThirdReviewAndNeverReverts(t *testing.T) {
	reviewedAt := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	short, _ := NewInterval(1, "min")
	long, _ := NewInterval(7, "day")

	var state ReviewState = Unreviewed{}
	wantStatuses := []Status{StatusLearning, StatusLearning, StatusLearning, StatusReviewed, StatusReviewed, StatusReviewed}
	for index, want := range wantStatuses {
		interval := long
		if index%2 == 0 {
			interval = short
		}
		previous := state.ReviewCount()
		record := applyReview(state, 1, 1, interval, reviewedAt)
		if record.ReviewCount != previous+1 {
			t.Fatalf("review %d: count went from %d to %d", index+1, previous, record.ReviewCount)
		}
		if record.Status != want {
			t.Fatalf("review %d: status %s, want %s", index+1, record.Status, want)
		}
		if !record.NextReviewAt.Equal(reviewedAt.Add(interval.Duration())) {
			t.Fatalf("review %d: next review not refreshed", index+1)
		}
		state = Tracked{Record: record}
		reviewedAt = reviewedAt.Add(time.Hour)
	}
}

func TestCountStatesSumsToTotal(t *testing.T) {
	states := []ReviewState{
		Unreviewed{},
		Unreviewed{},
		Tracked{Record: StudyQueue{Status: StatusLearning, ReviewCount: 2}},
		Tracked{Record: StudyQueue{Status: StatusReviewed, ReviewCount: 5}},
	}
	counts := countStates(states)
	if counts.Total != 4 || counts.New != 2 || counts.Learning != 1 || counts.Reviewed != 1 {
		t.Fatalf("unexpected counts %+v", counts)
	}
	if counts.New+counts.Learning+counts.Reviewed != counts.Total {
		t.Fatalf("counts do not sum to total: %+v", counts)
	}
}
