package attribution

import (
	"testing"
	"time"
)

var (
	studentIdentity = PartyIdentity{IDs: []string{"p-student", "u-student"}, Names: []string{"Alex Rivera"}}
	tutorIdentity   = PartyIdentity{IDs: []string{"p-tutor", "u-tutor"}, Names: []string{"Jane Doe"}}
)

func at(day, hour int) time.Time {
	return time.Date(2026, 4, day, hour, 0, 0, 0, time.UTC)
}

func boolPtr(v bool) *bool { return &v }

func TestClassify_MixedHistory(t *testing.T) {
	sessions := []Session{
		{ID: "s1", StartTime: at(1, 9), Status: "COMPLETED"},
		{ID: "s2", StartTime: at(2, 9), Status: "COMPLETED"},
		{ID: "s3", StartTime: at(3, 9), Status: "completed"},
		{ID: "s4", StartTime: at(4, 9), Status: "CANCELLED", CancelledBy: "u-tutor"},
		{ID: "s5", StartTime: at(5, 9), Status: "CANCELLED", CancelledBy: "p-tutor"},
		{ID: "s6", StartTime: at(6, 9), Status: "NOT_CONDUCTED", CancelledByName: "cancelled by Alex Rivera"},
		{ID: "s7", StartTime: at(7, 9), Status: "SOMETHING_ELSE"},
	}

	stats := Classify(sessions, studentIdentity, tutorIdentity)

	if stats.Completed.Total != 3 {
		t.Errorf("expected 3 completed, got %d", stats.Completed.Total)
	}
	if stats.Cancelled.Total != 2 || stats.Cancelled.Tutor != 2 {
		t.Errorf("expected 2 cancelled attributed to tutor, got %+v", stats.Cancelled)
	}
	if stats.NotConducted.Total != 1 || stats.NotConducted.Student != 1 {
		t.Errorf("expected 1 not-conducted attributed to student, got %+v", stats.NotConducted)
	}
	if stats.Rejected.Total != 1 {
		t.Errorf("expected unrecognized status in rejected, got %d", stats.Rejected.Total)
	}
	if got := stats.TotalSessions(); got != len(sessions) {
		t.Errorf("expected bucket totals to sum to %d, got %d", len(sessions), got)
	}
	if len(stats.Timeline) != len(sessions) {
		t.Errorf("expected every session on the timeline, got %d", len(stats.Timeline))
	}
}

func TestClassify_TimelineDescending(t *testing.T) {
	sessions := []Session{
		{ID: "old", StartTime: at(1, 9), Status: "COMPLETED"},
		{ID: "newest", StartTime: at(9, 9), Status: "CANCELLED"},
		{ID: "mid", StartTime: at(5, 9), Status: "DISPUTED"},
	}

	stats := Classify(sessions, studentIdentity, tutorIdentity)

	want := []string{"newest", "mid", "old"}
	for i, id := range want {
		if stats.Timeline[i].ID != id {
			t.Fatalf("timeline[%d]: expected %s, got %s", i, id, stats.Timeline[i].ID)
		}
	}
}

func TestAttribute_AbsenceFlagsWinOverFreeText(t *testing.T) {
	sess := Session{
		Status:        "CANCELLED",
		StudentAbsent: boolPtr(true),
		CancelledBy:   "p-tutor",
	}

	stats := Classify([]Session{sess}, studentIdentity, tutorIdentity)

	if stats.Cancelled.Student != 1 {
		t.Errorf("expected the absence flag to override the actor id, got %+v", stats.Cancelled)
	}
}

func TestAttribute_FlagsBothFalseFallThrough(t *testing.T) {
	sess := Session{
		Status:        "CANCELLED",
		StudentAbsent: boolPtr(false),
		TutorAbsent:   boolPtr(false),
		CancelledBy:   "u-student",
	}

	stats := Classify([]Session{sess}, studentIdentity, tutorIdentity)

	if stats.Cancelled.Student != 1 {
		t.Errorf("expected fallthrough to the actor id, got %+v", stats.Cancelled)
	}
}

func TestAttribute_IDMatchBeforeNameMatch(t *testing.T) {
	// The actor id resolves to the tutor even though the free-text name
	// would match the student.
	sess := Session{
		Status:          "CANCELLED",
		CancelledBy:     "p-tutor",
		CancelledByName: "Alex Rivera",
	}

	stats := Classify([]Session{sess}, studentIdentity, tutorIdentity)

	if stats.Cancelled.Tutor != 1 {
		t.Errorf("expected id match to win, got %+v", stats.Cancelled)
	}
}

func TestAttribute_NameSubstring(t *testing.T) {
	sess := Session{
		Status:          "NOT_CONDUCTED",
		CancelledByName: "jane doe (tutor)",
	}

	stats := Classify([]Session{sess}, studentIdentity, tutorIdentity)

	if stats.NotConducted.Tutor != 1 {
		t.Errorf("expected substring name match, got %+v", stats.NotConducted)
	}
}

func TestAttribute_NothingResolvableIsUnknown(t *testing.T) {
	sessions := []Session{
		{Status: "CANCELLED"},
		{Status: "CANCELLED", CancelledBy: "someone-else", CancelledByName: "Sam Smith"},
	}

	stats := Classify(sessions, studentIdentity, tutorIdentity)

	if stats.Cancelled.Unknown != 2 {
		t.Errorf("expected both sessions unknown, got %+v", stats.Cancelled)
	}
}

func TestClassify_Empty(t *testing.T) {
	stats := Classify(nil, studentIdentity, tutorIdentity)

	if stats.TotalSessions() != 0 {
		t.Errorf("expected zero totals, got %d", stats.TotalSessions())
	}
	if len(stats.Timeline) != 0 {
		t.Errorf("expected empty timeline")
	}
}
