package attribution

import (
	"sort"
	"strings"
)

// Classify buckets every session into exactly one of the five categories
// and attributes responsibility for cancelled and not-conducted sessions.
// The classification is best-effort: explicit absence booleans win over
// free-text actor references, id matches win over name matches, and
// anything unresolvable is tagged unknown rather than guessed.
func Classify(sessions []Session, student, tutor PartyIdentity) Statistics {
	var stats Statistics

	for _, sess := range sessions {
		cs := ClassifiedSession{Session: sess}
		switch normalizeStatus(sess.Status) {
		case SessionCompleted:
			cs.Bucket = BucketCompleted
			stats.Completed.add(cs)
		case SessionCancelled:
			cs.Bucket = BucketCancelled
			cs.Responsibility = attribute(sess, student, tutor)
			stats.Cancelled.add(cs)
		case SessionNotConducted:
			cs.Bucket = BucketNotConducted
			cs.Responsibility = attribute(sess, student, tutor)
			stats.NotConducted.add(cs)
		case SessionDisputed:
			cs.Bucket = BucketDispute
			stats.Dispute.add(cs)
		default:
			// Unrecognized statuses land here so no record is lost.
			cs.Bucket = BucketRejected
			stats.Rejected.add(cs)
		}
		stats.Timeline = append(stats.Timeline, cs)
	}

	sortByStartDesc(stats.Completed.Sessions)
	sortByStartDesc(stats.Cancelled.Sessions)
	sortByStartDesc(stats.NotConducted.Sessions)
	sortByStartDesc(stats.Dispute.Sessions)
	sortByStartDesc(stats.Rejected.Sessions)
	sortByStartDesc(stats.Timeline)

	return stats
}

// attribute resolves who is responsible for an absence or cancellation.
func attribute(sess Session, student, tutor PartyIdentity) Responsibility {
	if sess.StudentAbsent != nil || sess.TutorAbsent != nil {
		switch {
		case sess.StudentAbsent != nil && *sess.StudentAbsent:
			return ByStudent
		case sess.TutorAbsent != nil && *sess.TutorAbsent:
			return ByTutor
		}
		// Flags present but both false: fall through to free text.
	}

	actor := strings.TrimSpace(sess.CancelledBy)
	name := strings.TrimSpace(sess.CancelledByName)
	if actor == "" && name == "" {
		return Unknown
	}

	if actor != "" {
		if matchesID(actor, student) {
			return ByStudent
		}
		if matchesID(actor, tutor) {
			return ByTutor
		}
	}
	for _, ref := range []string{actor, name} {
		if ref == "" {
			continue
		}
		if matchesName(ref, student) {
			return ByStudent
		}
		if matchesName(ref, tutor) {
			return ByTutor
		}
	}
	return Unknown
}

func matchesID(ref string, p PartyIdentity) bool {
	for _, id := range p.IDs {
		if id != "" && strings.EqualFold(ref, id) {
			return true
		}
	}
	return false
}

// matchesName tries exact then substring matching, case-insensitively.
// Substring matching tolerates upstream values like "cancelled by Jane D.".
func matchesName(ref string, p PartyIdentity) bool {
	lowRef := strings.ToLower(ref)
	for _, n := range p.Names {
		if n == "" {
			continue
		}
		lowName := strings.ToLower(n)
		if lowRef == lowName || strings.Contains(lowRef, lowName) || strings.Contains(lowName, lowRef) {
			return true
		}
	}
	return false
}

func normalizeStatus(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

func sortByStartDesc(sessions []ClassifiedSession) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].StartTime.After(sessions[j].StartTime)
	})
}

func (b *PlainBucket) add(cs ClassifiedSession) {
	b.Total++
	b.Sessions = append(b.Sessions, cs)
}

func (b *AttributedBucket) add(cs ClassifiedSession) {
	b.Total++
	switch cs.Responsibility {
	case ByStudent:
		b.Student++
	case ByTutor:
		b.Tutor++
	default:
		b.Unknown++
	}
	b.Sessions = append(b.Sessions, cs)
}
