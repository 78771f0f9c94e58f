package fusion

import (
	"fmt"

	"github.com/classlens/classroom-transcriber/internal/types"
)

// Role labels produced by AssignRoles.
const (
	RoleTeacher = "Teacher"
	RoleUnknown = "Unknown"
)

// AssignRoles infers classroom roles from aggregate talk time. The speaker
// with the largest total utterance duration becomes the Teacher; every other
// resolved speaker gets a "Student N" label numbered by order of first
// appearance; unattributed utterances are labeled Unknown.
//
// Unattributed talk time is tracked under the UNKNOWN sentinel but that
// sentinel is never eligible for the Teacher role, even when unmatched
// segments dominate the recording. Teacher ties break toward the
// lexicographically smallest speaker id. The function is pure: running it
// twice over the same input yields identical labels.
func AssignRoles(utterances []types.Utterance) []types.LabeledUtterance {
	talkTime := make(map[string]float64)
	for _, u := range utterances {
		talkTime[u.Speaker] += u.End - u.Start
	}
	delete(talkTime, types.UnknownSpeaker)

	teacher := argmax(talkTime)

	labeled := make([]types.LabeledUtterance, 0, len(utterances))
	students := make(map[string]string)
	nextStudent := 1
	for _, u := range utterances {
		var role string
		switch {
		case u.Speaker == types.UnknownSpeaker:
			role = RoleUnknown
		case u.Speaker == teacher:
			role = RoleTeacher
		default:
			if _, ok := students[u.Speaker]; !ok {
				students[u.Speaker] = fmt.Sprintf("Student %d", nextStudent)
				nextStudent++
			}
			role = students[u.Speaker]
		}
		labeled = append(labeled, types.LabeledUtterance{Utterance: u, Role: role})
	}
	return labeled
}
