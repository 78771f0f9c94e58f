package fusion

import (
	"fmt"
	"sort"
	"strings"

	"github.com/classlens/classroom-transcriber/internal/types"
)

// Span is a time interval in seconds.
type Span struct {
	Start float64
	End   float64
}

// ErrInvalidInterval reports a turn or segment whose bounds are not a valid
// interval (end before start, or negative start).
type ErrInvalidInterval struct {
	Kind  string // "turn" or "segment"
	Index int
	Start float64
	End   float64
}

func (e *ErrInvalidInterval) Error() string {
	return fmt.Sprintf("invalid %s [%d]: start=%.3f end=%.3f", e.Kind, e.Index, e.Start, e.End)
}

// OverlapDurations computes, for one transcription span, the total overlap
// duration against every diarization turn, keyed by speaker. A speaker with
// several turns overlapping the span has its durations summed. Speakers with
// no positive overlap do not appear in the result; a zero-length span
// overlaps nothing.
func OverlapDurations(span Span, turns []types.SpeakerTurn) map[string]float64 {
	overlaps := make(map[string]float64)
	for _, turn := range turns {
		start := span.Start
		if turn.Start > start {
			start = turn.Start
		}
		end := span.End
		if turn.End < end {
			end = turn.End
		}
		if d := end - start; d > 0 {
			overlaps[turn.Speaker] += d
		}
	}
	return overlaps
}

// DominantSpeaker returns the speaker with the largest accumulated overlap.
// Ties are broken toward the lexicographically smallest speaker id so the
// result is deterministic regardless of map iteration order. An empty map
// yields types.UnknownSpeaker.
func DominantSpeaker(overlaps map[string]float64) string {
	return argmax(overlaps)
}

// argmax returns the key with the maximal value, smallest key winning ties,
// or types.UnknownSpeaker for an empty map.
func argmax(totals map[string]float64) string {
	keys := make([]string, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	best := types.UnknownSpeaker
	bestTotal := 0.0
	for i, k := range keys {
		if i == 0 || totals[k] > bestTotal {
			best = k
			bestTotal = totals[k]
		}
	}
	return best
}

// Fuse attributes each transcription segment to its dominant speaker.
// The output is 1:1 with the input segments, in the same order, with
// utterance text trimmed of surrounding whitespace. Every segment is matched
// against the full turn set; turns are never consumed. Structurally invalid
// turns or segments are rejected rather than allowed to produce negative
// durations.
func Fuse(segments []types.Segment, turns []types.SpeakerTurn) ([]types.Utterance, error) {
	for i, turn := range turns {
		if turn.Start < 0 || turn.End < turn.Start {
			return nil, &ErrInvalidInterval{Kind: "turn", Index: i, Start: turn.Start, End: turn.End}
		}
	}
	for i, seg := range segments {
		if seg.Start < 0 || seg.End < seg.Start {
			return nil, &ErrInvalidInterval{Kind: "segment", Index: i, Start: seg.Start, End: seg.End}
		}
	}

	utterances := make([]types.Utterance, 0, len(segments))
	for _, seg := range segments {
		overlaps := OverlapDurations(Span{Start: seg.Start, End: seg.End}, turns)
		utterances = append(utterances, types.Utterance{
			Start:   seg.Start,
			End:     seg.End,
			Text:    strings.TrimSpace(seg.Text),
			Speaker: DominantSpeaker(overlaps),
		})
	}
	return utterances, nil
}
