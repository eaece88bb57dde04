// Package scoring grades exam submissions against an answer key.
//
// Grading is a pure function: no I/O, deterministic, safe to call from the
// interactive submit path and from offline re-grading alike.
package scoring

import (
	"github.com/google/uuid"
)

// QuestionKey is the grading key for a single exam question.
type QuestionKey struct {
	QuestionID       uuid.UUID   `json:"question_id"`
	Points           float64     `json:"points"`
	CorrectOptionIDs []uuid.UUID `json:"correct"`
}

// QuestionOutcome is the graded result for one exam question.
type QuestionOutcome struct {
	QuestionID uuid.UUID
	Correct    bool
	Awarded    float64
}

// Result aggregates a graded submission.
type Result struct {
	Score          float64
	MaxScore       float64
	TotalCorrect   int
	TotalQuestions int
	Outcomes       []QuestionOutcome
}

// Grade scores a submission against the exam's answer key.
//
// A question is correct only when the submitted option set equals the
// correct set exactly — a strict subset or superset scores zero. Questions
// in the submission that are not part of the key are ignored. Questions in
// the key with no submitted answer score zero.
func Grade(key []QuestionKey, submitted map[uuid.UUID][]uuid.UUID) Result {
	res := Result{
		TotalQuestions: len(key),
		Outcomes:       make([]QuestionOutcome, 0, len(key)),
	}

	for _, q := range key {
		res.MaxScore += q.Points

		outcome := QuestionOutcome{QuestionID: q.QuestionID}
		if SetsEqual(submitted[q.QuestionID], q.CorrectOptionIDs) {
			outcome.Correct = true
			outcome.Awarded = q.Points
			res.Score += q.Points
			res.TotalCorrect++
		}
		res.Outcomes = append(res.Outcomes, outcome)
	}

	return res
}

// SetsEqual reports whether two option-ID slices contain the same set of
// IDs, ignoring order and duplicates.
func SetsEqual(a, b []uuid.UUID) bool {
	as := toSet(a)
	bs := toSet(b)
	if len(as) != len(bs) {
		return false
	}
	for id := range as {
		if _, ok := bs[id]; !ok {
			return false
		}
	}
	return true
}

func toSet(ids []uuid.UUID) map[uuid.UUID]struct{} {
	s := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}
