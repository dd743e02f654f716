// Package shuffle produces the per-attempt question and choice orderings.
//
// Both functions are pure: the same definition and seed always yield the same
// permutation, so an attempt only needs to persist its seed (and, for
// questions, the resulting order) to reproduce what the student saw.
package shuffle

import (
	"encoding/binary"
	"math/rand/v2"
	"sort"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-live/internal/model"
)

// questionSalt separates the question stream from any choice stream.
const questionSalt uint64 = 0x9e3779b97f4a7c15

// Order returns the exam's question ids in the order an attempt seeded with
// seed must present them. With shuffling disabled it is the canonical order.
func Order(exam *model.Exam, seed int64) []uuid.UUID {
	ids := canonicalQuestions(exam.Questions)
	if exam.ShuffleQuestions {
		permute(ids, uint64(seed), questionSalt)
	}
	return ids
}

// OrderChoices returns the question's choice ids for an attempt seeded with
// seed. Each question gets an independent stream salted by its id.
func OrderChoices(q *model.Question, enabled bool, seed int64) []uuid.UUID {
	ids := canonicalChoices(q.Choices)
	if enabled {
		permute(ids, uint64(seed), saltFor(q.ID))
	}
	return ids
}

// NewSeed draws a fresh, unpredictable attempt seed.
func NewSeed() int64 {
	return rand.Int64()
}

// permute is an in-place Fisher–Yates shuffle over a PCG stream.
func permute(ids []uuid.UUID, seed, salt uint64) {
	r := rand.New(rand.NewPCG(seed, salt))
	r.Shuffle(len(ids), func(i, j int) {
		ids[i], ids[j] = ids[j], ids[i]
	})
}

func saltFor(id uuid.UUID) uint64 {
	return binary.BigEndian.Uint64(id[:8]) ^ binary.BigEndian.Uint64(id[8:])
}

func canonicalQuestions(questions []model.Question) []uuid.UUID {
	sorted := make([]model.Question, len(questions))
	copy(sorted, questions)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].OrderNum != sorted[j].OrderNum {
			return sorted[i].OrderNum < sorted[j].OrderNum
		}
		return sorted[i].ID.String() < sorted[j].ID.String()
	})

	ids := make([]uuid.UUID, len(sorted))
	for i, q := range sorted {
		ids[i] = q.ID
	}
	return ids
}

func canonicalChoices(choices []model.Choice) []uuid.UUID {
	sorted := make([]model.Choice, len(choices))
	copy(sorted, choices)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].OrderNum != sorted[j].OrderNum {
			return sorted[i].OrderNum < sorted[j].OrderNum
		}
		return sorted[i].ID.String() < sorted[j].ID.String()
	})

	ids := make([]uuid.UUID, len(sorted))
	for i, c := range sorted {
		ids[i] = c.ID
	}
	return ids
}
