package app

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"math/rand/v2"
	"sort"
	"strconv"

	"quiz-platform/internal/domain"
)

// DefaultSelectionSize is how many questions a user sees per quiz.
const DefaultSelectionSize = 5

// Selector picks a deterministic per-user subset of a quiz's questions.
// The generator is seeded from an HMAC of quiz and user IDs under a server secret,
// so the same user always sees the same questions and option order while other
// users cannot predict it.
type Selector struct {
	secret []byte
	size   int
}

func NewSelector(secret string, size int) *Selector {
	if size <= 0 {
		size = DefaultSelectionSize
	}
	return &Selector{secret: []byte(secret), size: size}
}

// Select returns the questions userID gets for quiz, each with shuffled options.
func (s *Selector) Select(quiz domain.Quiz, userID int64) []domain.Question {
	questions := append([]domain.Question(nil), quiz.Questions...)
	sortByPosition(questions)

	rng := s.rng(quiz.ID, userID)
	selected := questions
	if len(questions) > s.size {
		selected = make([]domain.Question, 0, s.size)
		for _, i := range rng.Perm(len(questions))[:s.size] {
			selected = append(selected, questions[i])
		}
		if !quiz.ShuffleQuestions {
			sortByPosition(selected)
		}
	}

	out := make([]domain.Question, len(selected))
	for i, q := range selected {
		opts := append([]domain.Option(nil), q.Options...)
		rng.Shuffle(len(opts), func(a, b int) { opts[a], opts[b] = opts[b], opts[a] })
		q.Options = opts
		out[i] = q
	}
	return out
}

// QuestionIDs lists the selected question IDs in presentation order.
func QuestionIDs(questions []domain.Question) []int64 {
	ids := make([]int64, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}
	return ids
}

func (s *Selector) rng(quizID, userID int64) *rand.Rand {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(strconv.FormatInt(quizID, 10) + ":" + strconv.FormatInt(userID, 10)))
	sum := mac.Sum(nil)
	return rand.New(rand.NewPCG(binary.BigEndian.Uint64(sum[:8]), binary.BigEndian.Uint64(sum[8:16])))
}

func sortByPosition(qs []domain.Question) {
	sort.SliceStable(qs, func(i, j int) bool {
		if qs[i].Position != qs[j].Position {
			return qs[i].Position < qs[j].Position
		}
		return qs[i].ID < qs[j].ID
	})
}

// PublicQuestion is a question as shown to a quiz taker, without answer keys.
type PublicQuestion struct {
	ID      int64               `json:"id"`
	Type    domain.QuestionType `json:"type"`
	Text    string              `json:"text"`
	Points  int                 `json:"points"`
	Options []PublicOption      `json:"options"`
}

type PublicOption struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// Publicize strips correctness flags from questions.
func Publicize(questions []domain.Question) []PublicQuestion {
	out := make([]PublicQuestion, 0, len(questions))
	for _, q := range questions {
		pq := PublicQuestion{ID: q.ID, Type: q.Type, Text: q.Text, Points: q.Worth(), Options: []PublicOption{}}
		// free-text options are the accepted answers, never shown
		if q.Type != domain.QuestionFreeText {
			for _, o := range q.Options {
				pq.Options = append(pq.Options, PublicOption{ID: o.ID, Text: o.Text})
			}
		}
		out = append(out, pq)
	}
	return out
}
