package app_test

import (
	"reflect"
	"sort"
	"testing"

	"quiz-platform/internal/app"
	"quiz-platform/internal/domain"
)

func bankQuiz(n int) domain.Quiz {
	quiz := domain.Quiz{ID: 42, Title: "Bank"}
	for i := 1; i <= n; i++ {
		id := int64(i)
		quiz.Questions = append(quiz.Questions, domain.Question{
			ID:       id,
			QuizID:   42,
			Type:     domain.QuestionSingleSelect,
			Position: i,
			Options: []domain.Option{
				{ID: id*100 + 1, IsCorrect: true},
				{ID: id*100 + 2},
				{ID: id*100 + 3},
				{ID: id*100 + 4},
			},
		})
	}
	return quiz
}

func TestSelectReturnsFiveDeterministically(t *testing.T) {
	sel := app.NewSelector("secret", 0)
	quiz := bankQuiz(12)

	first := sel.Select(quiz, 7)
	if len(first) != app.DefaultSelectionSize {
		t.Fatalf("expected %d questions, got %d", app.DefaultSelectionSize, len(first))
	}
	for i := 0; i < 10; i++ {
		again := sel.Select(quiz, 7)
		if !reflect.DeepEqual(app.QuestionIDs(first), app.QuestionIDs(again)) {
			t.Fatalf("selection changed between calls: %v vs %v", app.QuestionIDs(first), app.QuestionIDs(again))
		}
		for j := range first {
			if !reflect.DeepEqual(optionIDs(first[j]), optionIDs(again[j])) {
				t.Fatalf("option order changed for question %d", first[j].ID)
			}
		}
	}

	seen := map[int64]bool{}
	for _, q := range first {
		if seen[q.ID] {
			t.Fatalf("question %d selected twice", q.ID)
		}
		seen[q.ID] = true
	}
}

func TestSelectReturnsAllWhenBankIsSmall(t *testing.T) {
	sel := app.NewSelector("secret", 5)
	quiz := bankQuiz(3)

	got := sel.Select(quiz, 1)
	if len(got) != 3 {
		t.Fatalf("expected all 3 questions, got %d", len(got))
	}
	if ids := app.QuestionIDs(got); !reflect.DeepEqual(ids, []int64{1, 2, 3}) {
		t.Fatalf("expected position order, got %v", ids)
	}
	for _, q := range got {
		ids := optionIDs(q)
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		if !reflect.DeepEqual(ids, []int64{q.ID*100 + 1, q.ID*100 + 2, q.ID*100 + 3, q.ID*100 + 4}) {
			t.Fatalf("options lost or duplicated while shuffling: %v", ids)
		}
	}
}

func TestSelectVariesAcrossUsers(t *testing.T) {
	sel := app.NewSelector("secret", 5)
	quiz := bankQuiz(20)

	base := app.QuestionIDs(sel.Select(quiz, 1))
	for user := int64(2); user < 30; user++ {
		if !reflect.DeepEqual(base, app.QuestionIDs(sel.Select(quiz, user))) {
			return
		}
	}
	t.Fatalf("every user received the same selection %v", base)
}

func TestSelectDoesNotMutateQuiz(t *testing.T) {
	sel := app.NewSelector("secret", 5)
	quiz := bankQuiz(8)
	before := optionIDs(quiz.Questions[0])

	sel.Select(quiz, 3)

	if !reflect.DeepEqual(before, optionIDs(quiz.Questions[0])) {
		t.Fatalf("source quiz options were reordered")
	}
}

func TestPublicizeHidesAnswerKeys(t *testing.T) {
	qs := []domain.Question{
		{ID: 1, Type: domain.QuestionSingleSelect, Options: []domain.Option{{ID: 1, Text: "a", IsCorrect: true}}},
		{ID: 2, Type: domain.QuestionFreeText, Options: []domain.Option{{ID: 2, Text: "secret answer", IsCorrect: true}}},
	}
	out := app.Publicize(qs)
	if len(out[0].Options) != 1 || out[0].Points != 1 {
		t.Fatalf("unexpected single select projection %+v", out[0])
	}
	if len(out[1].Options) != 0 {
		t.Fatalf("free text answers leaked: %+v", out[1].Options)
	}
}

func optionIDs(q domain.Question) []int64 {
	ids := make([]int64, len(q.Options))
	for i, o := range q.Options {
		ids[i] = o.ID
	}
	return ids
}
