package app

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/pkg/errors"

	"quiz-platform/internal/domain"
)

// QuizInput creates or replaces a quiz's settings.
type QuizInput struct {
	Title              string            `json:"title" validate:"required,max=200"`
	Description        string            `json:"description" validate:"max=5000"`
	Difficulty         domain.Difficulty `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	TimeLimit          int               `json:"time_limit" validate:"gte=0,lte=86400"`
	PassingScore       *float64          `json:"passing_score" validate:"omitempty,gte=0,lte=100"`
	MaxAttempts        int               `json:"max_attempts" validate:"gte=0"`
	ShuffleQuestions   bool              `json:"shuffle_questions"`
	ShowAnswers        bool              `json:"show_answers"`
	ProctoringRequired bool              `json:"proctoring_required"`
	CourseID           *int64            `json:"course_id" validate:"omitempty,gt=0"`
	Tags               []string          `json:"tags" validate:"max=20,dive,required,max=50"`
}

type OptionInput struct {
	Text      string `json:"text" validate:"required,max=500"`
	IsCorrect bool   `json:"is_correct"`
}

// QuestionInput creates or replaces a question and its options.
type QuestionInput struct {
	Type        domain.QuestionType `json:"type" validate:"required,oneof=single_select multi_select free_text essay file_upload"`
	Text        string              `json:"text" validate:"required,max=2000"`
	Explanation string              `json:"explanation" validate:"max=2000"`
	Points      int                 `json:"points" validate:"gte=0,lte=100"`
	Position    int                 `json:"position" validate:"gte=0"`
	Options     []OptionInput       `json:"options" validate:"dive"`
}

// CatalogService manages quizzes, questions and tags.
type CatalogService struct {
	repo  CatalogRepository
	cache QuizSource
	now   func() time.Time
}

func NewCatalogService(repo CatalogRepository, cache QuizSource) *CatalogService {
	return &CatalogService{repo: repo, cache: cache, now: time.Now}
}

func (s *CatalogService) CreateQuiz(ctx context.Context, actor Actor, in QuizInput) (domain.Quiz, error) {
	if err := requireStaff(actor); err != nil {
		return domain.Quiz{}, err
	}
	if err := s.checkTitle(ctx, in.Title, 0); err != nil {
		return domain.Quiz{}, err
	}

	now := s.now()
	quiz := domain.Quiz{CreatedBy: actor.UserID, CreatedAt: now}
	applyQuizInput(&quiz, in, now)

	tags, err := s.repo.EnsureTags(ctx, in.Tags)
	if err != nil {
		return domain.Quiz{}, errors.Wrap(err, "ensure tags")
	}
	quiz.Tags = tags

	if err := s.repo.CreateQuiz(ctx, &quiz); err != nil {
		return domain.Quiz{}, errors.Wrap(err, "create quiz")
	}
	return quiz, nil
}

func (s *CatalogService) UpdateQuiz(ctx context.Context, actor Actor, id int64, in QuizInput) (domain.Quiz, error) {
	quiz, err := s.managedQuiz(ctx, actor, id)
	if err != nil {
		return domain.Quiz{}, err
	}
	if err := s.checkTitle(ctx, in.Title, id); err != nil {
		return domain.Quiz{}, err
	}

	applyQuizInput(&quiz, in, s.now())
	tags, err := s.repo.EnsureTags(ctx, in.Tags)
	if err != nil {
		return domain.Quiz{}, errors.Wrap(err, "ensure tags")
	}
	quiz.Tags = tags

	if err := s.repo.UpdateQuiz(ctx, &quiz); err != nil {
		return domain.Quiz{}, errors.Wrap(err, "update quiz")
	}
	s.cache.Invalidate(ctx, id)
	return quiz, nil
}

// SetPublished publishes or unpublishes a quiz; the first publication stamps published_at.
func (s *CatalogService) SetPublished(ctx context.Context, actor Actor, id int64, published bool) (domain.Quiz, error) {
	quiz, err := s.managedQuiz(ctx, actor, id)
	if err != nil {
		return domain.Quiz{}, err
	}
	if published && len(quiz.Questions) == 0 {
		return domain.Quiz{}, domain.FieldValidationError("questions", "a quiz needs at least one question before publishing")
	}
	now := s.now()
	quiz.IsPublished = published
	if published && quiz.PublishedAt == nil {
		quiz.PublishedAt = ptrTime(now)
	}
	quiz.UpdatedAt = now
	if err := s.repo.UpdateQuiz(ctx, &quiz); err != nil {
		return domain.Quiz{}, errors.Wrap(err, "update quiz")
	}
	s.cache.Invalidate(ctx, id)
	return quiz, nil
}

func (s *CatalogService) DeleteQuiz(ctx context.Context, actor Actor, id int64) error {
	if _, err := s.managedQuiz(ctx, actor, id); err != nil {
		return err
	}
	if err := s.repo.DeleteQuiz(ctx, id); err != nil {
		return errors.Wrap(err, "delete quiz")
	}
	s.cache.Invalidate(ctx, id)
	return nil
}

// GetQuiz returns a quiz. Students see published quizzes only and never the answer keys.
func (s *CatalogService) GetQuiz(ctx context.Context, actor Actor, id int64) (domain.Quiz, error) {
	quiz, err := s.repo.QuizByID(ctx, id)
	if err != nil {
		return domain.Quiz{}, err
	}
	if actor.CanManage(quiz.CreatedBy) {
		return quiz, nil
	}
	if !quiz.IsPublished {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	quiz.Questions = nil
	return quiz, nil
}

func (s *CatalogService) ListQuizzes(ctx context.Context, actor Actor, f domain.QuizFilter) ([]domain.Quiz, domain.Meta, error) {
	if !actor.IsStaff() {
		f.IncludeUnpublished = false
	}
	f.Page = f.Page.Normalize()
	quizzes, total, err := s.repo.ListQuizzes(ctx, f)
	if err != nil {
		return nil, domain.Meta{}, errors.Wrap(err, "list quizzes")
	}
	return quizzes, domain.BuildMeta(f.Page, total), nil
}

func (s *CatalogService) AddQuestion(ctx context.Context, actor Actor, quizID int64, in QuestionInput) (domain.Question, error) {
	quiz, err := s.managedQuiz(ctx, actor, quizID)
	if err != nil {
		return domain.Question{}, err
	}
	q := domain.Question{QuizID: quizID, CreatedAt: s.now()}
	if err := applyQuestionInput(&q, in); err != nil {
		return domain.Question{}, err
	}
	if q.Position == 0 {
		q.Position = nextPosition(quiz.Questions)
	}
	if err := s.repo.CreateQuestion(ctx, &q); err != nil {
		return domain.Question{}, errors.Wrap(err, "create question")
	}
	s.cache.Invalidate(ctx, quizID)
	return q, nil
}

func (s *CatalogService) UpdateQuestion(ctx context.Context, actor Actor, questionID int64, in QuestionInput) (domain.Question, error) {
	q, err := s.repo.QuestionByID(ctx, questionID)
	if err != nil {
		return domain.Question{}, err
	}
	if _, err := s.managedQuiz(ctx, actor, q.QuizID); err != nil {
		return domain.Question{}, err
	}
	position := q.Position
	if err := applyQuestionInput(&q, in); err != nil {
		return domain.Question{}, err
	}
	if q.Position == 0 {
		q.Position = position
	}
	if err := s.repo.UpdateQuestion(ctx, &q); err != nil {
		return domain.Question{}, errors.Wrap(err, "update question")
	}
	s.cache.Invalidate(ctx, q.QuizID)
	return q, nil
}

func (s *CatalogService) DeleteQuestion(ctx context.Context, actor Actor, questionID int64) error {
	q, err := s.repo.QuestionByID(ctx, questionID)
	if err != nil {
		return err
	}
	if _, err := s.managedQuiz(ctx, actor, q.QuizID); err != nil {
		return err
	}
	if err := s.repo.DeleteQuestion(ctx, questionID); err != nil {
		return errors.Wrap(err, "delete question")
	}
	s.cache.Invalidate(ctx, q.QuizID)
	return nil
}

func (s *CatalogService) ListTags(ctx context.Context) ([]domain.Tag, error) {
	tags, err := s.repo.ListTags(ctx)
	return tags, errors.Wrap(err, "list tags")
}

// managedQuiz loads a quiz the actor may modify.
func (s *CatalogService) managedQuiz(ctx context.Context, actor Actor, id int64) (domain.Quiz, error) {
	if err := requireStaff(actor); err != nil {
		return domain.Quiz{}, err
	}
	quiz, err := s.repo.QuizByID(ctx, id)
	if err != nil {
		return domain.Quiz{}, err
	}
	if !actor.CanManage(quiz.CreatedBy) {
		return domain.Quiz{}, domain.ErrForbidden
	}
	return quiz, nil
}

func (s *CatalogService) checkTitle(ctx context.Context, title string, exceptID int64) error {
	taken, err := s.repo.TitleTaken(ctx, strings.TrimSpace(title), exceptID)
	if err != nil {
		return errors.Wrap(err, "check title")
	}
	if taken {
		return domain.FieldValidationError("title", "a quiz with this title already exists")
	}
	return nil
}

func applyQuizInput(quiz *domain.Quiz, in QuizInput, now time.Time) {
	quiz.Title = strings.TrimSpace(in.Title)
	quiz.Slug = Slugify(quiz.Title)
	quiz.Description = strings.TrimSpace(in.Description)
	quiz.Difficulty = in.Difficulty
	if quiz.Difficulty == "" {
		quiz.Difficulty = domain.DifficultyMedium
	}
	quiz.TimeLimit = in.TimeLimit
	if quiz.TimeLimit == 0 {
		quiz.TimeLimit = domain.DefaultTimeLimit
	}
	quiz.PassingScore = domain.DefaultPassingScore
	if in.PassingScore != nil {
		quiz.PassingScore = *in.PassingScore
	}
	quiz.MaxAttempts = in.MaxAttempts
	quiz.ShuffleQuestions = in.ShuffleQuestions
	quiz.ShowAnswers = in.ShowAnswers
	quiz.ProctoringRequired = in.ProctoringRequired
	quiz.CourseID = in.CourseID
	quiz.UpdatedAt = now
}

// applyQuestionInput copies in onto q after checking the option rules of its type.
func applyQuestionInput(q *domain.Question, in QuestionInput) error {
	if err := ValidateQuestion(in); err != nil {
		return err
	}
	q.Type = in.Type
	q.Text = strings.TrimSpace(in.Text)
	q.Explanation = strings.TrimSpace(in.Explanation)
	q.Points = in.Points
	if q.Points == 0 {
		q.Points = 1
	}
	if in.Position > 0 {
		q.Position = in.Position
	}
	q.Options = make([]domain.Option, len(in.Options))
	for i, o := range in.Options {
		q.Options[i] = domain.Option{
			QuestionID: q.ID,
			Text:       strings.TrimSpace(o.Text),
			IsCorrect:  o.IsCorrect || in.Type == domain.QuestionFreeText,
			Position:   i + 1,
		}
	}
	return nil
}

// ValidateQuestion checks the option rules of each question type.
func ValidateQuestion(in QuestionInput) error {
	correct := 0
	for _, o := range in.Options {
		if o.IsCorrect {
			correct++
		}
	}

	var fields domain.Fields
	switch in.Type {
	case domain.QuestionSingleSelect:
		if len(in.Options) < 2 {
			fields.Add("options", "single select questions need at least two options")
		} else if correct != 1 {
			fields.Add("options", "single select questions need exactly one correct option")
		}
	case domain.QuestionMultiSelect:
		if len(in.Options) < 2 {
			fields.Add("options", "multi select questions need at least two options")
		} else if correct < 1 {
			fields.Add("options", "multi select questions need at least one correct option")
		}
	case domain.QuestionFreeText:
		if len(in.Options) < 1 {
			fields.Add("options", "free text questions need at least one accepted answer")
		}
	case domain.QuestionEssay, domain.QuestionFileUpload:
		if len(in.Options) > 0 {
			fields.Add("options", "essay and file upload questions cannot have options")
		}
	default:
		fields.Add("type", "unknown question type")
	}
	if in.Points < 0 || in.Points > 100 {
		fields.Add("points", "points must be between 1 and 100")
	}
	return fields.Err()
}

func nextPosition(questions []domain.Question) int {
	last := 0
	for _, q := range questions {
		if q.Position > last {
			last = q.Position
		}
	}
	return last + 1
}

// Slugify lowercases s and joins its alphanumeric runs with dashes.
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	return b.String()
}
