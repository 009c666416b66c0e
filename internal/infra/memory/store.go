package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"quiz-platform/internal/app"
	"quiz-platform/internal/domain"
)

var (
	_ app.UserRepository        = (*Store)(nil)
	_ app.CatalogRepository     = (*Store)(nil)
	_ app.AttemptRepository     = (*Store)(nil)
	_ app.CertificateRepository = (*Store)(nil)
	_ app.CourseRepository      = (*Store)(nil)
	_ app.PaymentRepository     = (*Store)(nil)
	_ app.ProctoringRepository  = (*Store)(nil)
	_ app.AnalyticsRepository   = (*Analytics)(nil)
	_ app.LeaderboardStore      = (*Leaderboard)(nil)
	_ app.TaskQueue             = (*TaskQueue)(nil)
	_ app.QuizSource            = (*QuizRepository)(nil)
	_ app.FeedRegistry          = (*FeedStore)(nil)
)

// Store keeps every repository in process memory. It backs tests and runs without Postgres.
type Store struct {
	mu  sync.RWMutex
	seq int64

	users        map[int64]domain.User
	tokens       map[int64]domain.UserToken
	quizzes      map[int64]domain.Quiz
	questions    map[int64]domain.Question
	tags         map[int64]domain.Tag
	attempts     map[int64]domain.Attempt
	answers      map[int64]domain.Answer
	certificates map[int64]domain.Certificate
	courses      map[int64]domain.Course
	lessons      map[int64]domain.Lesson
	enrollments  map[int64]domain.Enrollment
	progress     map[int64]domain.LessonProgress
	ratings      map[int64]domain.CourseRating
	payments     map[int64]domain.Payment
	paymentLog   []domain.PaymentEvent
	sessions     map[int64]domain.ProctoringSession
	violations   map[int64]domain.Violation
	settings     map[int64]domain.ProctoringSettings
	events       []domain.Event
}

func NewStore() *Store {
	return &Store{
		users:        make(map[int64]domain.User),
		tokens:       make(map[int64]domain.UserToken),
		quizzes:      make(map[int64]domain.Quiz),
		questions:    make(map[int64]domain.Question),
		tags:         make(map[int64]domain.Tag),
		attempts:     make(map[int64]domain.Attempt),
		answers:      make(map[int64]domain.Answer),
		certificates: make(map[int64]domain.Certificate),
		courses:      make(map[int64]domain.Course),
		lessons:      make(map[int64]domain.Lesson),
		enrollments:  make(map[int64]domain.Enrollment),
		progress:     make(map[int64]domain.LessonProgress),
		ratings:      make(map[int64]domain.CourseRating),
		payments:     make(map[int64]domain.Payment),
		sessions:     make(map[int64]domain.ProctoringSession),
		violations:   make(map[int64]domain.Violation),
		settings:     make(map[int64]domain.ProctoringSettings),
	}
}

// nextID must be called with mu held.
func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

func (s *Store) CreateUser(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.users {
		if strings.EqualFold(other.Email, u.Email) || strings.EqualFold(other.Username, u.Username) {
			return domain.NewValidationError(nil, domain.FieldError{Field: "email", Error: "email or username already registered"})
		}
	}
	u.ID = s.nextID()
	s.users[u.ID] = *u
	return nil
}

func (s *Store) UpdateUser(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return domain.ErrUserNotFound
	}
	s.users[u.ID] = *u
	return nil
}

func (s *Store) UserByID(_ context.Context, id int64) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

func (s *Store) UserByLogin(_ context.Context, login string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, login) || strings.EqualFold(u.Username, login) {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (s *Store) EmailTaken(_ context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) UsernameTaken(_ context.Context, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListUsers(_ context.Context, p domain.Page) ([]domain.User, int, error) {
	s.mu.RLock()
	list := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		list = append(list, u)
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return page(list, p), len(list), nil
}

func (s *Store) SaveToken(_ context.Context, t *domain.UserToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.nextID()
	s.tokens[t.ID] = *t
	return nil
}

func (s *Store) TokenByHash(_ context.Context, purpose domain.TokenPurpose, hash string) (domain.UserToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tokens {
		if t.Purpose == purpose && t.TokenHash == hash {
			return t, nil
		}
	}
	return domain.UserToken{}, domain.ErrInvalidToken
}

func (s *Store) MarkTokenUsed(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	if !ok {
		return domain.ErrInvalidToken
	}
	t.UsedAt = &at
	s.tokens[id] = t
	return nil
}

func cloneIDs(ids []int64) []int64 {
	if ids == nil {
		return nil
	}
	return append([]int64(nil), ids...)
}

func page[T any](list []T, p domain.Page) []T {
	start, end := p.Window(len(list))
	return list[start:end]
}
