package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type CertificateKind string

const (
	CertificateQuiz   CertificateKind = "quiz"
	CertificateCourse CertificateKind = "course"
)

// CertificateData is the content printed on a certificate.
type CertificateData struct {
	UserName       string    `json:"user_name"`
	Title          string    `json:"title"`
	Score          float64   `json:"score"`
	CompletionDate time.Time `json:"completion_date"`
}

// Certificate is issued at most once per user and quiz, or user and course.
type Certificate struct {
	bun.BaseModel `bun:"table:certificates,alias:ce" json:"-"`

	ID        int64           `bun:"id,pk,autoincrement" json:"-"`
	UUID      uuid.UUID       `bun:"uuid,type:uuid,notnull" json:"id"`
	Number    string          `bun:"number,notnull" json:"certificate_number"`
	Kind      CertificateKind `bun:"kind,notnull" json:"kind"`
	UserID    int64           `bun:"user_id,notnull" json:"user_id"`
	QuizID    *int64          `bun:"quiz_id" json:"quiz_id,omitempty"`
	CourseID  *int64          `bun:"course_id" json:"course_id,omitempty"`
	AttemptID *int64          `bun:"attempt_id" json:"attempt_id,omitempty"`
	Data      CertificateData `bun:"data,type:jsonb,notnull" json:"certificate_data"`
	FileURL   string          `bun:"file_url,notnull" json:"file_url,omitempty"`
	IssuedAt  time.Time       `bun:"issued_at,notnull" json:"issued_at"`
}
