package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type ProctoringStatus string

const (
	ProctoringActive     ProctoringStatus = "active"
	ProctoringCompleted  ProctoringStatus = "completed"
	ProctoringTerminated ProctoringStatus = "terminated"
	ProctoringFlagged    ProctoringStatus = "flagged"
)

// ProctoringSession monitors one user taking one quiz.
type ProctoringSession struct {
	bun.BaseModel `bun:"table:proctoring_sessions,alias:ps" json:"-"`

	ID             int64            `bun:"id,pk,autoincrement" json:"id"`
	UserID         int64            `bun:"user_id,notnull" json:"user_id"`
	QuizID         int64            `bun:"quiz_id,notnull" json:"quiz_id"`
	AttemptID      *int64           `bun:"attempt_id" json:"attempt_id,omitempty"`
	Status         ProctoringStatus `bun:"status,notnull" json:"status"`
	IsValid        bool             `bun:"is_valid,notnull" json:"is_valid"`
	ViolationCount int              `bun:"violation_count,notnull" json:"violation_count"`
	TotalRiskScore float64          `bun:"total_risk_score,notnull" json:"total_risk_score"`
	StartedAt      time.Time        `bun:"started_at,notnull" json:"started_at"`
	EndedAt        *time.Time       `bun:"ended_at" json:"ended_at,omitempty"`
}

// Open reports whether the session still accepts violations; flagged sessions stay open.
func (s ProctoringSession) Open() bool {
	return s.EndedAt == nil && (s.Status == ProctoringActive || s.Status == ProctoringFlagged)
}

type ViolationType string

const (
	ViolationMultipleFaces      ViolationType = "multiple_faces"
	ViolationNoFace             ViolationType = "no_face"
	ViolationTabSwitch          ViolationType = "tab_switch"
	ViolationFullscreenExit     ViolationType = "fullscreen_exit"
	ViolationCopyPaste          ViolationType = "copy_paste"
	ViolationSuspiciousActivity ViolationType = "suspicious_activity"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// DefaultRisk is the risk score charged for a violation of this severity.
func (s Severity) DefaultRisk() float64 {
	switch s {
	case SeverityLow:
		return 5
	case SeverityHigh:
		return 30
	case SeverityCritical:
		return 50
	default:
		return 15
	}
}

// Violation is a suspicious event reported during a proctoring session.
type Violation struct {
	bun.BaseModel `bun:"table:violations,alias:v" json:"-"`

	ID              int64           `bun:"id,pk,autoincrement" json:"id"`
	UUID            uuid.UUID       `bun:"uuid,type:uuid,notnull" json:"violation_id"`
	SessionID       int64           `bun:"session_id,notnull" json:"session_id"`
	Type            ViolationType   `bun:"type,notnull" json:"violation_type"`
	Severity        Severity        `bun:"severity,notnull" json:"severity"`
	Description     string          `bun:"description,notnull" json:"description"`
	Evidence        json.RawMessage `bun:"evidence,type:jsonb" json:"evidence_data,omitempty"`
	RiskScore       float64         `bun:"risk_score,notnull" json:"risk_score"`
	IsResolved      bool            `bun:"is_resolved,notnull" json:"is_resolved"`
	ResolvedAt      *time.Time      `bun:"resolved_at" json:"resolved_at,omitempty"`
	ResolutionNotes string          `bun:"resolution_notes,notnull" json:"resolution_notes,omitempty"`
	CreatedAt       time.Time       `bun:"created_at,notnull" json:"timestamp"`
}

// ProctoringSettings configures monitoring for a quiz.
type ProctoringSettings struct {
	bun.BaseModel `bun:"table:proctoring_settings,alias:pst" json:"-"`

	QuizID                int64     `bun:"quiz_id,pk" json:"quiz_id"`
	EnableWebcam          bool      `bun:"enable_webcam,notnull" json:"enable_webcam"`
	FaceDetection         bool      `bun:"face_detection,notnull" json:"face_detection"`
	MultipleFaceDetection bool      `bun:"multiple_face_detection,notnull" json:"multiple_face_detection"`
	PreventTabSwitch      bool      `bun:"prevent_tab_switch,notnull" json:"prevent_tab_switch"`
	PreventFullscreenExit bool      `bun:"prevent_fullscreen_exit,notnull" json:"prevent_fullscreen_exit"`
	PreventCopyPaste      bool      `bun:"prevent_copy_paste,notnull" json:"prevent_copy_paste"`
	RiskThreshold         float64   `bun:"risk_threshold,notnull" json:"risk_threshold"`
	AutoTerminate         bool      `bun:"auto_terminate,notnull" json:"auto_terminate"`
	UpdatedAt             time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// DefaultProctoringSettings applies when a quiz has no stored settings.
func DefaultProctoringSettings(quizID int64) ProctoringSettings {
	return ProctoringSettings{
		QuizID:                quizID,
		EnableWebcam:          true,
		FaceDetection:         true,
		MultipleFaceDetection: true,
		PreventTabSwitch:      true,
		PreventFullscreenExit: true,
		PreventCopyPaste:      true,
		RiskThreshold:         70,
	}
}
