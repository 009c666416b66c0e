package certificate

import (
	"strings"
	"testing"
	"time"

	"quiz-platform/internal/domain"
)

func TestCertificateHTML(t *testing.T) {
	r := NewChromeRenderer("Quizly", "https://quiz.example/certificates/verify", 0)
	c := domain.Certificate{
		Kind:   domain.CertificateQuiz,
		Number: "CERT-Q4-U7-0A1B2C3D",
		Data: domain.CertificateData{
			UserName:       "Ann <Admin>",
			Title:          "Go Basics",
			Score:          87.5,
			CompletionDate: time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC),
		},
	}

	html, err := r.HTML(c)
	if err != nil {
		t.Fatalf("html: %v", err)
	}
	for _, want := range []string{
		"Ann &lt;Admin&gt;",
		"completed the Quiz",
		"with a score of 87.5%",
		"November 22, 2024",
		"https://quiz.example/certificates/verify/CERT-Q4-U7-0A1B2C3D",
	} {
		if !strings.Contains(html, want) {
			t.Fatalf("page missing %q", want)
		}
	}
}

func TestCourseCertificateHasNoScore(t *testing.T) {
	r := NewChromeRenderer("Quizly", "https://quiz.example/certificates/verify", time.Second)
	c := domain.Certificate{Kind: domain.CertificateCourse, Number: "CERT-C2-U7-FFFF0000", Data: domain.CertificateData{Title: "Go Course"}}

	html, err := r.HTML(c)
	if err != nil {
		t.Fatalf("html: %v", err)
	}
	if strings.Contains(html, "with a score of") {
		t.Fatalf("course certificates carry no score")
	}
	if !strings.Contains(html, "completed the Course") {
		t.Fatalf("kind missing")
	}
}
