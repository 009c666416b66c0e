// Package certificate renders certificate PDFs and stores them.
package certificate

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"quiz-platform/internal/app"
	"quiz-platform/internal/domain"
)

//go:embed certificate.gohtml
var pageSource string

var pageTemplate = template.Must(template.New("certificate").Parse(pageSource))

type pageData struct {
	AppName        string
	UserName       string
	Title          string
	Kind           string
	Score          string
	CompletionDate string
	Number         string
	VerifyURL      string
}

// ChromeRenderer prints the certificate page to PDF with headless Chrome.
type ChromeRenderer struct {
	appName   string
	verifyURL string
	timeout   time.Duration
}

var _ app.CertificateRenderer = (*ChromeRenderer)(nil)

// NewChromeRenderer prints pages linking to verifyBaseURL/{number}.
func NewChromeRenderer(appName, verifyBaseURL string, timeout time.Duration) *ChromeRenderer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ChromeRenderer{appName: appName, verifyURL: verifyBaseURL, timeout: timeout}
}

func (r *ChromeRenderer) Render(ctx context.Context, c domain.Certificate) ([]byte, error) {
	html, err := r.HTML(c)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	ctx, cancelBrowser := chromedp.NewContext(ctx)
	defer cancelBrowser()

	var pdf []byte
	err = chromedp.Run(ctx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithLandscape(true).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = buf
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("print certificate: %w", err)
	}
	return pdf, nil
}

// HTML renders the printable certificate page.
func (r *ChromeRenderer) HTML(c domain.Certificate) (string, error) {
	kind := "Quiz"
	if c.Kind == domain.CertificateCourse {
		kind = "Course"
	}
	data := pageData{
		AppName:        r.appName,
		UserName:       c.Data.UserName,
		Title:          c.Data.Title,
		Kind:           kind,
		CompletionDate: c.Data.CompletionDate.Format("January 2, 2006"),
		Number:         c.Number,
		VerifyURL:      r.verifyURL + "/" + c.Number,
	}
	if c.Kind == domain.CertificateQuiz {
		data.Score = fmt.Sprintf("%.1f%%", c.Data.Score)
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render certificate page: %w", err)
	}
	return buf.String(), nil
}
