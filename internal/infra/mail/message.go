// Package mail renders and delivers the platform's transactional emails.
package mail

import (
	"bytes"
	"embed"
	"fmt"
	htmltmpl "html/template"
	"io/fs"
	netmail "net/mail"
	"path"
	"strings"
	texttmpl "text/template"
)

//go:embed templates/*
var templateFS embed.FS

// Message is one email. Template names a pair of templates/{name}.txt and
// templates/{name}.gohtml rendered with Data.
type Message struct {
	To       netmail.Address
	Subject  string
	Template string
	Data     interface{}

	TextContent string
	HTMLContent string
}

func (m Message) HasContent() bool { return m.TextContent != "" || m.HTMLContent != "" }

// templateData is what every template sees as its root.
type templateData struct {
	AppName         string
	FrontendBaseURL string
	Data            interface{}
}

type templates struct {
	text map[string]*texttmpl.Template
	html map[string]*htmltmpl.Template
}

func parseTemplates() (*templates, error) {
	t := &templates{
		text: make(map[string]*texttmpl.Template),
		html: make(map[string]*htmltmpl.Template),
	}
	entries, err := fs.ReadDir(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	for _, e := range entries {
		fname := e.Name()
		ext := path.Ext(fname)
		if strings.HasPrefix(fname, "_") {
			continue
		}
		name := strings.TrimSuffix(fname, ext)
		switch ext {
		case ".txt":
			tmpl, err := texttmpl.New(fname).Option("missingkey=error").
				ParseFS(templateFS, "templates/_base.txt", "templates/"+fname)
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", fname, err)
			}
			t.text[name] = tmpl
		case ".gohtml":
			tmpl, err := htmltmpl.New(fname).Option("missingkey=error").
				ParseFS(templateFS, "templates/_base.gohtml", "templates/"+fname)
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", fname, err)
			}
			t.html[name] = tmpl
		}
	}
	return t, nil
}

// render fills m.TextContent and m.HTMLContent from its templates.
func (t *templates) render(m *Message, root templateData) error {
	if m.Template == "" {
		return nil
	}
	root.Data = m.Data
	if tmpl, ok := t.text[m.Template]; ok {
		var buf bytes.Buffer
		if err := tmpl.ExecuteTemplate(&buf, "base", root); err != nil {
			return fmt.Errorf("render %s.txt: %w", m.Template, err)
		}
		m.TextContent = buf.String()
	}
	if tmpl, ok := t.html[m.Template]; ok {
		var buf bytes.Buffer
		if err := tmpl.ExecuteTemplate(&buf, "base", root); err != nil {
			return fmt.Errorf("render %s.gohtml: %w", m.Template, err)
		}
		m.HTMLContent = buf.String()
	}
	if !m.HasContent() {
		return fmt.Errorf("no templates named %q", m.Template)
	}
	return nil
}
