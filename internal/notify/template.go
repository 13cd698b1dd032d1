// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"bytes"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/samber/oops"

	"github.com/holomush/authgate/internal/auth"
)

// Template is the source of one email. Subject and Text use text/template
// syntax; HTML uses html/template and may be empty.
type Template struct {
	Subject string
	Text    string
	HTML    string
}

// Rendered is a fully expanded email body.
type Rendered struct {
	Subject string
	Text    string
	HTML    string
}

type compiled struct {
	subject *texttemplate.Template
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

// Renderer expands named templates with per-message data. Every template
// also sees "project" in its data.
type Renderer struct {
	project   string
	templates map[string]compiled
}

// NewRenderer parses every template up front.
func NewRenderer(project string, templates map[string]Template) (*Renderer, error) {
	r := &Renderer{project: project, templates: make(map[string]compiled, len(templates))}
	for name, tpl := range templates {
		c, err := compile(name, tpl)
		if err != nil {
			return nil, err
		}
		r.templates[name] = c
	}
	return r, nil
}

// DefaultTemplates returns the built-in templates.
func DefaultTemplates() map[string]Template {
	return map[string]Template{
		auth.ResetTemplate: {
			Subject: "Reset your {{.project}} password",
			Text: `Hello {{.username}},

Someone asked to reset the {{.project}} password for {{.email}}.
Your reset key is:

    {{.key}}

It expires at {{.expires_at}}. If you did not ask for this, ignore this email.
`,
			HTML: `<p>Hello {{.username}},</p>
<p>Someone asked to reset the {{.project}} password for {{.email}}. Your reset key is:</p>
<pre>{{.key}}</pre>
<p>It expires at {{.expires_at}}. If you did not ask for this, ignore this email.</p>
`,
		},
	}
}

func compile(name string, tpl Template) (compiled, error) {
	var c compiled
	var err error
	if strings.TrimSpace(tpl.Subject) == "" || strings.TrimSpace(tpl.Text) == "" {
		return c, oops.Code("TEMPLATE_INVALID").With("template", name).Errorf("subject and text body are required")
	}
	if c.subject, err = texttemplate.New(name + ".subject").Option("missingkey=error").Parse(tpl.Subject); err != nil {
		return c, oops.Code("TEMPLATE_INVALID").With("template", name).With("part", "subject").Wrap(err)
	}
	if c.text, err = texttemplate.New(name + ".text").Option("missingkey=error").Parse(tpl.Text); err != nil {
		return c, oops.Code("TEMPLATE_INVALID").With("template", name).With("part", "text").Wrap(err)
	}
	if tpl.HTML != "" {
		if c.html, err = htmltemplate.New(name + ".html").Option("missingkey=error").Parse(tpl.HTML); err != nil {
			return c, oops.Code("TEMPLATE_INVALID").With("template", name).With("part", "html").Wrap(err)
		}
	}
	return c, nil
}

// Render expands the named template with data.
func (r *Renderer) Render(name string, data map[string]any) (Rendered, error) {
	c, ok := r.templates[name]
	if !ok {
		return Rendered{}, oops.Code("TEMPLATE_UNKNOWN").With("template", name).Errorf("unknown email template")
	}

	merged := make(map[string]any, len(data)+1)
	for k, v := range data {
		merged[k] = v
	}
	merged["project"] = r.project

	var out Rendered
	var buf bytes.Buffer
	if err := c.subject.Execute(&buf, merged); err != nil {
		return Rendered{}, oops.Code("TEMPLATE_RENDER_FAILED").With("template", name).With("part", "subject").Wrap(err)
	}
	// Header values must stay on one line.
	out.Subject = strings.Join(strings.Fields(buf.String()), " ")

	buf.Reset()
	if err := c.text.Execute(&buf, merged); err != nil {
		return Rendered{}, oops.Code("TEMPLATE_RENDER_FAILED").With("template", name).With("part", "text").Wrap(err)
	}
	out.Text = buf.String()

	if c.html != nil {
		buf.Reset()
		if err := c.html.Execute(&buf, merged); err != nil {
			return Rendered{}, oops.Code("TEMPLATE_RENDER_FAILED").With("template", name).With("part", "html").Wrap(err)
		}
		out.HTML = buf.String()
	}
	return out, nil
}
