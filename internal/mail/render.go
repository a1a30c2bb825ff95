// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cooksavvy Contributors

package mail

import (
	"bytes"
	"embed"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"

	"github.com/samber/oops"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Product identifies the sender in rendered mail.
type Product struct {
	Name string
	Link string
	Logo string
}

// Button is a call-to-action link.
type Button struct {
	Text  string
	Color string
	Link  string
}

// Content is the variable part of an action email. Exactly one of Button
// and Code is normally set.
type Content struct {
	Subject      string
	Name         string
	Intro        []string
	Instructions string
	Button       *Button
	Code         string
	Outro        []string
}

type templateData struct {
	Content
	Product Product
	Year    int
}

// Renderer turns Content into a Message.
type Renderer struct {
	product Product
	html    *htmltemplate.Template
	text    *texttemplate.Template
	now     func() time.Time
}

// NewRenderer parses the embedded templates.
func NewRenderer(product Product) (*Renderer, error) {
	if product.Name == "" {
		product.Name = "Cooksavvy"
	}
	html, err := htmltemplate.ParseFS(templateFS, "templates/action.html.tmpl")
	if err != nil {
		return nil, oops.Code("MAIL_TEMPLATE_INVALID").Wrap(err)
	}
	text, err := texttemplate.ParseFS(templateFS, "templates/action.txt.tmpl")
	if err != nil {
		return nil, oops.Code("MAIL_TEMPLATE_INVALID").Wrap(err)
	}
	return &Renderer{product: product, html: html, text: text, now: time.Now}, nil
}

// Render produces a Message addressed to to.
func (r *Renderer) Render(to string, c Content) (Message, error) {
	data := templateData{Content: c, Product: r.product, Year: r.now().Year()}

	var html, text bytes.Buffer
	if err := r.html.Execute(&html, data); err != nil {
		return Message{}, oops.With("operation", "render_html").Wrap(err)
	}
	if err := r.text.Execute(&text, data); err != nil {
		return Message{}, oops.With("operation", "render_text").Wrap(err)
	}
	return Message{To: to, Subject: c.Subject, HTML: html.String(), Text: text.String()}, nil
}
