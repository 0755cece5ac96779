package digest

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"bird_whisperer/internal/model"
)

var (
	md = goldmark.New(goldmark.WithExtensions(extension.GFM))

	referenceRe = regexp.MustCompile(`\[(\d+)\]`)
	mentionRe   = regexp.MustCompile(`(^|[^A-Za-z0-9_/@.])@([A-Za-z0-9_]+)`)

	documentTmpl = template.Must(template.New("digest").Parse(documentHTML))
)

// Subject returns the email subject for a digest sent at t.
func Subject(t time.Time) string {
	return "Bird Whisperer Digest - " + t.Format("January 2, 2006")
}

// RenderMarkdown converts model-written markdown to HTML. Raw HTML in the
// input is dropped.
func RenderMarkdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// LinkReferences turns [n] into a link to links[n-1]. References outside
// 1..len(links) are left as they are.
func LinkReferences(s string, links []string) string {
	return referenceRe.ReplaceAllStringFunc(s, func(m string) string {
		n, err := strconv.Atoi(m[1 : len(m)-1])
		if err != nil || n < 1 || n > len(links) {
			return m
		}
		return fmt.Sprintf(`<a href="%s">[%d]</a>`, html.EscapeString(links[n-1]), n)
	})
}

// LinkMentions turns @handle into a profile link for each handle in handles,
// matched case-insensitively. Other mentions are left as they are.
func LinkMentions(s string, handles []string) string {
	known := make(map[string]string, len(handles))
	for _, h := range handles {
		known[strings.ToLower(h)] = h
	}
	return mentionRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := mentionRe.FindStringSubmatch(m)
		handle, ok := known[strings.ToLower(sub[2])]
		if !ok {
			return m
		}
		return fmt.Sprintf(`%s<a href="%s">@%s</a>`, sub[1], html.EscapeString(model.ProfileURL(handle)), html.EscapeString(sub[2]))
	})
}

type documentSection struct {
	Username   string
	ProfileURL string
	Summary    template.HTML
	PostCount  int
}

// RenderDocument renders the digest email body.
func RenderDocument(t time.Time, trendingHTML string, sections []model.HandleSummary) (string, error) {
	data := struct {
		Title    string
		Date     string
		Trending template.HTML
		Sections []documentSection
	}{
		Title:    Subject(t),
		Date:     t.Format("Monday, January 2, 2006"),
		Trending: template.HTML(trendingHTML), //nolint:gosec // rendered by goldmark without raw HTML
	}
	for _, s := range sections {
		data.Sections = append(data.Sections, documentSection{
			Username:   s.Username,
			ProfileURL: model.ProfileURL(s.Username),
			Summary:    template.HTML(s.SummaryHTML), //nolint:gosec // rendered by goldmark without raw HTML
			PostCount:  s.PostCount,
		})
	}

	var buf bytes.Buffer
	if err := documentTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render document: %w", err)
	}
	return buf.String(), nil
}

const documentHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body style="font-family: -apple-system, Helvetica, Arial, sans-serif; max-width: 640px; margin: 0 auto; color: #1f2328;">
<h1>Bird Whisperer Digest</h1>
<p style="color: #59636e;">{{.Date}}</p>
{{- if .Trending}}
<div class="trending" style="background: #f6f8fa; padding: 12px 16px; border-radius: 6px;">
<h2>Trending across your follows</h2>
{{.Trending}}
</div>
{{- end}}
{{- range .Sections}}
<div class="handle">
<h2><a href="{{.ProfileURL}}">@{{.Username}}</a></h2>
{{.Summary}}
<p style="color: #59636e;">{{.PostCount}} new post{{if ne .PostCount 1}}s{{end}}</p>
</div>
{{- end}}
</body>
</html>
`
