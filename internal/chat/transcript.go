package chat

import (
	"bytes"
	"fmt"
	"html/template"
	"io"

	"github.com/MegaGrindStone/stream-chat/internal/models"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/extension"
)

var transcriptTemplate = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Chat transcript</title>
</head>
<body>
{{- range .}}
<article class="message {{.Role}}">
<h2>{{.Label}}</h2>
{{.Body}}
{{- if .Err}}
<p class="error">{{.Err}}</p>
{{- end}}
</article>
{{- end}}
</body>
</html>
`))

type transcriptEntry struct {
	Role  models.Role
	Label string
	Body  template.HTML
	Err   string
}

var roleLabels = map[models.Role]string{
	models.RoleUser: "User",
	models.RoleAI:   "AI",
}

func newMarkdown() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle("github"),
			),
		),
	)
}

// WriteHTML renders messages as a standalone HTML document. Message contents are treated as markdown;
// raw HTML inside them is not passed through.
func WriteHTML(w io.Writer, messages []models.Message) error {
	md := newMarkdown()

	entries := make([]transcriptEntry, len(messages))
	for i, msg := range messages {
		var buf bytes.Buffer
		if err := md.Convert([]byte(msg.Content), &buf); err != nil {
			return fmt.Errorf("failed to render message %s: %w", msg.ID, err)
		}
		entries[i] = transcriptEntry{
			Role:  msg.Role,
			Label: roleLabels[msg.Role],
			// goldmark escapes raw HTML unless WithUnsafe is set.
			Body: template.HTML(buf.String()), //nolint:gosec
			Err:  msg.Err,
		}
	}

	if err := transcriptTemplate.Execute(w, entries); err != nil {
		return fmt.Errorf("failed to execute transcript template: %w", err)
	}
	return nil
}
