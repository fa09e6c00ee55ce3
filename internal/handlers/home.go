package handlers

import (
	"log/slog"
	"net/http"
)

type homePageData struct {
	ChatEndpoint string
}

// HandleHome renders the chat page. The conversation itself lives in the browser; the page only ships
// the empty transcript, the input form and the script that talks to HandleChat.
func (m Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	data := homePageData{
		ChatEndpoint: "/api/chat",
	}
	if err := m.templates.ExecuteTemplate(w, "home.html", data); err != nil {
		m.logger.Error("Failed to render home page", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
