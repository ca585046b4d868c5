package handler

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"net/http"

	"github.com/michalmalinowski87/photo-sub008/internal/api/middleware"
	"github.com/michalmalinowski87/photo-sub008/internal/deletion"
)

//go:embed templates/*.html
var templateFS embed.FS

var undoTemplate = template.Must(template.ParseFS(templateFS, "templates/undo.html"))

// undoPage is the data rendered by templates/undo.html.
type undoPage struct {
	Title     string
	Message   string
	Success   bool
	RequestID string
}

var (
	undoRestored = undoPage{
		Title:   "Usuwanie konta anulowane",
		Message: "Twoje konto jest znowu aktywne. Wszystkie galerie i zdjęcia pozostały bez zmian.",
		Success: true,
	}
	undoInvalid = undoPage{
		Title:   "Link jest nieprawidłowy lub wygasł",
		Message: "Ten link nie pozwala już anulować usunięcia konta. Jeśli możesz się zalogować, anuluj usunięcie w ustawieniach konta.",
	}
	undoProcessed = undoPage{
		Title:   "Okres na anulowanie minął",
		Message: "Konto zostało już przekazane do usunięcia i nie można go przywrócić.",
	}
	undoFailed = undoPage{
		Title:   "Coś poszło nie tak",
		Message: "Nie udało się anulować usunięcia konta. Spróbuj ponownie za kilka minut.",
	}
)

// UndoDeletion handles GET /v1/account-deletion/undo?token= - the link sent
// by email. Possession of the token is the only credential.
func (h *DeletionHandler) UndoDeletion(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	_, err := h.service.UndoByToken(r.Context(), token)
	switch {
	case err == nil:
		h.renderUndoPage(w, r, http.StatusOK, undoRestored)
	case errors.Is(err, deletion.ErrInvalidOrExpiredToken):
		h.renderUndoPage(w, r, http.StatusNotFound, undoInvalid)
	case errors.Is(err, deletion.ErrAlreadyProcessed):
		h.renderUndoPage(w, r, http.StatusGone, undoProcessed)
	default:
		h.logger.Error().
			Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Msg("undo by token failed")
		h.renderUndoPage(w, r, http.StatusInternalServerError, undoFailed)
	}
}

func (h *DeletionHandler) renderUndoPage(w http.ResponseWriter, r *http.Request, status int, page undoPage) {
	page.RequestID = middleware.GetRequestID(r.Context())

	var buf bytes.Buffer
	if err := undoTemplate.Execute(&buf, page); err != nil {
		h.logger.Error().Err(err).Msg("rendering undo page")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
