package helpers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	httperrors "github.com/dropDatabas3/authcore/internal/http/errors"
)

// MaxBodyBytes es el tope de todo body JSON.
const MaxBodyBytes = 1 << 20

// ReadJSON valida Content-Type, limita el body a 1MB y decodifica en v.
// Un body vacío no es error (v queda en cero). Devuelve false si ya
// escribió la respuesta de error.
func ReadJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.Contains(ct, "application/json") {
		httperrors.WriteError(w, httperrors.ErrUnsupportedMediaType)
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httperrors.WriteError(w, httperrors.ErrBodyTooLarge)
			return false
		}
		httperrors.WriteError(w, httperrors.ErrInvalidJSON.WithDetail(err.Error()))
		return false
	}
	return true
}

// ReadRaw devuelve el body crudo (mismas reglas que ReadJSON) validando
// solo que sea JSON bien formado.
func ReadRaw(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	var raw json.RawMessage
	if !ReadJSON(w, r, &raw) {
		return nil, false
	}
	return raw, true
}

// WriteJSON escribe una respuesta JSON estándar.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
