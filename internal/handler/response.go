package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeField(w http.ResponseWriter, status int, field, msg string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart(field)
	e.Str(msg)
	e.ObjEnd()
	writeJSON(w, status, &e)
}

// writeError writes {"error": msg}.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeField(w, status, "error", msg)
}

// writeMessage writes {"message": msg}.
func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeField(w, status, "message", msg)
}
