// Package handlers provides HTTP handlers for the context API.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// Mount registers the API routes on r. Summary routes are skipped when
// summaries is nil.
func Mount(r chi.Router, contexts *ContextHandler, summaries *SummaryHandler) {
	r.Route("/patients", func(r chi.Router) {
		r.Get("/", contexts.List)
		r.Get("/{id}/context", contexts.Context)
		if summaries != nil {
			r.Get("/{id}/summaries", summaries.ListForPatient)
		}
	})
	if summaries != nil {
		r.Mount("/summaries", summaries.Routes())
		r.Mount("/documents", summaries.DocumentRoutes())
	}
}
