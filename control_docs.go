package main

import (
	"encoding/json"
	"net/http"
	"strings"

	"driftpursuit/rewind/internal/input"
)

// ControlDoc describes a single control that viewers expose.
type ControlDoc struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Shortcut    string `json:"shortcut,omitempty"`
}

// controlDocs derives the documentation from the default input bindings.
func controlDocs() []ControlDoc {
	docs := make([]ControlDoc, 0, len(input.Bindings))
	for _, binding := range input.Bindings {
		docs = append(docs, ControlDoc{
			ID:          string(binding.Action),
			Label:       actionLabel(binding.Action),
			Description: binding.Description,
			Shortcut:    binding.Key,
		})
	}
	return docs
}

// actionLabel turns "fast_forward_start" into "Fast Forward Start".
func actionLabel(action input.Action) string {
	words := strings.Split(string(action), "_")
	for i, word := range words {
		if word != "" {
			words[i] = strings.ToUpper(word[:1]) + word[1:]
		}
	}
	return strings.Join(words, " ")
}

// registerControlDocEndpoints serves the control documentation in binding order.
func registerControlDocEndpoints(mux *http.ServeMux) {
	mux.HandleFunc("/api/controls", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(controlDocs()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}
