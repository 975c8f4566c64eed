package api

import (
	"encoding/json"
	"net/http"

	"audio-curator/internal/config"
	"audio-curator/internal/pipeline"
	"audio-curator/internal/service"
)

// ResampleMonitor is the part of service.Resampler the status server uses.
type ResampleMonitor interface {
	Status() service.ResampleStatus
	Stop()
}

// StageLister reports completed pipeline stages.
type StageLister interface {
	Stages() ([]pipeline.StageState, error)
}

type Handlers struct {
	resampler ResampleMonitor
	stages    StageLister
	registry  *config.Registry
}

func NewHandlers(resampler ResampleMonitor, stages StageLister, registry *config.Registry) *Handlers {
	return &Handlers{resampler: resampler, stages: stages, registry: registry}
}

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func (h *Handlers) json(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) success(w http.ResponseWriter, data interface{}) {
	h.json(w, http.StatusOK, Response{Success: true, Data: data})
}

func (h *Handlers) error(w http.ResponseWriter, status int, msg string) {
	h.json(w, status, Response{Success: false, Error: msg})
}

// === Health handler ===

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	running := false
	if h.resampler != nil {
		running = h.resampler.Status().Running
	}
	h.success(w, map[string]interface{}{
		"status":    "ok",
		"resampler": h.resampler != nil,
		"running":   running,
	})
}

// === Resample handlers ===

func (h *Handlers) ResampleStatus(w http.ResponseWriter, r *http.Request) {
	if h.resampler == nil {
		h.error(w, http.StatusServiceUnavailable, "resampler not configured")
		return
	}
	h.success(w, h.resampler.Status())
}

func (h *Handlers) ResampleStop(w http.ResponseWriter, r *http.Request) {
	if h.resampler == nil {
		h.error(w, http.StatusServiceUnavailable, "resampler not configured")
		return
	}
	h.resampler.Stop()
	h.success(w, "Resample stopped")
}

// === Pipeline handlers ===

func (h *Handlers) Stages(w http.ResponseWriter, r *http.Request) {
	states, err := h.stages.Stages()
	if err != nil {
		h.error(w, http.StatusInternalServerError, err.Error())
		return
	}
	if scope := r.URL.Query().Get("scope"); scope != "" {
		filtered := states[:0]
		for _, s := range states {
			if s.Scope == scope {
				filtered = append(filtered, s)
			}
		}
		states = filtered
	}
	h.success(w, states)
}

type corpusState struct {
	Name   string   `json:"name"`
	Kind   string   `json:"kind"`
	Root   string   `json:"root"`
	Stages []string `json:"stages"`
}

// Corpora lists the registry with the stages each corpus has completed.
func (h *Handlers) Corpora(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		h.error(w, http.StatusNotFound, "no corpus registry loaded")
		return
	}
	states, err := h.stages.Stages()
	if err != nil {
		h.error(w, http.StatusInternalServerError, err.Error())
		return
	}
	done := make(map[string][]string)
	for _, s := range states {
		done[s.Scope] = append(done[s.Scope], s.Stage)
	}

	out := make([]corpusState, 0, len(h.registry.Corpora))
	for _, c := range h.registry.Corpora {
		stages := done[c.Name]
		if stages == nil {
			stages = []string{}
		}
		out = append(out, corpusState{Name: c.Name, Kind: c.Kind, Root: c.Root, Stages: stages})
	}
	h.success(w, out)
}

func (h *Handlers) Corpus(w http.ResponseWriter, r *http.Request) {
	if h.registry == nil {
		h.error(w, http.StatusNotFound, "no corpus registry loaded")
		return
	}
	c, ok := h.registry.Corpus(r.PathValue("name"))
	if !ok {
		h.error(w, http.StatusNotFound, "corpus not found")
		return
	}
	h.success(w, c)
}
