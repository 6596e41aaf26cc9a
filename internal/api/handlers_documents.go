package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/mfurukawa/pagemill/internal/convert"
	"github.com/mfurukawa/pagemill/internal/outline"
)

// htmlRenderer turns stored Markdown into the HTML preview. GFM keeps
// pipe tables rendering as tables.
var htmlRenderer = goldmark.New(goldmark.WithExtensions(extension.GFM))

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.List(r.Context())
	if err != nil {
		jsonError(w, "failed to list documents: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"documents": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	rec, ok, err := s.store.Get(r.Context(), docID)
	if err != nil {
		jsonError(w, "failed to load document: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}

	switch r.URL.Query().Get("format") {
	case "", "json":
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rec)
	case "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		io.WriteString(w, rec.Markdown)
	case "html":
		var buf bytes.Buffer
		if err := htmlRenderer.Convert([]byte(rec.Markdown), &buf); err != nil {
			jsonError(w, "render failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(buf.Bytes())
	default:
		jsonError(w, "format must be json, markdown or html", http.StatusBadRequest)
	}
}

// handleDocumentChunks returns the stored chunks, or re-splits the
// stored Markdown on the fly when the query overrides the chunking
// parameters.
func (s *Server) handleDocumentChunks(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	rec, ok, err := s.store.Get(r.Context(), docID)
	if err != nil {
		jsonError(w, "failed to load document: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		jsonError(w, "document not found", http.StatusNotFound)
		return
	}

	chunks := rec.Chunks
	if cfg, override, err := s.splitOverrides(r); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	} else if override {
		chunks = outline.Split(outline.Parse(rec.Markdown), cfg)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"doc_id": rec.DocID,
		"chunks": chunks,
	})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	if err := s.store.Delete(r.Context(), docID); err != nil {
		jsonError(w, "failed to delete document: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"deleted": docID})
}

// handleChunk splits a Markdown body synchronously, without touching
// the store. The request body is the raw Markdown.
func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		jsonError(w, "failed to read body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		jsonError(w, "request body is empty", http.StatusBadRequest)
		return
	}

	cfg, _, err := s.splitOverrides(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	chunks := outline.Split(outline.Parse(string(body)), cfg)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"chunks": chunks})
}

// splitOverrides reads max_size, overlap and overlap_mode query
// parameters on top of the service chunking defaults.
func (s *Server) splitOverrides(r *http.Request) (outline.SplitConfig, bool, error) {
	cfg := convert.SplitConfigFrom(s.cfg)
	override := false

	if v := r.URL.Query().Get("max_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, false, &badParamError{"max_size", v}
		}
		cfg.MaxSize = n
		override = true
	}
	if v := r.URL.Query().Get("overlap"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return cfg, false, &badParamError{"overlap", v}
		}
		cfg.Overlap = n
		if n > 0 && cfg.Mode == outline.OverlapNone {
			cfg.Mode = outline.OverlapChars
		}
		override = true
	}
	if v := r.URL.Query().Get("overlap_mode"); v != "" {
		switch outline.OverlapMode(v) {
		case outline.OverlapNone, outline.OverlapChars, outline.OverlapBlock:
			cfg.Mode = outline.OverlapMode(v)
			override = true
		default:
			return cfg, false, &badParamError{"overlap_mode", v}
		}
	}
	return cfg, override, nil
}

type badParamError struct {
	name  string
	value string
}

func (e *badParamError) Error() string {
	return "invalid " + e.name + ": " + e.value
}
