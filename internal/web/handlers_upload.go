package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/JonMunkholm/colannotate/internal/core"
	"github.com/JonMunkholm/colannotate/internal/dataset"
	"github.com/JonMunkholm/colannotate/internal/table"
)

// handleAnnotate starts an annotation run for an uploaded table, or for a
// PostgreSQL relation when a database is configured.
//
// Form fields: file or relation, name, description.
func (s *Server) handleAnnotate(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Runs.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeError(w, http.StatusBadRequest, "file too large or invalid form")
		return
	}

	meta := dataset.Meta{
		Name:        strings.TrimSpace(r.FormValue("name")),
		Description: strings.TrimSpace(r.FormValue("description")),
	}

	var (
		tbl    *table.Frame
		source string
		err    error
	)
	maxRows := s.cfg.Annotate.MaxRows

	if relation := strings.TrimSpace(r.FormValue("relation")); relation != "" {
		if s.db == nil {
			writeError(w, http.StatusBadRequest, "relations require a configured database")
			return
		}
		source = "postgres:" + relation
		if meta.Name == "" {
			meta.Name = relation
		}
		tbl, err = table.LoadPostgres(r.Context(), s.db, relation, maxRows)
	} else {
		file, header, ferr := r.FormFile("file")
		if ferr != nil {
			writeError(w, http.StatusBadRequest, "no file provided")
			return
		}
		defer file.Close()

		data, rerr := io.ReadAll(file)
		if rerr != nil {
			writeError(w, http.StatusInternalServerError, "failed to read file")
			return
		}
		source = header.Filename
		if meta.Name == "" {
			meta.Name = datasetName(header.Filename)
		}
		tbl, err = table.ReadUpload(header.Filename, data, maxRows)
	}
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	if s.oracle != nil {
		meta, err = dataset.Prepare(r.Context(), s.oracle, s.cfg.Oracle.Timeout, meta, s.cfg.Annotate.ShortenDescriptionOver)
		if err != nil {
			s.respondError(w, r, err, http.StatusBadGateway)
			return
		}
	}

	runID, err := s.service.Start(r.Context(), tbl, meta.Dataset(), source)
	if err != nil {
		if errors.Is(err, core.ErrTooManyRuns) {
			w.Header().Set("Retry-After", "30")
		}
		s.respondError(w, r, err, statusFor(err))
		return
	}

	w.Header().Set("Location", "/api/runs/"+runID)
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

// handleRunEvents streams run progress via Server-Sent Events. A progress
// event is sent for every completed stage and a complete event carries the
// final state.
func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	updates, err := s.service.Subscribe(runID)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	var (
		eventID int
		last    core.Run
	)
	for {
		select {
		case run, ok := <-updates:
			if !ok {
				if final, err := s.service.Get(r.Context(), runID); err == nil {
					last = final
				}
				data, _ := json.Marshal(runSummary(last))
				fmt.Fprintf(w, "event: complete\ndata: %s\n\n", data)
				flusher.Flush()
				return
			}

			last = run
			eventID++
			data, _ := json.Marshal(runSummary(run))
			fmt.Fprintf(w, "id: %s\nevent: progress\ndata: %s\n\n", strconv.Itoa(eventID), data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
