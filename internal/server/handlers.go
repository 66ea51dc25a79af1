package server

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/univers/internal/config"
	"github.com/tejusbharadwaj/univers/internal/csvexport"
	"github.com/tejusbharadwaj/univers/internal/export"
	"github.com/tejusbharadwaj/univers/internal/ferrors"
	"github.com/tejusbharadwaj/univers/internal/models"
)

const (
	failedModelsHeader = "X-Export-Failed-Models"
	exportIDHeader     = "X-Export-ID"
)

type projectsResponse struct {
	Projects []string `json:"projects"`
}

type modelsResponse struct {
	Project string                   `json:"project"`
	Models  []models.ModelDescriptor `json:"models"`
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	names := s.opts.Store.Names()
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, projectsResponse{Projects: names})
}

// exporter resolves the {project} path variable to a ready Exporter.
func (s *Server) exporter(r *http.Request) (config.ProjectConfig, *export.Exporter, error) {
	project, err := s.opts.Store.Project(mux.Vars(r)["project"])
	if err != nil {
		return config.ProjectConfig{}, nil, err
	}
	source, err := s.opts.Sources(project)
	if err != nil {
		return config.ProjectConfig{}, nil, err
	}
	return project, export.NewExporter(source, s.opts.Export), nil
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	project, exp, err := s.exporter(r)
	if err != nil {
		writeError(w, err)
		return
	}

	list, err := exp.ListModels(r.Context())
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"request_id": RequestID(r.Context()),
			"project":    project.Name,
		}).WithError(err).Warn("Failed to list models")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, modelsResponse{Project: project.Name, Models: list})
}

// handleExport streams a CSV attachment for
// ?model=<id>[&model=<id>...]&start=<time>&end=<time>&interval=<minutes>.
// No model, or model=all, exports every model of the project.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	start, err := export.ParseTime(query.Get("start"), s.opts.Location)
	if err != nil {
		writeError(w, fmt.Errorf("start: %w", err))
		return
	}
	end, err := export.ParseTime(query.Get("end"), s.opts.Location)
	if err != nil {
		writeError(w, fmt.Errorf("end: %w", err))
		return
	}
	interval, err := strconv.Atoi(query.Get("interval"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: invalid interval %q", ferrors.ErrInvalidRequest, query.Get("interval")))
		return
	}

	project, exp, err := s.exporter(r)
	if err != nil {
		writeError(w, err)
		return
	}
	log := s.logger.WithFields(logrus.Fields{
		"request_id": RequestID(r.Context()),
		"project":    project.Name,
	})

	if err := exp.ValidateRange(start, end, interval); err != nil {
		writeError(w, err)
		return
	}

	selected, err := exp.ResolveModels(r.Context(), modelIDs(query["model"]))
	if err != nil {
		log.WithError(err).Warn("Failed to resolve models")
		writeError(w, err)
		return
	}

	result, err := exp.Export(r.Context(), export.Request{
		Models:          selected,
		Start:           start,
		End:             end,
		IntervalMinutes: interval,
	}, nil)
	if err != nil {
		log.WithError(err).Warn("Export failed")
		writeError(w, err)
		return
	}

	compression := negotiateCompression(r.Header.Get("Accept-Encoding"))
	body, err := csvexport.Marshal(result, csvexport.Options{Compression: compression})
	if err != nil {
		writeError(w, err)
		return
	}

	filename := filepath.Base(csvexport.FileName(project.Name, start, end, csvexport.None))
	h := w.Header()
	h.Set("Content-Type", csvexport.ContentType)
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	h.Set("Vary", "Accept-Encoding")
	h.Set(exportIDHeader, result.ID)
	if compression != csvexport.None {
		h.Set("Content-Encoding", compression)
	}
	if failed := result.FailedModels(); len(failed) > 0 {
		h.Set(failedModelsHeader, strings.Join(failed, ","))
	}
	h.Set("Content-Length", strconv.Itoa(len(body)))

	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// modelIDs flattens repeated and comma-separated model parameters.
func modelIDs(values []string) []string {
	var ids []string
	for _, v := range values {
		for _, id := range strings.Split(v, ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if strings.EqualFold(id, "all") {
				return nil
			}
			ids = append(ids, id)
		}
	}
	return ids
}

// negotiateCompression picks gzip, then zstd, from an Accept-Encoding header.
func negotiateCompression(header string) string {
	accepted := make(map[string]bool)
	for _, part := range strings.Split(header, ",") {
		fields := strings.Split(part, ";")
		name := strings.ToLower(strings.TrimSpace(fields[0]))
		q := 1.0
		for _, param := range fields[1:] {
			param = strings.TrimSpace(param)
			if v, ok := strings.CutPrefix(param, "q="); ok {
				if parsed, err := strconv.ParseFloat(v, 64); err == nil {
					q = parsed
				}
			}
		}
		if name != "" && q > 0 {
			accepted[name] = true
		}
	}

	switch {
	case accepted[csvexport.Gzip]:
		return csvexport.Gzip
	case accepted[csvexport.Zstd]:
		return csvexport.Zstd
	default:
		return csvexport.None
	}
}
