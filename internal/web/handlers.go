package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/reconcile/internal/core"
	"github.com/go-chi/chi/v5"
)

// multipartMemory is the part of an upload kept in memory; the rest spills
// to temporary files.
const multipartMemory = 32 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"entities": core.EntityCount(),
	})
}

func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, core.DescribeAll())
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "entity")
	schema, ok := core.Get(key)
	if !ok {
		s.respondError(w, r, fmt.Errorf("%w: %q", core.ErrUnknownEntity, key), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, core.Describe(schema))
}

func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	if s.limiter == nil {
		writeJSON(w, http.StatusOK, core.BatchLimiterStatus{Entities: []string{}})
		return
	}
	writeJSON(w, http.StatusOK, s.limiter.Status())
}

// handleImport runs one batch from a multipart upload and answers with the
// batch result. Form fields: file, overwrite, createIfMissing, encoding.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxFileSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, fmt.Errorf("file too large: limit is %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
			return
		}
		s.respondError(w, r, fmt.Errorf("invalid form: %w", err), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, errors.New("no file provided"), http.StatusBadRequest)
		return
	}
	defer file.Close()

	overwrite, err := formBool(r, "overwrite")
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	req := core.ImportRequest{
		Entity:    entity,
		Reader:    file,
		FileName:  header.Filename,
		Overwrite: overwrite != nil && *overwrite,
		Encodings: formList(r, "encoding"),
	}
	if req.CreateIfMissing, err = formBool(r, "createIfMissing"); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	if len(req.Encodings) == 0 {
		req.Encodings = s.cfg.Import.Encodings
	}

	// A dropped connection must not abandon a half-applied batch.
	ctx := context.WithoutCancel(r.Context())
	res := s.engine.Import(ctx, req)

	writeJSON(w, statusFor(res), res)
}

// formBool parses an optional boolean form value; nil means absent.
func formBool(r *http.Request, name string) (*bool, error) {
	v := strings.TrimSpace(r.FormValue(name))
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, fmt.Errorf("invalid value for %s: %q", name, v)
	}
	return &b, nil
}

// formList collects repeated and comma-separated values.
func formList(r *http.Request, name string) []string {
	var out []string
	for _, v := range r.MultipartForm.Value[name] {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
