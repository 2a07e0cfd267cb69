package http

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"buckify/internal/core"
	applog "buckify/internal/log"
	"buckify/internal/services"
)

// multipartOverhead leaves room for boundaries and part headers around the file.
const multipartOverhead = 64 << 10

type confirmImportRequest struct {
	CategoryID     string `json:"categoryId" validate:"required,max=64"`
	SkipDuplicates bool   `json:"skipDuplicates"`
	Rows           []int  `json:"rows" validate:"omitempty,dive,gte=0"`
}

func (s *Server) handleUploadImport(w http.ResponseWriter, r *http.Request) {
	hid, _ := householdID(r)
	maxBytes := s.imports.MaxBytes()

	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(maxBytes + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			ServiceError(w, r, applog.ComponentImport, applog.OpCreate, core.ErrFileTooLarge)
			return
		}
		BadRequestError("expected multipart form with a file field").Write(w)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		BadRequestError("missing file field").Write(w)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		BadRequestError("could not read uploaded file").Write(w)
		return
	}

	imp, err := s.imports.Upload(r.Context(), hid, sanitizeInput(filepath.Base(header.Filename)), detectMimeType(header.Header.Get("Content-Type"), content), content)
	if err != nil {
		ServiceError(w, r, applog.ComponentImport, applog.OpCreate, err)
		return
	}

	status := http.StatusCreated
	if imp.Status == core.ImportPending {
		status = http.StatusAccepted
	}
	NewJSONResponse().
		Status(status).
		Header("Location", "/api/imports/"+imp.ID).
		Body(toImportDTO(imp)).
		Write(w)
}

// detectMimeType prefers the sniffed content type when it is a supported
// statement type, falling back to the declared part type.
func detectMimeType(declared string, content []byte) string {
	sniffed, _, _ := mime.ParseMediaType(http.DetectContentType(content))
	if services.AllowedStatementTypes[sniffed] {
		return sniffed
	}
	if mt, _, err := mime.ParseMediaType(declared); err == nil {
		return mt
	}
	return sniffed
}

func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	hid, _ := householdID(r)
	imp, err := s.imports.GetImport(r.Context(), hid, r.PathValue("id"))
	if err != nil {
		ServiceError(w, r, applog.ComponentImport, applog.OpRead, err)
		return
	}
	NewJSONResponse().Body(toImportDTO(imp)).Write(w)
}

func (s *Server) handleConfirmImport(w http.ResponseWriter, r *http.Request) {
	hid, _ := householdID(r)
	var req confirmImportRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	n, err := s.imports.Confirm(r.Context(), hid, r.PathValue("id"), services.ConfirmInput{
		CategoryID:     sanitizeInput(req.CategoryID),
		SkipDuplicates: req.SkipDuplicates,
		Rows:           req.Rows,
	})
	if err != nil {
		ServiceError(w, r, applog.ComponentImport, applog.OpConfirm, err)
		return
	}
	NewJSONResponse().Body(map[string]int{"created": n}).Write(w)
}
