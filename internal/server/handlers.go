package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/taxform-extractor/internal/extraction"
	"github.com/jonathan/taxform-extractor/internal/sessions"
	"github.com/jonathan/taxform-extractor/internal/types"
)

// uploadField is the multipart field carrying the documents.
const uploadField = "files"

var requestValidator = validator.New()

// ExtractRequest represents the request body for /extract
type ExtractRequest struct {
	FileIDs []string `json:"file_ids" validate:"required,min=1,dive,required"`
}

// FilesResponse lists the files of a session
type FilesResponse struct {
	Files []types.UploadedFile `json:"files"`
}

// MessageResponse carries a human-readable confirmation
type MessageResponse struct {
	Message string `json:"message"`
}

// handleUpload replaces the session contents with the uploaded PDFs.
// Parts are streamed straight to disk; the whole body is capped at the
// upload limit.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(w, r)
	if err != nil {
		s.failure(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	mr, err := r.MultipartReader()
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Expected multipart/form-data with a 'files' field")
		return
	}

	files := []types.UploadedFile{}
	sawField := false
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.uploadError(w, err, http.StatusBadRequest)
			return
		}

		if part.FormName() != uploadField {
			_ = part.Close()
			continue
		}
		if !sawField {
			// every upload starts a fresh batch
			if err := s.store.Reset(sess); err != nil {
				s.failure(w, err)
				return
			}
			sawField = true
		}
		if part.FileName() == "" {
			_ = part.Close()
			continue
		}

		file, err := s.store.Save(sess, part.FileName(), part, s.maxUploadBytes)
		_ = part.Close()
		if err != nil {
			s.uploadError(w, err, http.StatusInternalServerError)
			return
		}
		files = append(files, file)
	}

	if !sawField {
		s.errorResponse(w, http.StatusBadRequest, "No files provided")
		return
	}

	s.jsonResponse(w, http.StatusOK, FilesResponse{Files: files})
}

// uploadError reports a failed upload. Hitting the body limit is always a
// 413; anything else gets fallback.
func (s *Server) uploadError(w http.ResponseWriter, err error, fallback int) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		s.errorResponse(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Upload exceeds the %d byte limit", tooLarge.Limit))
		return
	}
	if fallback >= http.StatusInternalServerError {
		s.logger.Error("upload.error", "error", err)
	}
	s.errorResponse(w, fallback, "Upload failed: "+err.Error())
}

// handleFiles lists the files of the current session
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(w, r)
	if err != nil {
		s.failure(w, err)
		return
	}

	files, err := s.store.List(sess)
	if err != nil {
		s.failure(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, FilesResponse{Files: files})
}

// decodeExtractRequest validates the body of /extract and resolves the ids
// to stored files. Unknown ids are ignored; a request that names no
// existing file is rejected.
func (s *Server) decodeExtractRequest(w http.ResponseWriter, r *http.Request) ([]extraction.Source, error) {
	sess, err := s.session(w, r)
	if err != nil {
		return nil, err
	}

	var req ExtractRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		return nil, &ErrValidation{Message: "Invalid request body: " + err.Error()}
	}
	if err := requestValidator.Struct(req); err != nil {
		return nil, &ErrValidation{Message: "No files selected for extraction"}
	}

	sources := make([]extraction.Source, 0, len(req.FileIDs))
	for _, id := range req.FileIDs {
		path, err := s.store.Path(sess, id)
		if errors.Is(err, sessions.ErrNotFound) || errors.Is(err, sessions.ErrInvalidID) {
			s.logger.Debug("extract.file.unknown", "session_id", sess.ID, "id", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		sources = append(sources, extraction.Source{Path: path, Filename: id})
	}
	if len(sources) == 0 {
		return nil, &ErrValidation{Message: "No valid files found"}
	}
	return sources, nil
}

// handleExtract runs extraction over the selected files
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	sources, err := s.decodeExtractRequest(w, r)
	if err != nil {
		s.failure(w, err)
		return
	}

	batch, err := s.extractor.Extract(r.Context(), sources, nil)
	if err != nil {
		s.logger.Error("extract.batch.error", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, batch)
}

// handleExtractStream runs extraction and streams each outcome via SSE
func (s *Server) handleExtractStream(w http.ResponseWriter, r *http.Request) {
	sources, err := s.decodeExtractRequest(w, r)
	if err != nil {
		s.failure(w, err)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	onEvent := func(ev extraction.Event) {
		name := "result"
		if ev.Skip != nil {
			name = "skipped"
		}
		if err := sse.WriteEvent(name, ev); err != nil {
			s.logger.Warn("extract.stream.write_error", "error", err)
		}
	}

	batch, err := s.extractor.Extract(r.Context(), sources, onEvent)
	if err != nil {
		s.logger.Error("extract.batch.error", "error", err)
		sse.WriteError(err.Error())
		return
	}
	sse.WriteComplete(len(batch.Results), len(batch.Skipped))
}

// handleClear removes every file of the session
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(w, r)
	if err != nil {
		s.failure(w, err)
		return
	}
	if err := s.store.Clear(sess); err != nil {
		s.failure(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, MessageResponse{Message: "Session cleared"})
}

// handleDownload returns a stored file as an attachment
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	s.serveFile(w, r, "attachment")
}

// handlePreview returns a stored file for inline display
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	s.serveFile(w, r, "inline")
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, disposition string) {
	sess, err := s.session(w, r)
	if err != nil {
		s.failure(w, err)
		return
	}

	id := r.PathValue("id")
	f, err := s.store.Open(sess, id)
	if err != nil {
		if errors.Is(err, sessions.ErrNotFound) || errors.Is(err, sessions.ErrInvalidID) {
			s.errorResponse(w, http.StatusNotFound, "File not found")
			return
		}
		s.failure(w, err)
		return
	}
	defer func() { _ = f.Close() }()

	modTime := time.Time{}
	if info, err := f.Stat(); err == nil {
		modTime = info.ModTime()
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": id}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, id, modTime, f)
}

// handleDelete removes one stored file
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(w, r)
	if err != nil {
		s.failure(w, err)
		return
	}

	if err := s.store.Delete(sess, r.PathValue("id")); err != nil {
		if errors.Is(err, sessions.ErrNotFound) || errors.Is(err, sessions.ErrInvalidID) {
			s.errorResponse(w, http.StatusNotFound, "File not found")
			return
		}
		s.failure(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, MessageResponse{Message: "File deleted successfully"})
}
