package receipt

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	// High-resolution phone photos are large
	maxUploadSize = int64(50 << 20) // 50MB
	maxTextSize   = int64(1 << 20)

	sourceHeader = "X-Extraction-Source"

	tooLargeMessage = "File is too large. Maximum size is 50MB. Please compress or resize your image."
)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-Id")
	w.Header().Set("Access-Control-Expose-Headers", "X-Request-Id, X-Extraction-Source")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{
		"error": message,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeExtraction writes the field map as the body and the metadata as
// headers. ?envelope=true returns the whole Extraction instead.
func writeExtraction(w http.ResponseWriter, r *http.Request, ext *Extraction) {
	w.Header().Set(sourceHeader, string(ext.Source))
	if envelope, _ := strconv.ParseBool(r.URL.Query().Get("envelope")); envelope {
		writeJSON(w, http.StatusOK, ext)
		return
	}
	writeJSON(w, http.StatusOK, ext.Fields)
}

// writeServiceError maps service errors to client errors
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidKind):
		writeError(w, "Unknown document kind. Use 'maintenance' or 'fuel'.", http.StatusBadRequest)
	case errors.Is(err, ErrEmptyDocument):
		writeError(w, "The document is empty. Please upload a photo or provide recognized text.", http.StatusBadRequest)
	default:
		slog.Error("Error processing document", "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// detectContentType trusts the declared type unless it is missing or generic,
// then sniffs the bytes, then falls back to the file extension
func detectContentType(declared string, filename string, data []byte) string {
	contentType := strings.ToLower(strings.TrimSpace(declared))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}

	if detected := mimetype.Detect(data); !detected.Is("application/octet-stream") {
		return detected.String()
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// handleExtractDocument handles a multipart upload and runs the full pipeline
func (s *Server) handleExtractDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, tooLargeMessage, http.StatusRequestEntityTooLarge)
			return
		}
		writeError(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		errorMsg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			errorMsg = "No file was selected. Please choose a file to upload."
		}
		writeError(w, errorMsg, http.StatusBadRequest)
		return
	}
	defer f.Close()

	if header.Size > maxUploadSize {
		writeError(w, tooLargeMessage, http.StatusRequestEntityTooLarge)
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}
	if len(data) == 0 {
		writeError(w, "The uploaded file is empty.", http.StatusBadRequest)
		return
	}

	contentType := detectContentType(header.Header.Get("Content-Type"), header.Filename, data)

	ext, err := s.service.ProcessDocument(r.Context(), header.Filename, data, contentType, r.FormValue("kind"), r.FormValue("text"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeExtraction(w, r, ext)
}

// handleExtractText runs the regex path over recognized text
func (s *Server) handleExtractText(w http.ResponseWriter, r *http.Request) {
	var req TextRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTextSize)).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ext, err := s.service.ProcessText(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeExtraction(w, r, ext)
}

// handleDocumentTypes lists labels and schemas for clients building forms
func (s *Server) handleDocumentTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.DocumentTypes())
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
