package triageapi

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/linnemanlabs/fbtriage/internal/ingest"
	"github.com/linnemanlabs/fbtriage/internal/triage"
)

// formField is the multipart field carrying the uploaded file.
const formField = "file"

// multipartMemory is how much of a multipart upload is buffered in memory
// before spilling to temp files. The body itself is capped by MaxBody.
const multipartMemory = 8 << 20

func (a *API) handleSubmit(w http.ResponseWriter, r *http.Request) {
	name, body, closeBody, err := uploadSource(r)
	if err != nil {
		a.writeUploadError(w, r, err)
		return
	}
	defer closeBody()

	items, err := ingest.Parse(name, body)
	if err != nil {
		a.writeUploadError(w, r, err)
		return
	}

	res, err := a.svc.Submit(r.Context(), name, items)
	if err != nil {
		a.writeUploadError(w, r, err)
		return
	}

	a.logger.Info(r.Context(), "batch accepted", "batch_id", res.ID, "items", res.Items, "source", name)

	w.Header().Set("Location", "/api/v1/batches/"+res.ID)
	writeJSON(w, http.StatusAccepted, res)
}

// uploadSource returns the file name and content of an upload. Multipart
// requests carry the file in the "file" field; any other body is the file
// itself, named by the filename query parameter.
func uploadSource(r *http.Request) (string, io.Reader, func(), error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return "", nil, nil, &triage.InputParseError{Err: fmt.Errorf("multipart: %w", err)}
		}
		f, hdr, err := r.FormFile(formField)
		if err != nil {
			return "", nil, nil, &triage.InputParseError{Err: fmt.Errorf("form field %q: %w", formField, err)}
		}
		return cleanName(hdr.Filename, mediaType), f, func() { _ = f.Close() }, nil
	}

	return cleanName(r.URL.Query().Get("filename"), mediaType), r.Body, func() {}, nil
}

// cleanName strips any directory from a client supplied name and falls back
// to a name whose extension matches the content type.
func cleanName(name, mediaType string) string {
	if name != "" {
		if base := filepath.Base(filepath.Clean("/" + name)); base != "/" && base != "." {
			return base
		}
	}
	if mediaType == "text/csv" {
		return "upload.csv"
	}
	return "upload.txt"
}

func (a *API) writeUploadError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	var parseErr *triage.InputParseError
	switch {
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
	case errors.As(err, &parseErr):
		writeError(w, http.StatusBadRequest, parseErr.Error())
	case errors.Is(err, triage.ErrEmptyBatch):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		a.logger.Error(r.Context(), err, "failed to submit batch")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
