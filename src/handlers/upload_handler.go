// src/handlers/upload_handler.go
package handlers

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/username/flexfolio/src/config"
	"github.com/username/flexfolio/src/logger"
	"github.com/username/flexfolio/src/parsers/flex"
	"github.com/username/flexfolio/src/security/validation"
	"github.com/username/flexfolio/src/services"
	"github.com/username/flexfolio/src/utils"
)

type UploadHandler struct {
	importService services.ImportService
}

func NewUploadHandler(service services.ImportService) *UploadHandler {
	return &UploadHandler{
		importService: service,
	}
}

// HandleUpload accepts one or more statement files under the "files"
// form field, merges them into a single statement and runs the import
// pipeline. The optional "accountGroup" field names the target ledger
// account group.
func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(config.Cfg.MaxUploadSizeBytes); err != nil {
		logger.L.Warn("Failed to parse multipart form or request too large", "error", err, "limit", config.Cfg.MaxUploadSizeBytes)
		utils.SendJSONError(w, fmt.Sprintf("Failed to parse form or request too large (max %d MB)", config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["file"]
	}
	if len(headers) == 0 {
		utils.SendJSONError(w, "No statement files in request. Use the 'files' form field.", http.StatusBadRequest)
		return
	}

	accountGroup := r.FormValue("accountGroup")
	if accountGroup == "" {
		utils.SendJSONError(w, "Missing 'accountGroup' form field.", http.StatusBadRequest)
		return
	}

	files := make([]flex.File, 0, len(headers))
	opened := make([]multipart.File, 0, len(headers))
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()

	for _, fh := range headers {
		if fh.Size > config.Cfg.MaxUploadSizeBytes {
			logger.L.Warn("Uploaded file reports size too large", "filename", fh.Filename, "fileSize", fh.Size, "limit", config.Cfg.MaxUploadSizeBytes)
			utils.SendJSONError(w, fmt.Sprintf("File '%s' too large, max %d MB", fh.Filename, config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
			return
		}

		clientContentType := fh.Header.Get("Content-Type")
		if err := validation.ValidateClientContentType(clientContentType); err != nil {
			logger.L.Warn("Invalid client-declared file type", "filename", fh.Filename, "contentType", clientContentType, "error", err)
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}

		file, err := fh.Open()
		if err != nil {
			logger.L.Warn("Failed to open uploaded file", "filename", fh.Filename, "error", err)
			utils.SendJSONError(w, "Failed to read uploaded file.", http.StatusBadRequest)
			return
		}
		opened = append(opened, file)

		if _, err := validation.ValidateFileContentByMagicBytes(file); err != nil {
			logger.L.Warn("Server-side file content validation failed", "filename", fh.Filename, "error", err)
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}

		files = append(files, flex.File{Name: fh.Filename, Reader: file})
	}

	logger.L.Info("Processing upload request", "files", len(files), "accountGroup", accountGroup)
	summary, err := h.importService.ImportFiles(r.Context(), files, accountGroup)
	if err != nil {
		switch {
		case errors.Is(err, flex.ErrNoSectionsFound), errors.Is(err, flex.ErrNoBaseLayoutFound):
			logger.L.Warn("Upload failed, not a recognizable statement", "error", err)
			utils.SendJSONError(w, fmt.Sprintf("Uploaded files do not contain a recognizable statement: %v", err), http.StatusBadRequest)
		case errors.Is(err, services.ErrParsingFailed):
			logger.L.Warn("Upload failed during statement parsing", "error", err)
			utils.SendJSONError(w, fmt.Sprintf("Error parsing statement: %v", err), http.StatusBadRequest)
		default:
			logger.L.Error("Internal error processing upload", "error", err)
			utils.SendJSONError(w, "An internal error occurred while processing the upload. Please try again later.", http.StatusInternalServerError)
		}
		return
	}

	logger.L.Info("Upload processed",
		"imported", summary.Imported, "duplicates", summary.Duplicates,
		"skipped", summary.Skipped, "failed", summary.Failed)
	utils.SendJSON(w, summary, http.StatusOK)
}
