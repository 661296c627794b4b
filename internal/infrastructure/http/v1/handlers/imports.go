package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"hvacstock/internal/core/apperror"
	"hvacstock/internal/domain/reconciliation"
)

// ImportHandler serves bulk reconciliation uploads.
type ImportHandler struct {
	*BaseHandler
	importer *reconciliation.Importer
	maxBytes int64
}

// NewImportHandler creates a new import handler. Files above maxBytes are rejected.
func NewImportHandler(base *BaseHandler, importer *reconciliation.Importer, maxBytes int64) *ImportHandler {
	return &ImportHandler{BaseHandler: base, importer: importer, maxBytes: maxBytes}
}

// Import handles POST /inventory/import?dryRun=true.
// The file comes as a multipart "file" field or as the raw text/csv body.
// Without dryRun=false nothing is written.
func (h *ImportHandler) Import(c *gin.Context) {
	dryRun := true
	if raw := c.Query("dryRun"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			h.Error(c, apperror.NewValidation("dryRun must be a boolean"))
			return
		}
		dryRun = parsed
	}

	body, closeBody, err := h.openFile(c)
	if err != nil {
		h.Error(c, err)
		return
	}
	defer closeBody()

	result, err := h.importer.Import(c.Request.Context(), body, dryRun, h.ActorID(c))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.Error(c, h.tooLarge())
			return
		}
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

func (h *ImportHandler) openFile(c *gin.Context) (io.Reader, func(), error) {
	noop := func() {}
	contentType := c.ContentType()

	if strings.HasPrefix(contentType, "multipart/") {
		header, err := c.FormFile("file")
		if err != nil {
			return nil, noop, apperror.NewValidation("multipart field \"file\" is required")
		}
		if header.Size > h.maxBytes {
			return nil, noop, h.tooLarge()
		}
		f, err := header.Open()
		if err != nil {
			return nil, noop, apperror.NewInternal(err)
		}
		return f, func() { _ = f.Close() }, nil
	}

	switch contentType {
	case "text/csv", "text/plain", "application/csv", "":
	default:
		appErr := apperror.NewValidation("unsupported content type").WithDetail("contentType", contentType)
		appErr.HTTPStatus = http.StatusUnsupportedMediaType
		return nil, noop, appErr
	}
	return http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes), noop, nil
}

func (h *ImportHandler) tooLarge() error {
	appErr := apperror.NewValidation("file too large").WithDetail("max_bytes", h.maxBytes)
	appErr.HTTPStatus = http.StatusRequestEntityTooLarge
	return appErr
}
