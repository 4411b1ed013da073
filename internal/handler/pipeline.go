package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/kpipulse/api/internal/model"
	"github.com/kpipulse/api/internal/service"
	"github.com/kpipulse/api/internal/status"
	"github.com/kpipulse/api/pkg/response"
)

// PipelineHandler exposes the fusion pipeline job over HTTP. Uploads
// arrive as multipart fields named file_<line>_<index> where index is 1
// or 2, one workbook pair per production line.
type PipelineHandler struct {
	service *service.PipelineService
}

func NewPipelineHandler(svc *service.PipelineService) *PipelineHandler {
	return &PipelineHandler{service: svc}
}

// Run handles POST /api/pipeline/run
func (h *PipelineHandler) Run(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return response.ValidationError(c, "Multipart form data is required", nil)
	}

	files, err := collectUploads(form.File)
	if err != nil {
		return response.ValidationError(c, err.Error(), nil)
	}
	if len(files) == 0 {
		return response.ValidationError(c, "No files received", nil)
	}

	units := h.service.BuildUnits(files)
	if err := h.service.Start(c.Context(), units); err != nil {
		if errors.Is(err, status.ErrAlreadyRunning) {
			return response.Conflict(c, "A processing job is already running")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, model.JobAcceptedResponse{Message: "Processing started"})
}

// Status handles GET /api/pipeline/status
func (h *PipelineHandler) Status(c *fiber.Ctx) error {
	return response.OK(c, h.service.Status())
}

// Cancel handles POST /api/pipeline/cancel
func (h *PipelineHandler) Cancel(c *fiber.Ctx) error {
	st, err := h.service.Cancel(c.Context())
	if err != nil {
		if errors.Is(err, status.ErrNotRunning) {
			return response.ValidationError(c, "No processing job is running", nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, model.PipelineCancelResponse{Success: true, Status: st.State})
}

// collectUploads reads every file_<line>_<index> field into memory.
// Fields not matching the naming scheme are ignored.
func collectUploads(fields map[string][]*multipart.FileHeader) ([]service.UploadedFile, error) {
	var files []service.UploadedFile
	for field, headers := range fields {
		parts := strings.Split(field, "_")
		if len(parts) != 3 || parts[0] != "file" {
			continue
		}
		for _, fh := range headers {
			data, err := readUpload(fh)
			if err != nil {
				return nil, fmt.Errorf("failed to read upload %s: %w", fh.Filename, err)
			}
			files = append(files, service.UploadedFile{
				Line:     parts[1],
				Index:    parts[2],
				Filename: fh.Filename,
				Data:     data,
			})
		}
	}
	return files, nil
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
