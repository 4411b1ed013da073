package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/kpipulse/api/internal/model"
	"github.com/kpipulse/api/internal/service"
	"github.com/kpipulse/api/internal/status"
)

type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks int
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks++
	return &asynq.TaskInfo{}, nil
}

type fakeNotifier struct{}

func (fakeNotifier) Notify(ctx context.Context, message string, status model.NotificationStatus) {}

func newPipelineApp(t *testing.T) (*fiber.App, *status.Registry) {
	t.Helper()
	reg := status.NewRegistry(nil, zap.NewNop())
	svc := service.NewPipelineService(reg, &fakeEnqueuer{}, fakeNotifier{}, []string{"D", "E", "F"}, zap.NewNop())
	h := NewPipelineHandler(svc)

	app := fiber.New()
	app.Post("/api/pipeline/run", h.Run)
	app.Get("/api/pipeline/status", h.Status)
	app.Post("/api/pipeline/cancel", h.Cancel)
	return app, reg
}

func workbookBytes(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func multipartUpload(t *testing.T, fields map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for field, data := range fields {
		fw, err := w.CreateFormFile(field, field+".xlsx")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return body, w.FormDataContentType()
}

func TestPipelineRunRequiresFiles(t *testing.T) {
	app, _ := newPipelineApp(t)

	resp, err := app.Test(httptest.NewRequest("POST", "/api/pipeline/run", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 without multipart body", resp.StatusCode)
	}
}

func TestPipelineRunAcceptsThenConflicts(t *testing.T) {
	app, _ := newPipelineApp(t)
	wb := workbookBytes(t)

	body, ctype := multipartUpload(t, map[string][]byte{"file_D_1": wb, "file_D_2": wb})
	req := httptest.NewRequest("POST", "/api/pipeline/run", body)
	req.Header.Set("Content-Type", ctype)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("first run: status = %d, want 202", resp.StatusCode)
	}

	body, ctype = multipartUpload(t, map[string][]byte{"file_D_1": wb, "file_D_2": wb})
	req = httptest.NewRequest("POST", "/api/pipeline/run", body)
	req.Header.Set("Content-Type", ctype)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("second run: status = %d, want 409 while the first is in flight", resp.StatusCode)
	}
}

func TestPipelineStatusStartsIdle(t *testing.T) {
	app, _ := newPipelineApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/pipeline/status", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var st model.JobStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.State != model.JobStateIdle {
		t.Errorf("initial state = %s, want idle", st.State)
	}
}

func TestPipelineCancelWithoutRunningJob(t *testing.T) {
	app, _ := newPipelineApp(t)

	resp, err := app.Test(httptest.NewRequest("POST", "/api/pipeline/cancel", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 when nothing is running", resp.StatusCode)
	}
}

func TestPipelineCancelRunningJob(t *testing.T) {
	app, reg := newPipelineApp(t)
	if err := reg.TryStart(model.JobClassPipeline, "test"); err != nil {
		t.Fatal(err)
	}

	resp, err := app.Test(httptest.NewRequest("POST", "/api/pipeline/cancel", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out model.PipelineCancelResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if !out.Success || out.Status != model.JobStateCancelled {
		t.Errorf("cancel response = %+v", out)
	}
}
