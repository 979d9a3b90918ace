package status

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	lhttp "github.com/wesleyorama2/lunge-worker/internal/http"
)

// ReportPath is the orchestrator endpoint receiving task statuses.
const ReportPath = "/api/task/testTaskFinished.json"

// HTTPReporter posts statuses to the orchestrator as
// {"taskId": id, "uuid": worker, "status": code}. The orchestrator answers
// {"error_code": n, "error_msg": text}; any code other than 200 is a
// rejection.
type HTTPReporter struct {
	client     *lhttp.Client
	url        string
	workerUUID string
	logger     *zap.Logger
}

// NewHTTPReporter creates a reporter for the orchestrator at baseURL, such
// as "http://10.0.0.5:8080".
func NewHTTPReporter(baseURL, workerUUID string, client *lhttp.Client, logger *zap.Logger) *HTTPReporter {
	if client == nil {
		client = lhttp.NewClient()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPReporter{
		client:     client,
		url:        strings.TrimSuffix(baseURL, "/") + ReportPath,
		workerUUID: workerUUID,
		logger:     logger,
	}
}

type reportBody struct {
	TaskID int64  `json:"taskId"`
	UUID   string `json:"uuid"`
	Status int    `json:"status"`
}

func (h *HTTPReporter) Report(ctx context.Context, taskID int64, s Status) error {
	body, err := json.Marshal(reportBody{TaskID: taskID, UUID: h.workerUUID, Status: int(s)})
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}

	req := lhttp.NewRequest("POST", h.url).
		WithHeader("Content-Type", "application/json;charset=UTF-8").
		WithBody(body)

	resp, err := h.client.Do(ctx, req)
	if err != nil {
		h.logger.Error("failed to report task status",
			zap.Int64("task", taskID),
			zap.Stringer("status", s),
			zap.Error(err))
		return fmt.Errorf("failed to report status %s: %w", s, err)
	}
	if resp.StatusCode != 200 {
		h.logger.Error("orchestrator unavailable",
			zap.Int64("task", taskID),
			zap.Int("http_status", resp.StatusCode))
		return fmt.Errorf("orchestrator returned HTTP %d", resp.StatusCode)
	}

	reply := resp.GetBodyAsString()
	if code := gjson.Get(reply, "error_code"); code.Int() != 200 {
		msg := gjson.Get(reply, "error_msg").String()
		h.logger.Error("task status rejected",
			zap.Int64("task", taskID),
			zap.Stringer("status", s),
			zap.Int64("error_code", code.Int()),
			zap.String("error_msg", msg))
		return fmt.Errorf("orchestrator rejected status %s: %s", s, msg)
	}

	h.logger.Debug("task status reported",
		zap.Int64("task", taskID),
		zap.Stringer("status", s))
	return nil
}
