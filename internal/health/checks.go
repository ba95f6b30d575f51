package health

import (
	"context"
	"net/http"

	"kvpedit/internal/pipeline"
	"kvpedit/internal/store"
)

// ServiceCheck reports whether the segmentation service answers HTTP at
// baseURL. Any response counts; only transport failures are unhealthy.
func ServiceCheck(client *http.Client, baseURL string) Check {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) CheckResult {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
		if err != nil {
			return CheckResult{Status: StatusUnhealthy, Message: "invalid service url", Error: err.Error()}
		}
		resp, err := client.Do(req)
		if err != nil {
			return CheckResult{Status: StatusUnhealthy, Message: "service unreachable", Error: err.Error()}
		}
		resp.Body.Close()
		return CheckResult{
			Status:  StatusHealthy,
			Message: "service reachable",
			Details: map[string]any{"url": baseURL, "http_status": resp.StatusCode},
		}
	}
}

// StoreCheck reports whether preferences persist. An unusable store only
// degrades the session since it keeps running on defaults.
func StoreCheck(kv store.KV) Check {
	return func(ctx context.Context) CheckResult {
		keys, err := kv.Keys()
		if err != nil {
			return CheckResult{Status: StatusDegraded, Message: "preferences are not persisted", Error: err.Error()}
		}
		return CheckResult{
			Status:  StatusHealthy,
			Message: "preference store ok",
			Details: map[string]any{"keys": len(keys)},
		}
	}
}

// PipelineCheck reports the stage of the live document.
func PipelineCheck(o *pipeline.Orchestrator) Check {
	return func(ctx context.Context) CheckResult {
		snap := o.Snapshot()
		return CheckResult{
			Status: StatusHealthy,
			Details: map[string]any{
				"session_id": snap.SessionID,
				"stage":      snap.Stage.String(),
				"busy":       snap.Busy,
				"variant":    snap.Variant,
				"updated_at": snap.UpdatedAt,
			},
		}
	}
}
