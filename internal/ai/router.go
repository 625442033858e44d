package ai

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Router picks the model for each task and forwards the request to the
// gateway provider. Lectures and recommendations go to the long-form model,
// everything else to the short structured-output model.
type Router struct {
	provider Provider
	models   map[TaskType]string
	mu       sync.RWMutex
}

// NewRouter creates a router over the given provider with the lecture and
// practice model names from configuration.
func NewRouter(provider Provider, lectureModel, practiceModel string) *Router {
	return &Router{
		provider: provider,
		models: map[TaskType]string{
			TaskLecture:   lectureModel,
			TaskRecommend: lectureModel,
			TaskPractice:  practiceModel,
			TaskSolving:   practiceModel,
			TaskGrading:   practiceModel,
		},
	}
}

// SetModel overrides the model used for a task.
func (r *Router) SetModel(task TaskType, model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[task] = model
}

// ModelFor returns the model name a task routes to.
func (r *Router) ModelFor(task TaskType) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.models[task]
}

// Complete routes a request to the model registered for its task and
// forwards it to the provider. An explicit req.Model wins over the task map.
func (r *Router) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	if req.Model == "" {
		req.Model = r.ModelFor(req.Task)
	}
	if req.Model == "" {
		return CompletionResponse{}, fmt.Errorf("no model registered for task %s", req.Task)
	}

	resp, err := r.provider.Complete(ctx, req)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("task %s via %s: %w", req.Task, req.Model, err)
	}

	slog.Debug("AI request completed",
		"task", req.Task.String(),
		"model", resp.Model,
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
	)
	return resp, nil
}
