package server

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/mriia-ai/tutor/internal/tutor"
)

// StreamEvent is one websocket frame on /tutor/stream. Stage frames arrive
// while the pipeline runs; the final frame carries the response or an error.
type StreamEvent struct {
	Type     string               `json:"type"` // "stage", "result" or "error"
	Stage    tutor.Stage          `json:"stage,omitempty"`
	Detail   string               `json:"detail,omitempty"`
	Response *tutor.QueryResponse `json:"response,omitempty"`
	Error    string               `json:"error,omitempty"`
}

// handleStream runs a tutoring request over a websocket, pushing stage
// progress as it happens. The client sends one QueryRequest frame and
// receives stage frames followed by a result frame.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()

	var req tutor.QueryRequest
	if err := wsjson.Read(ctx, conn, &req); err != nil {
		conn.Close(websocket.StatusInvalidFramePayloadData, "invalid request frame")
		return
	}

	// The progress callback runs on this goroutine, so writes are ordered.
	progress := func(stage tutor.Stage, detail string) {
		event := StreamEvent{Type: "stage", Stage: stage, Detail: detail}
		if err := wsjson.Write(ctx, conn, event); err != nil {
			slog.Debug("stage push failed", "stage", stage, "error", err)
		}
	}

	resp, err := s.svc.SubmitQuery(ctx, req, progress)
	if err != nil {
		wsjson.Write(ctx, conn, StreamEvent{Type: "error", Error: err.Error()})
		conn.Close(websocket.StatusNormalClosure, "done")
		return
	}

	if err := wsjson.Write(ctx, conn, StreamEvent{Type: "result", Response: resp}); err != nil {
		slog.Warn("result push failed", "error", err)
	}
	conn.Close(websocket.StatusNormalClosure, "done")
}
