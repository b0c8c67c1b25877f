package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/procmap-io/procmap/pkg/cluster"
	"github.com/procmap-io/procmap/pkg/diagram"
	"github.com/procmap-io/procmap/pkg/intent"
	"github.com/procmap-io/procmap/pkg/models"
	"github.com/procmap-io/procmap/pkg/services"
)

// ClusterHandler exposes the cluster engine over HTTP.
type ClusterHandler struct {
	svc        *services.ClusterService
	classifier *intent.Classifier
	logger     *zap.Logger
}

// NewClusterHandler creates a ClusterHandler. classifier may be nil, in
// which case free-text commands use the keyword heuristic.
func NewClusterHandler(svc *services.ClusterService, classifier *intent.Classifier, logger *zap.Logger) *ClusterHandler {
	return &ClusterHandler{svc: svc, classifier: classifier, logger: logger}
}

// RegisterRoutes registers the cluster handler's routes on the given mux.
func (h *ClusterHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/clusters", h.Summary)
	mux.HandleFunc("GET /api/clusters/{id}", h.Detail)
	mux.HandleFunc("GET /api/clusters/{id}/dot", h.ClusterDOT)
	mux.HandleFunc("GET /api/diagram/dot", h.SummaryDOT)
	mux.HandleFunc("GET /api/snapshot", h.Snapshot)
	mux.HandleFunc("GET /api/trash", h.Trash)
	mux.HandleFunc("POST /api/operations", h.Operation)
	mux.HandleFunc("POST /api/command", h.Command)
	mux.HandleFunc("POST /api/rebuild", h.Rebuild)
}

// Summary handles GET /api/clusters.
func (h *ClusterHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Summary()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.write(w, summary)
}

// Detail handles GET /api/clusters/{id}.
func (h *ClusterHandler) Detail(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.ClusterDetail(r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.write(w, detail)
}

// Snapshot handles GET /api/snapshot.
func (h *ClusterHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Snapshot()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.write(w, snap)
}

// Trash handles GET /api/trash.
func (h *ClusterHandler) Trash(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Execute(services.OpListTrash, nil)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.write(w, res)
}

// SummaryDOT handles GET /api/diagram/dot.
func (h *ClusterHandler) SummaryDOT(w http.ResponseWriter, r *http.Request) {
	var dot string
	err := h.svc.View(func(st *cluster.State) error {
		dot = diagram.SummaryDOT(st)
		return nil
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/vnd.graphviz")
	_, _ = w.Write([]byte(dot))
}

// ClusterDOT handles GET /api/clusters/{id}/dot.
func (h *ClusterHandler) ClusterDOT(w http.ResponseWriter, r *http.Request) {
	var dot string
	err := h.svc.View(func(st *cluster.State) error {
		var renderErr error
		dot, renderErr = diagram.ClusterDOT(st, r.PathValue("id"))
		return renderErr
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/vnd.graphviz")
	_, _ = w.Write([]byte(dot))
}

// OperationRequest is a structured operation call.
type OperationRequest struct {
	Operation string         `json:"operation"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Operation handles POST /api/operations with a structured body.
func (h *ClusterHandler) Operation(w http.ResponseWriter, r *http.Request) {
	var req OperationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "bad_request", "invalid JSON body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Operation) == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "bad_request", "operation is required")
		return
	}
	res, err := h.svc.Execute(req.Operation, req.Arguments)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeResult(w, res)
}

// CommandRequest is a free-text command to classify and execute.
type CommandRequest struct {
	Text string `json:"text"`
}

// CommandResponse pairs the classification with the execution result.
type CommandResponse struct {
	Intent *intent.Result   `json:"intent"`
	Result *models.OpResult `json:"result,omitempty"`
}

// Command handles POST /api/command: classify free text, then execute the
// recognized operation.
func (h *ClusterHandler) Command(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "bad_request", "invalid JSON body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "bad_request", "text is required")
		return
	}

	var classified *intent.Result
	if h.classifier != nil {
		classified = h.classifier.Classify(r.Context(), req.Text)
	} else {
		classified = intent.ClassifyHeuristic(req.Text)
	}
	resp := CommandResponse{Intent: classified}
	if classified.Operation == intent.OpUnknown {
		h.write(w, resp)
		return
	}

	res, err := h.svc.Execute(classified.Operation, classified.Arguments)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp.Result = &res
	h.write(w, resp)
}

// RebuildRequest optionally overrides the stored parameters.
type RebuildRequest struct {
	Parameters *models.Parameters `json:"parameters,omitempty"`
}

// Rebuild handles POST /api/rebuild. Destructive: manual edits and trash
// are discarded.
func (h *ClusterHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	var req RebuildRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			_ = ErrorResponse(w, http.StatusBadRequest, "bad_request", "invalid JSON body: "+err.Error())
			return
		}
	}
	if err := h.svc.Rebuild(req.Parameters); err != nil {
		h.writeError(w, err)
		return
	}
	summary, err := h.svc.Summary()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.write(w, summary)
}

func (h *ClusterHandler) write(w http.ResponseWriter, data any) {
	if err := WriteJSON(w, http.StatusOK, data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// writeResult maps a rejected operation to 422 so clients can distinguish
// expected failures from transport errors.
func (h *ClusterHandler) writeResult(w http.ResponseWriter, res models.OpResult) {
	status := http.StatusOK
	if !res.OK {
		status = http.StatusUnprocessableEntity
	}
	if err := WriteJSON(w, status, res); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *ClusterHandler) writeError(w http.ResponseWriter, err error) {
	status, code := statusForError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	_ = ErrorResponse(w, status, code, err.Error())
}
