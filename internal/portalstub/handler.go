package portalstub

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// maxBundleSize caps accepted uploads.
const maxBundleSize = 256 << 20

var errNotFound = errors.New("deployment not found")

// Handler serves the Publisher Portal endpoints from a Store.
type Handler struct {
	store *Store
}

// NewHandler creates a handler backed by store.
func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

// Upload handles POST /api/v1/publisher/upload
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.injected(w, r, "upload", "") {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBundleSize)
	mr, err := r.MultipartReader()
	if err != nil {
		h.fail(w, r, "upload", "", http.StatusBadRequest, "multipart body required: "+err.Error())
		return
	}

	var filename string
	var size int64
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			h.fail(w, r, "upload", "", http.StatusBadRequest, "invalid multipart body: "+err.Error())
			return
		}
		if part.FormName() == "bundle" && filename == "" {
			filename = part.FileName()
			size, err = io.Copy(io.Discard, part)
			if err != nil {
				h.fail(w, r, "upload", "", http.StatusBadRequest, "failed to read bundle: "+err.Error())
				return
			}
		}
		part.Close()
	}
	if filename == "" {
		h.fail(w, r, "upload", "", http.StatusBadRequest, "bundle part is required")
		return
	}

	query := r.URL.Query()
	publishingType := query.Get("publishingType")
	if publishingType == "" {
		publishingType = "USER_MANAGED"
	}
	if publishingType != "USER_MANAGED" && publishingType != "AUTOMATIC" {
		h.fail(w, r, "upload", "", http.StatusBadRequest, "invalid publishingType "+publishingType)
		return
	}

	d := h.store.create(query.Get("name"), filename, publishingType, size)
	h.store.record(requestOf(r, "upload", d.ID, http.StatusCreated))
	slog.Info("Bundle uploaded", "deploymentId", d.ID, "file", filename, "size", size, "publishingType", publishingType)

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusCreated)
	io.WriteString(w, d.ID)
}

// statusResponse mirrors the portal's status payload.
type statusResponse struct {
	DeploymentID    string          `json:"deploymentId"`
	DeploymentName  string          `json:"deploymentName"`
	DeploymentState string          `json:"deploymentState"`
	Purls           []string        `json:"purls"`
	Errors          json.RawMessage `json:"errors,omitempty"`
}

// Status handles POST /api/v1/publisher/status?id={deploymentId}
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if h.injected(w, r, "status", id) {
		return
	}
	if id == "" {
		h.fail(w, r, "status", id, http.StatusBadRequest, "id parameter is required")
		return
	}

	d, ok := h.store.advance(id)
	if !ok {
		h.fail(w, r, "status", id, http.StatusNotFound, errNotFound.Error())
		return
	}

	resp := statusResponse{
		DeploymentID:    d.ID,
		DeploymentName:  d.Name,
		DeploymentState: d.State(),
		Purls:           []string{},
	}
	if resp.DeploymentName == "" {
		resp.DeploymentName = d.Filename
	}
	if resp.DeploymentState == StateFailed {
		resp.Errors = d.errors
	}
	if resp.DeploymentState == StatePublished {
		resp.Purls = []string{"pkg:maven/" + strings.ReplaceAll(resp.DeploymentName, ":", "/")}
	}

	h.store.record(requestOf(r, "status", id, http.StatusOK))
	h.writeJSON(w, http.StatusOK, resp)
}

// Publish handles POST /api/v1/publisher/deployment/{deploymentId}
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("deploymentId")
	if h.injected(w, r, "publish", id) {
		return
	}

	if err := h.store.publish(id); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errNotFound) {
			status = http.StatusNotFound
		}
		h.fail(w, r, "publish", id, status, err.Error())
		return
	}

	h.store.record(requestOf(r, "publish", id, http.StatusNoContent))
	slog.Info("Deployment publishing", "deploymentId", id)
	w.WriteHeader(http.StatusNoContent)
}

// injected answers with a scripted failure code when one is queued for op.
func (h *Handler) injected(w http.ResponseWriter, r *http.Request, op, id string) bool {
	code, ok := h.store.injectedFailure(op)
	if !ok {
		return false
	}
	h.fail(w, r, op, id, code, "injected failure")
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op, id string, status int, message string) {
	h.store.record(requestOf(r, op, id, status))
	slog.Warn("Request rejected", "op", op, "deploymentId", id, "status", status, "error", message)
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func requestOf(r *http.Request, op, id string, status int) Request {
	return Request{
		Op:           op,
		Method:       r.Method,
		Path:         r.URL.Path,
		Query:        r.URL.RawQuery,
		DeploymentID: id,
		Status:       status,
	}
}
