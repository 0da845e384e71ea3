package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/couchcryptid/trajectory-cluster/internal/cluster"
	"github.com/couchcryptid/trajectory-cluster/internal/config"
	"github.com/couchcryptid/trajectory-cluster/internal/domain"
)

// maxRequestBytes bounds the request body of POST /v1/cluster.
const maxRequestBytes = 64 << 20

// Clusterer labels a set of samples.
type Clusterer interface {
	Cluster(ctx context.Context, samples []domain.Sample, opts cluster.Options) (cluster.Result, error)
}

type clusterRequest struct {
	Samples []domain.Sample  `json:"samples"`
	Options config.Overrides `json:"options"`
}

type clusterResponse struct {
	cluster.Result
	Summary domain.Summary `json:"summary"`
}

type clusterHandler struct {
	clusterer Clusterer
	defaults  config.Clustering
	logger    *slog.Logger
}

func (h *clusterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req clusterRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	opts := h.defaults.ApplyOverrides(req.Options).Options()
	if err := opts.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := h.clusterer.Cluster(r.Context(), req.Samples, opts)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrInsufficientData) || errors.Is(err, domain.ErrInvalidClusterCount) {
			status = http.StatusUnprocessableEntity
		}
		h.logger.Warn("cluster request failed", "error", err, "status", status)
		writeError(w, status, err)
		return
	}

	writeJSON(w, http.StatusOK, clusterResponse{Result: res, Summary: res.Summary()})
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone away
}
