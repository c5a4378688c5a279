// Package admin serves a small HTTP API for inspecting and repairing the
// agent: shard queue depth, committed offsets, pending segments and the
// table schema cache.
package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/maxpert/commitlog-cdc/commitlog"
	"github.com/maxpert/commitlog-cdc/event"
	"github.com/maxpert/commitlog-cdc/offset"
	"github.com/maxpert/commitlog-cdc/telemetry"
	"github.com/rs/zerolog/log"
)

// OffsetStore is the part of the offset store the admin API reads and repairs
type OffsetStore interface {
	Segments() []offset.SegmentOffset
	Get(segment string) (offset.SegmentOffset, bool, error)
	Latest() (event.Position, bool, error)
	Forget(segment string) error
}

// PipelineStatus reports the state of the shard pipeline
type PipelineStatus interface {
	QueueStats() []telemetry.QueueStats
	Err() error
}

// Handlers serves the admin endpoints
type Handlers struct {
	offsets  OffsetStore
	pipeline PipelineStatus
	schemas  SchemaCache
	cdcDir   string
}

// NewHandlers creates handlers reading from offsets, pipeline and schemas.
// cdcDir is the directory segments are consumed from.
func NewHandlers(offsets OffsetStore, pipeline PipelineStatus, schemas SchemaCache, cdcDir string) *Handlers {
	return &Handlers{
		offsets:  offsets,
		pipeline: pipeline,
		schemas:  schemas,
		cdcDir:   cdcDir,
	}
}

type queueResponse struct {
	Shard       int     `json:"shard"`
	Depth       int     `json:"depth"`
	Capacity    int     `json:"capacity"`
	Utilization float64 `json:"utilization"`
}

type offsetResponse struct {
	Segment   string `json:"segment"`
	Offset    int64  `json:"offset"`
	Complete  bool   `json:"complete"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type pendingResponse struct {
	Segment  string `json:"segment"`
	Tracked  bool   `json:"tracked"`
	Offset   int64  `json:"offset"`
	Complete bool   `json:"complete"`
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.pipeline.Err(); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "failed", "error": err.Error()})
		return
	}
	writeJSONResponse(w, map[string]string{"status": "ok"}, false, "")
}

func (h *Handlers) handleQueues(w http.ResponseWriter, r *http.Request) {
	stats := h.pipeline.QueueStats()
	out := make([]queueResponse, 0, len(stats))
	for _, s := range stats {
		q := queueResponse{Shard: s.Shard, Depth: s.Depth, Capacity: s.Capacity}
		if s.Capacity > 0 {
			q.Utilization = float64(s.Depth) / float64(s.Capacity)
		}
		out = append(out, q)
	}
	writeJSONResponse(w, out, false, "")
}

// handleOffsets lists committed segments ordered by name, paginated with
// limit and from (exclusive)
func (h *Handlers) handleOffsets(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	from := parseFrom(r)

	out := make([]offsetResponse, 0, limit)
	hasMore := false
	lastKey := ""
	for _, entry := range h.offsets.Segments() {
		if from != "" && entry.Segment <= from {
			continue
		}
		if len(out) == limit {
			hasMore = true
			break
		}
		out = append(out, toOffsetResponse(entry))
		lastKey = entry.Segment
	}

	if !hasMore {
		lastKey = ""
	}
	writeJSONResponse(w, out, hasMore, lastKey)
}

func (h *Handlers) handleLatest(w http.ResponseWriter, r *http.Request) {
	pos, ok, err := h.offsets.Latest()
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeErrorResponse(w, http.StatusNotFound, "no offsets committed yet")
		return
	}
	writeJSONResponse(w, map[string]any{
		"segment": pos.SegmentName(),
		"offset":  pos.Offset,
	}, false, "")
}

func (h *Handlers) handleOffset(w http.ResponseWriter, r *http.Request, segment string) {
	entry, ok, err := h.offsets.Get(segment)
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeErrorResponse(w, http.StatusNotFound, fmt.Sprintf("segment %s has no committed offsets", segment))
		return
	}
	writeJSONResponse(w, toOffsetResponse(entry), false, "")
}

// handleForget drops the committed state of a segment. A segment still in
// the cdc directory would be re-read from the start, so that needs force=true.
func (h *Handlers) handleForget(w http.ResponseWriter, r *http.Request, segment string) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	if !force && h.pending(segment) {
		writeErrorResponse(w, http.StatusConflict,
			fmt.Sprintf("segment %s is still in the cdc directory, pass force=true to replay it", segment))
		return
	}

	if err := h.offsets.Forget(segment); err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Warn().Str("segment", segment).Bool("force", force).Msg("Committed offsets forgotten via admin API")
	w.WriteHeader(http.StatusNoContent)
}

// handlePending lists the segments waiting in the cdc directory, oldest first
func (h *Handlers) handlePending(w http.ResponseWriter, r *http.Request) {
	paths, err := commitlog.ListSegments(h.cdcDir)
	if err != nil {
		var dirErr *commitlog.InvalidDirectoryError
		if errors.As(err, &dirErr) {
			writeErrorResponse(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]pendingResponse, 0, len(paths))
	for _, path := range paths {
		p := pendingResponse{Segment: filepath.Base(path), Offset: -1}
		entry, ok, err := h.offsets.Get(path)
		if err != nil {
			writeErrorResponse(w, http.StatusInternalServerError, err.Error())
			return
		}
		if ok {
			p.Tracked = true
			p.Offset = entry.Offset
			p.Complete = entry.Complete
		}
		out = append(out, p)
	}
	writeJSONResponse(w, out, false, "")
}

func (h *Handlers) pending(segment string) bool {
	paths, err := commitlog.ListSegments(h.cdcDir)
	if err != nil {
		return false
	}
	for _, path := range paths {
		if filepath.Base(path) == segment {
			return true
		}
	}
	return false
}

func toOffsetResponse(entry offset.SegmentOffset) offsetResponse {
	return offsetResponse{
		Segment:   entry.Segment,
		Offset:    entry.Offset,
		Complete:  entry.Complete,
		UpdatedAt: formatTimestamp(entry.UpdatedAt),
	}
}

// writeJSONResponse writes a successful JSON response
func writeJSONResponse(w http.ResponseWriter, data any, hasMore bool, lastKey string) {
	response := map[string]any{
		"data": data,
	}

	if hasMore || lastKey != "" {
		response["has_more"] = hasMore
		if lastKey != "" {
			response["last_key"] = lastKey
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error JSON response
func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]any{"error": message}); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}

// parseLimit parses limit parameter with defaults
func parseLimit(r *http.Request) (int, error) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return 256, nil
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return 0, fmt.Errorf("invalid limit parameter: %w", err)
	}

	if limit < 1 {
		return 0, fmt.Errorf("limit must be positive")
	}

	if limit > 1024 {
		return 0, fmt.Errorf("limit cannot exceed 1024")
	}

	return limit, nil
}

func parseFrom(r *http.Request) string {
	return r.URL.Query().Get("from")
}

// formatTimestamp converts epoch milliseconds to RFC 3339
func formatTimestamp(millis int64) string {
	if millis == 0 {
		return ""
	}
	return time.UnixMilli(millis).UTC().Format(time.RFC3339Nano)
}
