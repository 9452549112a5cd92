package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/seestar-core/internal/audit"
	"github.com/nerrad567/seestar-core/internal/telescope/command"
)

// handleListAudit returns paginated command audit entries with optional filters.
//
// Query parameters:
//   - kind: filter by command kind (goto, expose, ...)
//   - status: filter by final status (succeeded, failed, timed_out, cancelled)
//   - source: filter by submitter (api, mqtt, cli)
//   - since: RFC 3339 timestamp; entries submitted at or after it
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeUnavailable(w, "command audit not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Kind:   command.Kind(q.Get("kind")),
		Status: command.Status(q.Get("status")),
		Source: q.Get("source"),
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		writeBadRequest(w, "unknown kind: "+string(filter.Kind))
		return
	}
	if filter.Status != "" && !filter.Status.Terminal() {
		writeBadRequest(w, "status must be a final status")
		return
	}

	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = since
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list command audit", "error", err)
		writeInternalError(w, "failed to list command audit")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
