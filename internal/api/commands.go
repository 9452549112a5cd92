package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/seestar-core/internal/telescope/command"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 128
)

// CommandList is the body of the command listing endpoints.
type CommandList struct {
	Commands []command.Result `json:"commands"`
	Count    int              `json:"count"`
}

func resultsOf(handles []*command.Handle) CommandList {
	out := CommandList{Commands: make([]command.Result, 0, len(handles))}
	for _, h := range handles {
		out.Commands = append(out.Commands, h.Result())
	}
	out.Count = len(out.Commands)
	return out
}

// handleSubmitCommand submits a command.Request as an intent.
//
// Without ?wait=true the response is 202 with the pending result (its ID is
// the command ID), or 200 when the intent was refused at submission. With
// ?wait=true the handler blocks until resolution or until the request ends,
// and answers 200 with the final result. A resolved failure is still a 200:
// the outcome is in the body's status.
func (s *Server) handleSubmitCommand(w http.ResponseWriter, r *http.Request) {
	wait := false
	if v := r.URL.Query().Get("wait"); v != "" {
		var err error
		if wait, err = strconv.ParseBool(v); err != nil {
			writeBadRequest(w, "wait must be a boolean")
			return
		}
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return
		}
		writeBadRequest(w, "could not read request body")
		return
	}

	req, err := command.ParseRequest(body)
	if err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	in, err := req.Intent(command.WithSource(SourceAPI))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	h, err := s.coordinator.Submit(r.Context(), in)
	switch {
	case err == nil:
	case errors.Is(err, command.ErrInvalidIntent):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	case errors.Is(err, command.ErrClosed):
		writeUnavailable(w, "command coordinator is shutting down")
		return
	default:
		// The caller went away before submission.
		s.logger.Debug("command submission abandoned", "error", err)
		return
	}

	w.Header().Set("Location", "/api/v1/commands/"+h.ID())

	if !wait {
		res := h.Result()
		status := http.StatusAccepted
		if res.Resolved() {
			status = http.StatusOK
		}
		writeJSON(w, status, res)
		return
	}

	res, err := h.Wait(r.Context())
	if err != nil {
		// Request cancelled or timed out; the intent keeps running.
		s.logger.Debug("stopped waiting for command", "id", h.ID(), "error", err)
		writeJSON(w, http.StatusAccepted, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleListCommands returns the intents still in flight, oldest first.
func (s *Server) handleListCommands(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, resultsOf(s.coordinator.Active()))
}

// handleRecentCommands returns resolved intents, newest first.
//
// Query parameters:
//   - limit: max results (default 20, max 128)
func (s *Server) handleRecentCommands(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRecentLimit)
	}
	writeJSON(w, http.StatusOK, resultsOf(s.coordinator.Recent(limit)))
}

// handleGetCommand returns one in-flight or recently resolved intent.
func (s *Server) handleGetCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h, ok := s.coordinator.Lookup(id)
	if !ok {
		writeNotFound(w, "command not found")
		return
	}
	writeJSON(w, http.StatusOK, h.Result())
}

// handleCancelCommand cancels an in-flight intent. Cancelling a resolved
// intent leaves it as it was and returns its result.
func (s *Server) handleCancelCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.coordinator.Cancel(id); err != nil {
		if errors.Is(err, command.ErrNotFound) {
			writeNotFound(w, "command not found")
			return
		}
		s.logger.Error("failed to cancel command", "id", id, "error", err)
		writeInternalError(w, "failed to cancel command")
		return
	}

	h, ok := s.coordinator.Lookup(id)
	if !ok {
		// Aged out of history between the two calls.
		writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(command.StatusCancelled)})
		return
	}
	writeJSON(w, http.StatusOK, h.Result())
}
