package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	engine "github.com/framesync/framesync/internal/sync"
	"github.com/framesync/framesync/internal/synclog"
)

// errorBody is the JSON body of every non-2xx API response that is not a
// SyncResult or PullReport
type errorBody struct {
	Error     string           `json:"error"`
	ErrorKind engine.ErrorKind `json:"errorKind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error(), ErrorKind: engine.KindOf(err)})
}

// statusForKind maps a failure kind to an HTTP status
func statusForKind(kind engine.ErrorKind) int {
	switch kind {
	case engine.KindBusy, engine.KindConflict:
		return http.StatusConflict
	case engine.KindValidation:
		return http.StatusUnprocessableEntity
	case engine.KindNetwork:
		return http.StatusBadGateway
	case engine.KindLock:
		return http.StatusLocked
	case engine.KindConfiguration:
		return http.StatusPreconditionFailed
	}
	return http.StatusInternalServerError
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.GetStatus(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	res := s.service.PerformFullSync(r.Context())

	status := http.StatusOK
	switch {
	case res.Busy:
		status = http.StatusConflict
	case !res.Success:
		status = statusForKind(res.ErrorKind)
	}
	writeJSON(w, status, res)
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	rep := s.service.CheckAndPullIfBehind(r.Context())

	status := http.StatusOK
	if !rep.Success {
		status = statusForKind(rep.ErrorKind)
	}
	writeJSON(w, status, rep)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.VerifyConfiguration(r.Context()))
}

// handleLogs returns the sync log, newest first. ?limit=N keeps the N
// newest entries; ?since=RFC3339 drops older ones.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	var since time.Time
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("since must be an RFC 3339 timestamp"))
			return
		}
		since = t
	}

	entries, err := s.service.GetSyncLogs()
	if err != nil {
		writeError(w, statusForLogError(err), err)
		return
	}

	entries = synclog.Filter(entries, since, limit)
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ClearSyncLogs(); err != nil {
		writeError(w, statusForLogError(err), err)
		return
	}
	s.BroadcastData(MessageTypeLogsCleared, nil)
	w.WriteHeader(http.StatusNoContent)
}

func statusForLogError(err error) int {
	if errors.Is(err, engine.ErrNoHistory) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	var req RenameData
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("body must be {\"from\": ..., \"to\": ...}"))
		return
	}

	err := s.service.RenameImage(r.Context(), req.From, req.To)
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrInvalidName):
		writeError(w, http.StatusBadRequest, err)
		return
	case errors.Is(err, engine.ErrImageNotFound):
		writeError(w, http.StatusNotFound, err)
		return
	case errors.Is(err, engine.ErrImageExists), errors.Is(err, engine.ErrBusy):
		writeError(w, http.StatusConflict, err)
		return
	default:
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.BroadcastData(MessageTypeImageRenamed, req)
	writeJSON(w, http.StatusOK, req)
}
