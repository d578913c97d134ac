package apihttp

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"swarmstream/internal/domain"
	"swarmstream/internal/metrics"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type resolveRequest struct {
	Magnet      string `json:"magnet"`
	TorrentPath string `json:"torrentPath"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}
	if s.resolve == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "resolve use case not configured")
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	src := domain.TorrentSource{Magnet: strings.TrimSpace(req.Magnet), TorrentPath: strings.TrimSpace(req.TorrentPath)}
	if src.IsZero() {
		writeError(w, http.StatusBadRequest, "invalid_request", "magnet or torrentPath is required")
		return
	}
	if src.TorrentPath != "" && !pathInside(s.torrentDirs, src.TorrentPath) {
		writeError(w, http.StatusBadRequest, "invalid_request", "torrentPath must reside in a torrent directory")
		return
	}

	summary, found, err := s.resolve.Execute(r.Context(), src)
	if err != nil {
		metrics.MetadataResolveTotal.WithLabelValues("error").Inc()
		writeUseCaseError(w, err)
		return
	}
	if !found {
		metrics.MetadataResolveTotal.WithLabelValues("not_found").Inc()
		writeError(w, http.StatusNotFound, "no_metadata", "metadata not available within timeout")
		return
	}
	metrics.MetadataResolveTotal.WithLabelValues("found").Inc()
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleStreams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}
	if s.stats == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "stats provider not configured")
		return
	}

	stats, err := s.stats.List(r.Context())
	if err != nil {
		writeUseCaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleStreamByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}
	if s.stats == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "stats provider not configured")
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/streams/"), "/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}

	stat, err := s.stats.Get(r.Context(), domain.ContentID(id))
	if err != nil {
		writeUseCaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stat)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history_unavailable", "event history is not configured")
		return
	}

	limit, err := parseOptionalIntQuery(r.URL.Query().Get("limit"), 50)
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid limit")
		return
	}

	events, err := s.history.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "history_error", err.Error())
		return
	}
	if events == nil {
		events = []domain.StreamEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// handleStreamBySource serves GET /stream?magnet=... for consumers that have
// a magnet link but no session yet.
func (s *Server) handleStreamBySource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}

	magnet := strings.TrimSpace(r.URL.Query().Get("magnet"))
	if magnet == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "magnet query parameter is required")
		return
	}
	fileIndex, err := parseOptionalIntQuery(r.URL.Query().Get("fileIndex"), -1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid fileIndex")
		return
	}

	s.serveStream(w, r, "", domain.TorrentSource{Magnet: magnet}, fileIndex)
}

// handleStreamByPath serves GET /stream/{id} and GET /stream/{id}/{fileIndex}
// for sessions addressed by content id.
func (s *Server) handleStreamByPath(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}

	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/stream/"), "/"), "/")
	if len(parts) == 0 || parts[0] == "" || len(parts) > 2 {
		http.NotFound(w, r)
		return
	}
	id := domain.ContentID(parts[0])

	fileIndex := -1
	if len(parts) == 2 {
		parsed, err := strconv.Atoi(parts[1])
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid fileIndex")
			return
		}
		fileIndex = parsed
	}

	magnet := strings.TrimSpace(r.URL.Query().Get("magnet"))
	s.serveStream(w, r, id, domain.TorrentSource{Magnet: magnet}, fileIndex)
}

func (s *Server) serveStream(w http.ResponseWriter, r *http.Request, id domain.ContentID, src domain.TorrentSource, fileIndex int) {
	if s.streamTorrent == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "stream use case not configured")
		return
	}

	result, err := s.streamTorrent.Execute(r.Context(), id, src, fileIndex)
	if err != nil {
		writeUseCaseError(w, err)
		return
	}
	if result.Reader == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "stream reader not available")
		return
	}
	defer result.Reader.Close()

	sessionID := result.Session.ID()
	if s.counter != nil {
		s.counter.StreamOpened(r.Context(), sessionID, result.Session.Name())
		metrics.StreamsOpenedTotal.Inc()
		defer func() {
			s.counter.StreamClosed(r.Context(), sessionID)
			metrics.StreamsClosedTotal.Inc()
		}()
	}

	serveStreamBody(w, r, s, sessionID, result)
}
