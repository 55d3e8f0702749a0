package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/notescan/notescan/internal/core/domain"
)

const (
	defaultPageSize = 25
	maxPageSize     = 100
)

// handleFeed serves one page of the merged, annotated transaction feed for
// (chain, address[, token]).
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	chain := q.Get("chain")
	address := q.Get("address")
	token := q.Get("token")
	if chain == "" {
		writeError(w, http.StatusBadRequest, "missing chain parameter")
		return
	}
	if address == "" && token == "" {
		writeError(w, http.StatusBadRequest, "either address or token is required")
		return
	}

	page := intParam(q, "page", 1)
	size := intParam(q, "size", defaultPageSize)
	if page < 1 {
		page = 1
	}
	if size < 1 || size > maxPageSize {
		size = defaultPageSize
	}

	result, err := s.cfg.Feed.Feed(r.Context(), chain, address, token, page, size)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, domain.ErrConfiguration) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleReceipt resolves a confirmed transaction's decoded transfer events.
// Unknown, pending and terminally failed transactions answer 404.
func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	chain := chi.URLParam(r, "chain")
	hash := chi.URLParam(r, "hash")

	receipt, err := s.cfg.Feed.Receipt(r.Context(), chain, hash)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, domain.ErrConfiguration) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	if receipt == nil {
		writeError(w, http.StatusNotFound, "transaction not found or not confirmed")
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// handleNotes returns the locally known note history for a URI, newest
// first, making sure the URI is tracked at the annotation network.
func (s *Server) handleNotes(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Notes == nil {
		writeError(w, http.StatusServiceUnavailable, "annotations are not enabled")
		return
	}

	raw := r.URL.Query().Get("uri")
	uri, err := domain.ParseURI(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	canonical := uri.String()
	if err := s.cfg.Notes.TrackURIs(r.Context(), []string{canonical}); err != nil {
		s.log.Warn("tracking uri failed", "uri", canonical, "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"uri":   canonical,
		"notes": s.cfg.Notes.History(canonical),
	})
}

type publishRequest struct {
	URI     string     `json:"uri"`
	Content string     `json:"content"`
	Tags    [][]string `json:"tags"`
}

// handlePublish signs and broadcasts an annotation note.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Notes == nil {
		writeError(w, http.StatusServiceUnavailable, "annotations are not enabled")
		return
	}

	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	uri, err := domain.ParseURI(req.URI)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	canonical := uri.String()
	if err := s.cfg.Notes.Publish(r.Context(), canonical, req.Content, req.Tags); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotAuthenticated):
			writeError(w, http.StatusUnauthorized, err.Error())
		case errors.Is(err, domain.ErrPublish):
			writeError(w, http.StatusBadGateway, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"uri": canonical})
}

// handleExplorerProxy forwards a request to the chain's explorer API with
// the API key injected server-side, caching responses briefly so the UI
// never exposes or exhausts the key.
func (s *Server) handleExplorerProxy(w http.ResponseWriter, r *http.Request) {
	chainCfg, err := s.cfg.Registry.Chain(chi.URLParam(r, "chain"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if chainCfg.ExplorerAPI == "" {
		writeError(w, http.StatusBadRequest, "chain has no explorer api")
		return
	}

	q := r.URL.Query()
	contract := q.Get("contractaddress")
	address := q.Get("address")

	if s.cfg.Cache != nil {
		if body, ok, err := s.cfg.Cache.GetResponse(r.Context(), chainCfg.Slug, contract, address); err == nil && ok {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Cache", "hit")
			_, _ = w.Write(body)
			return
		}
	}

	target, err := url.Parse(chainCfg.ExplorerAPI)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "invalid explorer endpoint")
		return
	}
	params := q
	params.Set("chainid", chainCfg.ID)
	if s.cfg.ExplorerAPIKey != "" {
		params.Set("apikey", s.cfg.ExplorerAPIKey)
	}
	target.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		writeError(w, http.StatusBadGateway, "explorer request failed")
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		writeError(w, http.StatusBadGateway, "explorer response unreadable")
		return
	}

	if resp.StatusCode == http.StatusOK && s.cfg.Cache != nil {
		if err := s.cfg.Cache.SetResponse(r.Context(), chainCfg.Slug, contract, address, body, s.cfg.CacheTTL); err != nil {
			s.log.Warn("caching explorer response failed", "chain", chainCfg.Slug, "error", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", "miss")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(body)
}

func intParam(q url.Values, key string, fallback int) int {
	raw := q.Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
