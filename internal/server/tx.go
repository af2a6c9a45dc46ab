package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"mintwatch/internal/storage"
)

func (s *Server) handleTxBySignature(w http.ResponseWriter, r *http.Request) {
	sig := chi.URLParam(r, "signature")
	rec, err := s.store.GetBySignature(r.Context(), sig)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "Transaction not found", nil)
			return
		}
		s.writeError(w, http.StatusInternalServerError, "Failed to fetch transaction", err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleQueryTx(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := storage.QueryOptions{
		Mint:        q.Get("mint"),
		Signature:   q.Get("signature"),
		TokenSymbol: q.Get("token_symbol"),
		Limit:       queryInt(r, "limit", defaultPageLimit),
		Offset:      queryInt(r, "offset", 0),
		OrderBy:     q.Get("orderBy"),
		Ascending:   q.Get("ascending") == "true",
	}
	if raw := q.Get("fromTimestamp"); raw != "" {
		if ts, err := strconv.ParseInt(raw, 10, 64); err == nil {
			opts.FromTimestamp = &ts
		}
	}
	if raw := q.Get("toTimestamp"); raw != "" {
		if ts, err := strconv.ParseInt(raw, 10, 64); err == nil {
			opts.ToTimestamp = &ts
		}
	}

	result, err := s.store.Query(r.Context(), opts)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to fetch transactions", err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}
