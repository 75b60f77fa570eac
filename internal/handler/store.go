package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/store"
)

// StoreData handles GET /api/store/data?username=.
func (h *Handler) StoreData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	s, err := h.catalog.Catalog(ctx, r.URL.Query().Get("username"))
	switch {
	case errors.Is(err, store.ErrMissingUsername):
		writeError(w, http.StatusBadRequest, "Missing username")
		return
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusBadRequest, "Store not found")
		return
	case err != nil:
		zctx.From(ctx).Error("Load store catalog failed", zap.Error(err))
		writeError(w, http.StatusBadRequest, "Failed to fetch store")
		return
	}

	var e jx.Encoder
	s.Encode(&e)
	writeJSON(w, http.StatusOK, &e)
}
