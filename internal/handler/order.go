package handler

import (
	"net/http"

	"github.com/go-faster/jx"
)

// Preview computes an authoritative priced preview for the submitted cart.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, r, http.StatusUnauthorized, "user identity required")
		return
	}

	d, err := decodeBody(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed request body")
		return
	}
	req, err := decodePreviewRequest(d, uid)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed request body")
		return
	}

	preview, err := h.engine.Preview(r.Context(), req)
	h.metrics.recordPreview(r.Context(), err == nil)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	var e jx.Encoder
	encodePreview(&e, preview)
	writeJSON(w, http.StatusOK, &e)
}

// PlaceOrder verifies the echoed preview against a fresh server computation
// and, on a match, commits the order with all its side effects.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		writeError(w, r, http.StatusUnauthorized, "user identity required")
		return
	}

	d, err := decodeBody(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed request body")
		return
	}
	clientPreview, err := decodePreview(d, uid)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed request body")
		return
	}

	trusted, err := h.guard.Verify(r.Context(), clientPreview)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	o, err := h.lifecycle.Place(r.Context(), trusted)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.metrics.recordOrderPlaced(r.Context(), o)

	var e jx.Encoder
	encodeOrder(&e, o)
	writeJSON(w, http.StatusCreated, &e)
}

// GetOrder returns an order with its timeline.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.lifecycle.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeOrder(&e, o)
	writeJSON(w, http.StatusOK, &e)
}

// TransitionOrder moves an order along one lifecycle edge.
func (h *Handler) TransitionOrder(w http.ResponseWriter, r *http.Request) {
	d, err := decodeBody(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed request body")
		return
	}
	req, err := decodeTransitionRequest(d)
	if err != nil || req.Status == "" {
		writeError(w, r, http.StatusBadRequest, "malformed request body")
		return
	}

	o, err := h.lifecycle.Transition(r.Context(), r.PathValue("id"), req.Status, req.Metadata, req.PerformedBy)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.metrics.recordTransition(r.Context(), o.Status)

	var e jx.Encoder
	encodeOrder(&e, o)
	writeJSON(w, http.StatusOK, &e)
}
