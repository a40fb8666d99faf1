package server

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"

	"ipblacklist/internal/api/dto"
	"ipblacklist/internal/auth"
	"ipblacklist/internal/blacklist"
	"ipblacklist/internal/support"
)

const maxRequestBody = 4 << 10

type blacklistHandler struct {
	registry *blacklist.Registry
}

func (h *blacklistHandler) register(w http.ResponseWriter, r *http.Request) {
	clientID, err := auth.ClientIDFromContext(r.Context())
	if err != nil {
		writeError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req dto.BlacklistEntryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	log.Info("Request to block", "ip", req.BlackIP, "client_id", clientID)

	reg, err := h.registry.RegisterOrAttribute(r.Context(), req.BlackIP, requesterIP(r), clientID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := dto.MapBlacklistEntry(reg.Entry)
	if reg.Created {
		w.Header().Set("Location", fmt.Sprintf("/blacklist/%d", reg.Entry.ID))
		writeJSON(w, http.StatusCreated, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// get resolves numeric keys as ids and anything else as an address.
func (h *blacklistHandler) get(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.PathValue("key"))

	var (
		resp dto.BlacklistEntryResponse
		err  error
	)
	if id, parseErr := strconv.ParseUint(key, 10, 64); parseErr == nil {
		entry, getErr := h.registry.GetByID(r.Context(), id)
		resp, err = dto.MapBlacklistEntry(entry), getErr
	} else {
		entry, getErr := h.registry.GetByIP(r.Context(), key)
		resp, err = dto.MapBlacklistEntry(entry), getErr
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *blacklistHandler) list(w http.ResponseWriter, r *http.Request) {
	byFrequency := strings.EqualFold(r.URL.Query().Get("order"), "frequency")

	entries, err := h.registry.ListAll(r.Context(), byFrequency)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.MapBlacklistEntries(entries))
}

func (h *blacklistHandler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, "Not found", http.StatusNotFound)
		return
	}

	if err := h.registry.SoftDelete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// sync returns entries created after the cursor in ?token=. No token means a full sync.
// Entries just behind the cursor may be repeated; clients dedup by id.
func (h *blacklistHandler) sync(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	since, ok := support.DecodeSyncToken(token)
	if !ok && strings.TrimSpace(token) != "" {
		writeError(w, "Invalid sync token", http.StatusBadRequest)
		return
	}

	entries, cursor, err := h.registry.ChangesSince(r.Context(), since)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SyncResponse{
		Entries: dto.MapBlacklistEntries(entries),
		Token:   support.EncodeSyncToken(cursor),
	})
}

func (h *blacklistHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, blacklist.ErrNotFound):
		writeError(w, "Not found", http.StatusNotFound)
	case errors.Is(err, blacklist.ErrInvalidIP), errors.Is(err, blacklist.ErrInvalidClientID):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, blacklist.ErrConflict):
		writeError(w, "Conflicting concurrent update, retry the request", http.StatusConflict)
	default:
		log.Error("Blacklist request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func requesterIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
