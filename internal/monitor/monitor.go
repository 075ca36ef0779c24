// Package monitor exposes the offload server's session state over HTTP:
// archived sessions by UUID, and a websocket stream of the live session.
package monitor

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/m-lab/go/memoryless"
	"github.com/m-lab/go/rtx"
	"github.com/splitbench/splitbench/internal/archive"
	"github.com/splitbench/splitbench/pkg/offload/model"
	"github.com/splitbench/splitbench/pkg/offload/spec"
)

// SnapshotSource provides the state of the session being served, if any.
// The offload server implements it.
type SnapshotSource interface {
	Snapshot() (model.SessionSnapshot, bool)
}

// Handler serves the monitor endpoints.
type Handler struct {
	store  *archive.Store
	source SnapshotSource
	logger *log.Logger
}

// New returns a Handler reading archived sessions from store and live state
// from source.
func New(store *archive.Store, source SnapshotSource, logger *log.Logger) *Handler {
	return &Handler{
		store:  store,
		source: source,
		logger: logger,
	}
}

// Register installs the monitor endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc(spec.SessionPath, h.Session)
	mux.HandleFunc(spec.WatchPath, h.Watch)
}

// Session serves one archived session as JSON, selected by the "uuid"
// querystring parameter. Sessions leave the archive when their retention
// window expires, so a 404 means unknown or already flushed to disk.
func (h *Handler) Session(rw http.ResponseWriter, req *http.Request) {
	uuid := req.URL.Query().Get("uuid")
	if uuid == "" {
		writeBadRequest(rw)
		return
	}
	session, ok := h.store.Get(uuid)
	if !ok {
		rw.WriteHeader(http.StatusNotFound)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(session); err != nil {
		h.logger.Error("failed to encode archived session", "uuid", uuid, "err", err)
	}
}

// Watch upgrades the connection to WebSocket and streams snapshots of the
// live session until the client goes away. Snapshot intervals are drawn
// from a memoryless distribution so periodic network effects cannot hide
// in the sampling. An idle server streams zero-valued snapshots.
func (h *Handler) Watch(rw http.ResponseWriter, req *http.Request) {
	wsConn, err := Upgrade(rw, req)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "source", req.RemoteAddr, "err", err)
		return
	}
	defer wsConn.Close()

	ticker, err := memoryless.NewTicker(req.Context(), memoryless.Config{
		Min:      spec.MinWatchInterval,
		Expected: spec.AvgWatchInterval,
		Max:      spec.MaxWatchInterval,
	})
	// This can only error if min/expected/max above are set to invalid
	// values. Since they are constants, we panic here.
	rtx.PanicOnError(err, "ticker creation failed (this should never happen)")
	defer ticker.Stop()

	// The ticker channel closes when the request context ends.
	for range ticker.C {
		snapshot, _ := h.source.Snapshot()
		if err := wsConn.WriteJSON(snapshot); err != nil {
			return
		}
	}
}

// Upgrade takes a HTTP request and upgrades the connection to WebSocket.
// Returns a websocket Conn if the upgrade succeeded, and an error otherwise.
func Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	// We expect WebSocket's subprotocol to be the watch endpoint's. The same
	// subprotocol is added as a header on the response.
	if r.Header.Get("Sec-WebSocket-Protocol") != spec.SecWebSocketProtocol {
		w.WriteHeader(http.StatusBadRequest)
		return nil, errors.New("missing Sec-WebSocket-Protocol header")
	}
	h := http.Header{}
	h.Add("Sec-WebSocket-Protocol", spec.SecWebSocketProtocol)
	u := websocket.Upgrader{
		// Allow cross-origin resource sharing.
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	return u.Upgrade(w, r, h)
}

// writeBadRequest sends a Bad Request response to the client using writer.
func writeBadRequest(writer http.ResponseWriter) {
	writer.WriteHeader(http.StatusBadRequest)
	writer.Header().Set("Connection", "Close")
}
