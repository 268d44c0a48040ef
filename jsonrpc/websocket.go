package jsonrpc

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/NethermindEth/katana/utils"
	"github.com/coder/websocket"
)

const (
	// Close reasons must fit a single control frame.
	closeReasonMaxBytes = 125

	wsReadLimit    = 32 * utils.Megabyte
	wsWriteTimeout = 5 * time.Second
)

// Websocket serves JSON-RPC over websocket connections, one text message per request or batch.
type Websocket struct {
	rpc *Server
	log utils.SimpleLogger
	// Holds a token per open connection when the number of connections is bounded.
	slots chan struct{}
}

func NewWebsocket(rpc *Server, log utils.SimpleLogger) *Websocket {
	return &Websocket{rpc: rpc, log: log}
}

// WithMaxConnections bounds the number of connections served at once. Zero means unbounded.
func (ws *Websocket) WithMaxConnections(n int) *Websocket {
	if n > 0 {
		ws.slots = make(chan struct{}, n)
	}
	return ws
}

func (ws *Websocket) acquire() (release func(), ok bool) {
	if ws.slots == nil {
		return func() {}, true
	}
	select {
	case ws.slots <- struct{}{}:
		return func() { <-ws.slots }, true
	default:
		return nil, false
	}
}

// ServeHTTP upgrades the request and serves the connection until either side closes it.
func (ws *Websocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	release, ok := ws.acquire()
	if !ok {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}
	defer release()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		ws.log.Errorw("Failed to upgrade connection", "err", err)
		return
	}
	conn.SetReadLimit(wsReadLimit)

	err = ws.serve(r.Context(), conn)
	if status := websocket.CloseStatus(err); status != -1 {
		ws.log.Debugw("Client closed websocket connection", "remote", r.RemoteAddr, "status", status)
		return
	}
	ws.log.Warnw("Closing websocket connection", "remote", r.RemoteAddr, "err", err)
	ws.close(conn, err)
}

func (ws *Websocket) serve(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		resp, err := ws.rpc.HandleReader(ctx, bytes.NewReader(msg))
		if err != nil {
			return err
		}
		if resp == nil {
			continue
		}

		writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
		err = conn.Write(writeCtx, websocket.MessageText, resp)
		cancel()
		if err != nil {
			return err
		}
	}
}

func (ws *Websocket) close(conn *websocket.Conn, cause error) {
	reason := cause.Error()
	if len(reason) > closeReasonMaxBytes {
		reason = reason[:closeReasonMaxBytes]
	}

	err := conn.Close(websocket.StatusInternalError, reason)
	// Closing an already closed connection is benign: timeouts, or the peer dropped the TCP
	// connection before the close handshake.
	if err != nil && !errors.Is(err, net.ErrClosed) &&
		!strings.Contains(err.Error(), "already wrote close") && !strings.Contains(err.Error(), "WebSocket closed") {
		ws.log.Errorw("Failed to close websocket connection", "err", err)
	}
}
