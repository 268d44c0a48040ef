package jsonrpc

import (
	"net/http"

	"github.com/NethermindEth/katana/utils"
)

const MaxRequestBodySize = 10 * utils.Megabyte

type HTTP struct {
	rpc *Server
	log utils.SimpleLogger
}

func NewHTTP(rpc *Server, log utils.SimpleLogger) *HTTP {
	return &HTTP{
		rpc: rpc,
		log: log,
	}
}

// ServeHTTP processes an incoming HTTP request. A GET on the root path answers 200 so the
// endpoint can be used as a health check.
func (h *HTTP) ServeHTTP(writer http.ResponseWriter, req *http.Request) {
	if req.Method == http.MethodGet {
		status := http.StatusNotFound
		if req.URL.Path == "/" {
			status = http.StatusOK
		}
		writer.WriteHeader(status)
		return
	} else if req.Method != http.MethodPost {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	req.Body = http.MaxBytesReader(writer, req.Body, int64(MaxRequestBodySize))
	resp, err := h.rpc.HandleReader(req.Context(), req.Body)
	writer.Header().Set("Content-Type", "application/json")
	if err != nil {
		h.log.Errorw("Handler failure", "err", err)
		writer.WriteHeader(http.StatusInternalServerError)
	}
	if resp != nil {
		if _, err = writer.Write(resp); err != nil {
			h.log.Warnw("Failed writing response", "err", err)
		}
	}
}
