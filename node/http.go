package node

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/NethermindEth/katana/jsonrpc"
	"github.com/NethermindEth/katana/metrics"
	"github.com/NethermindEth/katana/service"
	"github.com/NethermindEth/katana/utils"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"
)

// rpcPaths are the paths the rpc server is mounted on. Clients pinned to a spec version use the
// versioned one.
var rpcPaths = []string{"/", "/rpc/v0_7"}

// Open connections get this long to drain on shutdown.
const shutdownTimeout = 5 * time.Second

// httpService serves one listener until the node stops.
type httpService struct {
	srv      *http.Server
	listener net.Listener
}

var _ service.Service = (*httpService)(nil)

func newHTTPService(listener net.Listener, handler http.Handler) *httpService {
	return &httpService{
		srv: &http.Server{
			Addr:    listener.Addr().String(),
			Handler: handler,
			// ReadTimeout also sets ReadHeaderTimeout and IdleTimeout.
			ReadTimeout: 30 * time.Second,
		},
		listener: listener,
	}
}

func (h *httpService) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := h.srv.Serve(h.listener); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return h.srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// makeRPCOverHTTP serves the rpc server over HTTP. Cross-origin requests are only answered for
// the allowed origins, "*" allows all of them.
func makeRPCOverHTTP(listener net.Listener, jsonrpcServer *jsonrpc.Server, allowedOrigins []string,
	log utils.SimpleLogger,
) *httpService {
	httpHandler := jsonrpc.NewHTTP(jsonrpcServer, log)
	mux := http.NewServeMux()
	for _, path := range rpcPaths {
		mux.Handle(path, httpHandler)
	}

	var handler http.Handler = mux
	if len(allowedOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{http.MethodPost, http.MethodGet},
			AllowedHeaders: []string{"*"},
		}).Handler(mux)
	}
	return newHTTPService(listener, handler)
}

func makeRPCOverWebsocket(listener net.Listener, jsonrpcServer *jsonrpc.Server, maxConnections int,
	log utils.SimpleLogger,
) *httpService {
	wsHandler := jsonrpc.NewWebsocket(jsonrpcServer, log)
	if maxConnections > 0 {
		wsHandler = wsHandler.WithMaxConnections(maxConnections)
	}
	mux := http.NewServeMux()
	for _, path := range rpcPaths {
		mux.Handle(path, wsHandler)
	}
	return newHTTPService(listener, mux)
}

func makeMetrics(listener net.Listener) *httpService {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return newHTTPService(listener, mux)
}

func makePPROF(listener net.Listener) *httpService {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return newHTTPService(listener, mux)
}
