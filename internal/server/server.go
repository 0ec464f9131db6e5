package server

import (
	"PerpIndexer/internal/observability"
	"PerpIndexer/internal/query"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Server wraps the gRPC server and the HTTP/JSON read API. The gRPC side
// carries health and reflection; the JSON endpoints on the gateway mux are
// the primary query surface for tooling, dashboards, and curl.
type Server struct {
	grpcServer    *grpc.Server
	httpServer    *http.Server
	grpcAddr      string
	httpAddr      string
	queries       *query.Service
	healthChecker *observability.HealthChecker
	log           zerolog.Logger
}

func NewServer(grpcAddr, httpAddr string, queries *query.Service, hc *observability.HealthChecker, log zerolog.Logger) *Server {
	grpcServer := grpc.NewServer()

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	// Reflection for grpcurl / grpcui
	reflection.Register(grpcServer)

	return &Server{
		grpcServer:    grpcServer,
		grpcAddr:      grpcAddr,
		httpAddr:      httpAddr,
		queries:       queries,
		healthChecker: hc,
		log:           log,
	}
}

// StartGRPC starts the gRPC server (blocking).
func (s *Server) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("gRPC server shutting down")
		s.grpcServer.GracefulStop()
	}()

	s.log.Info().Str("addr", s.grpcAddr).Msg("gRPC server listening")
	return s.grpcServer.Serve(lis)
}

// StartHTTP starts the HTTP/JSON API (blocking).
func (s *Server) StartHTTP(ctx context.Context) error {
	mux := runtime.NewServeMux()

	routes := []struct {
		method  string
		pattern string
		handler runtime.HandlerFunc
	}{
		{"GET", "/v1/instruments", s.handleListInstruments},
		{"GET", "/v1/instruments/{id}", s.handleGetInstrument},
		{"GET", "/v1/traders/{trader}/positions", s.handleGetPositions},
		{"GET", "/v1/traders/{trader}/legs", s.handleGetTradeLegs},
		{"GET", "/v1/instruments/{id}/candles", s.handleGetCandles},
		{"GET", "/v1/pools/{id}/carry", s.handleGetCarrySeries},
		{"GET", "/v1/instruments/{id}/funding", s.handleGetFundingSeries},
	}
	for _, rt := range routes {
		if err := mux.HandlePath(rt.method, rt.pattern, rt.handler); err != nil {
			return fmt.Errorf("register %s %s: %w", rt.method, rt.pattern, err)
		}
	}

	httpMux := http.NewServeMux()
	httpMux.Handle("/metrics", promhttp.Handler())
	if s.healthChecker != nil {
		httpMux.HandleFunc("/healthz", s.healthChecker.LivenessHandler)
		httpMux.HandleFunc("/readyz", s.healthChecker.ReadinessHandler)
	}
	httpMux.Handle("/", mux)

	s.httpServer = &http.Server{
		Addr:    s.httpAddr,
		Handler: httpMux,
	}

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("HTTP server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", s.httpAddr).Msg("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// ============================================================================
// JSON handlers
// ============================================================================

func (s *Server) handleListInstruments(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	instruments, err := s.queries.ListInstruments(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, map[string]interface{}{"instruments": instruments})
}

func (s *Server) handleGetInstrument(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	inst, err := s.queries.GetInstrument(r.Context(), pathParams["id"])
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if inst == nil {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("unknown instrument %s", pathParams["id"]))
		return
	}
	writeJSON(w, inst)
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	positions, err := s.queries.GetPositions(r.Context(), pathParams["trader"])
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, map[string]interface{}{"positions": positions})
}

func (s *Server) handleGetTradeLegs(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("limit must be in 1..500"))
			return
		}
		limit = n
	}

	var perpetual *string
	if v := q.Get("perpetual"); v != "" {
		perpetual = &v
	}

	var before *query.LegCursor
	if v := q.Get("before_block"); v != "" {
		block, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid before_block: %v", err))
			return
		}
		// before_log/before_leg default to 0: the cursor then excludes the
		// whole block, same as a bare block bound.
		logIndex, err := cursorPart(q.Get("before_log"))
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid before_log: %v", err))
			return
		}
		legIndex, err := cursorPart(q.Get("before_leg"))
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid before_leg: %v", err))
			return
		}
		before = &query.LegCursor{Block: block, LogIndex: logIndex, LegIndex: legIndex}
	}

	legs, err := s.queries.GetTradeLegs(r.Context(), pathParams["trader"], perpetual, limit, before)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, map[string]interface{}{"legs": legs})
}

func cursorPart(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

func (s *Server) handleGetCandles(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	resolution, from, to, err := rangeParams(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	candles, err := s.queries.GetCandles(r.Context(), pathParams["id"], resolution, from, to)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, map[string]interface{}{"candles": candles})
}

func (s *Server) handleGetCarrySeries(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	resolution, from, to, err := rangeParams(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	buckets, err := s.queries.GetCarrySeries(r.Context(), pathParams["id"], resolution, from, to)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, map[string]interface{}{"buckets": buckets})
}

func (s *Server) handleGetFundingSeries(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	resolution, from, to, err := rangeParams(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	buckets, err := s.queries.GetFundingSeries(r.Context(), pathParams["id"], resolution, from, to)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, map[string]interface{}{"buckets": buckets})
}

// rangeParams reads the resolution/from/to query triple shared by the
// time-series endpoints.
func rangeParams(r *http.Request) (resolution, from, to int64, err error) {
	q := r.URL.Query()

	resolution, err = strconv.ParseInt(q.Get("resolution"), 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid resolution: %v", err)
	}

	from, err = strconv.ParseInt(q.Get("from"), 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid from: %v", err)
	}

	to, err = strconv.ParseInt(q.Get("to"), 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid to: %v", err)
	}

	if to < from {
		return 0, 0, 0, fmt.Errorf("to must not precede from")
	}
	return resolution, from, to, nil
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	if code >= http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("query failed")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
