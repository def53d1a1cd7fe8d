package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// MetricsServer exposes the default Prometheus registry at /metrics.
type MetricsServer struct {
	Addr   string
	server *http.Server
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}

func metricsRouter(logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(logger))
	r.Use(RequestMetricsMiddleware())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// StartMetrics listens on addr and serves /metrics until Shutdown.
func StartMetrics(addr string, logger zerolog.Logger) (*MetricsServer, error) {
	RegisterMetrics()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &MetricsServer{
		Addr:   ln.Addr().String(),
		server: &http.Server{Handler: metricsRouter(logger), ReadHeaderTimeout: 5 * time.Second},
	}
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", s.Addr).Msg("metrics server stopped")
		}
	}()
	logger.Info().Str("addr", s.Addr).Msg("metrics server started")
	return s, nil
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
