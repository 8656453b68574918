package monitoring

import (
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var started sync.Once

// ExportPrometheusMetrics launches the Prometheus exporter for gatherer on
// the specified address. Only the first call starts a listener.
func ExportPrometheusMetrics(listen string,
	gatherer prometheus.Gatherer) error {

	var err error
	started.Do(func() {
		var lis net.Listener
		lis, err = net.Listen("tcp", listen)
		if err != nil {
			return
		}

		log.Infof("Prometheus exporter started on %v/metrics",
			lis.Addr())

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(
			gatherer, promhttp.HandlerOpts{},
		))

		srv := &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			err := srv.Serve(lis)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("Prometheus exporter stopped: %v",
					err)
			}
		}()
	})

	return err
}
