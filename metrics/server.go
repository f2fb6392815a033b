package metrics

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Expvar counters
	EmptyLLMResponseCount    = expvar.NewInt("empty_llm_response_count")
	SuccessfulLLMGenCount    = expvar.NewInt("successful_llm_gen_count")
	FailedLLMGenCount        = expvar.NewInt("failed_llm_gen_count")
	TwitchConnectionCount    = expvar.NewInt("twitch_connection_count")
	TwitchEventReceivedCount = expvar.NewInt("twitch_event_received_count")
	TwitchEventDroppedCount  = expvar.NewInt("twitch_event_dropped_count")
	TwitchMessageSentCount   = expvar.NewInt("twitch_message_sent_count")
	TwitchMessageFailedCount = expvar.NewInt("twitch_message_failed_count")

	// Prometheus metrics with labels
	EventsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twitch_events_received_total",
			Help: "Total number of eventsub notifications received by event kind",
		},
		[]string{"kind"},
	)

	EventReplies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twitch_event_replies_total",
			Help: "Outcome of handling an event by kind (replied, ignored, inference_error)",
		},
		[]string{"kind", "outcome"},
	)

	LLMGenerationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "llm_generation_duration_seconds",
			Help:    "Duration of completion calls to the model backend",
			Buckets: prometheus.DefBuckets,
		},
	)

	EventQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "event_queue_depth",
			Help: "Number of events waiting for a reply worker",
		},
	)
)

// Server serves /metrics, /healthz and pprof.
type Server struct {
	*http.Server
	mux *http.ServeMux
}

// SetupServer builds the metrics server listening on addr.
func SetupServer(addr string) *Server {
	mux := http.NewServeMux()
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewBuildInfoCollector(),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewExpvarCollector(
			map[string]*prometheus.Desc{
				"empty_llm_response_count":    prometheus.NewDesc("empty_llm_response_count", "number of times llm responded with an empty string", nil, nil),
				"successful_llm_gen_count":    prometheus.NewDesc("successful_llm_gen_count", "number of times llm generated a valid response", nil, nil),
				"failed_llm_gen_count":        prometheus.NewDesc("failed_llm_gen_count", "number of times errors occurred in llm generation", nil, nil),
				"twitch_connection_count":     prometheus.NewDesc("twitch_connection_count", "number of times the eventsub connection was established", nil, nil),
				"twitch_event_received_count": prometheus.NewDesc("twitch_event_received_count", "number of eventsub notifications received", nil, nil),
				"twitch_event_dropped_count":  prometheus.NewDesc("twitch_event_dropped_count", "number of events dropped because the queue was full", nil, nil),
				"twitch_message_sent_count":   prometheus.NewDesc("twitch_message_sent_count", "number of chat messages sent", nil, nil),
				"twitch_message_failed_count": prometheus.NewDesc("twitch_message_failed_count", "number of chat messages that failed to send", nil, nil),
			},
		),
		EventsReceived,
		EventReplies,
		LLMGenerationDuration,
		EventQueueDepth,
	)

	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/debug/vars", expvar.Handler())
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/healthz", healthzHandler)
	return &Server{Server: server, mux: mux}
}

// RegisterAuthHealthHandler registers the auth health check endpoint
func (s *Server) RegisterAuthHealthHandler(handler http.HandlerFunc) {
	s.mux.HandleFunc("/healthz/auth", handler)
}

// healthzHandler returns a simple health check response
func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
