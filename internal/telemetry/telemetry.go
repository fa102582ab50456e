package telemetry

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"codeberg.org/mutker/pimonitor/internal/errors"
	"codeberg.org/mutker/pimonitor/internal/logger"
	"codeberg.org/mutker/pimonitor/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

type gauges struct {
	cpu        prometheus.Gauge
	mem        prometheus.Gauge
	disk       prometheus.Gauge
	cpuTemp    prometheus.Gauge
	boardTemp  prometheus.Gauge
	fanPWM     prometheus.Gauge
	fanDuty    prometheus.Gauge
	fanEngaged prometheus.Gauge
	displayOn  prometheus.Gauge
	indicator  *prometheus.GaugeVec
	ticks      prometheus.Counter
	motion     *prometheus.CounterVec
}

func newGauges() *gauges {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}

	return &gauges{
		cpu:        gauge("cpu_usage_percent", "CPU utilisation in percent."),
		mem:        gauge("memory_usage_percent", "Memory utilisation in percent."),
		disk:       gauge("disk_usage_percent", "Root filesystem utilisation in percent."),
		cpuTemp:    gauge("cpu_temperature_celsius", "SoC temperature."),
		boardTemp:  gauge("board_temperature_celsius", "Expansion board temperature."),
		fanPWM:     gauge("cooling_fan_pwm", "SoC cooling fan PWM (0-255, -1 when unreadable)."),
		fanDuty:    gauge("board_fan_duty", "Expansion board fan duty (0-255)."),
		fanEngaged: gauge("board_fan_engaged", "Whether the fan hysteresis limit is engaged."),
		displayOn:  gauge("display_on", "Whether the display is powered on."),
		indicator: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indicator_state",
			Help:      "Current indicator state; 1 for the active state.",
		}, []string{"indicator", "state"}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Control loop ticks recorded.",
		}),
		motion: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "motion_events_total",
			Help:      "Motion events delivered to the display controller.",
		}, []string{"source"}),
	}
}

func (g *gauges) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		g.cpu, g.mem, g.disk, g.cpuTemp, g.boardTemp, g.fanPWM, g.fanDuty,
		g.fanEngaged, g.displayOn, g.indicator, g.ticks, g.motion,
	}
}

// Service exports samples on a private Prometheus registry.
type Service struct {
	cfg      Config
	session  string
	registry *prometheus.Registry
	gauges   *gauges
	logger   logger.Logger
	started  time.Time

	mu     sync.RWMutex
	latest *metrics.Sample
	ticks  uint64

	serverMu sync.Mutex
	server   *http.Server
}

type noopCollector struct{}

// NewService returns a Collector. When disabled it returns a no-op
// collector whose Serve blocks until ctx is done.
func NewService(cfg Config, session string, log logger.Logger) (Collector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		log.Debug().Msg("Telemetry disabled, using no-op collector")
		return noopCollector{}, nil
	}

	return New(cfg, session, log)
}

func New(cfg Config, session string, log logger.Logger) (*Service, error) {
	s := &Service{
		cfg:      cfg,
		session:  session,
		registry: prometheus.NewRegistry(),
		gauges:   newGauges(),
		logger:   log,
		started:  time.Now(),
	}

	for _, c := range s.gauges.collectors() {
		if err := s.registry.Register(c); err != nil {
			return nil, errFactory.Wrap(ErrRegister, err)
		}
	}

	return s, nil
}

func (s *Service) Record(_ context.Context, sample *metrics.Sample) error {
	if sample == nil {
		return errFactory.New(ErrInvalidSample)
	}

	g := s.gauges
	g.cpu.Set(sample.CPUPercent)
	g.mem.Set(sample.MemPercent)
	g.disk.Set(sample.DiskPercent)
	g.cpuTemp.Set(sample.CPUTemp)
	g.boardTemp.Set(float64(sample.BoardTemp))
	g.fanPWM.Set(float64(sample.FanPWM))
	g.fanDuty.Set(float64(sample.FanDuty))
	g.fanEngaged.Set(boolGauge(sample.FanEngaged))
	g.displayOn.Set(boolGauge(sample.DisplayOn))

	g.indicator.Reset()
	g.indicator.WithLabelValues("temperature", sample.Temperature).Set(1)
	g.indicator.WithLabelValues("load", sample.Load).Set(1)
	g.indicator.WithLabelValues("disk_activity", sample.DiskActivity).Set(1)
	g.indicator.WithLabelValues("health", sample.Health).Set(1)
	g.ticks.Inc()

	copied := *sample
	s.mu.Lock()
	s.latest = &copied
	s.ticks++
	s.mu.Unlock()

	return nil
}

func (s *Service) ObserveMotion(source string) {
	s.gauges.motion.WithLabelValues(source).Inc()
}

// Router serves /metrics, /status and /healthz.
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(shutdownTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/status", s.handleStatus)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	return r
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	status := Status{
		Session:   s.session,
		Ticks:     s.ticks,
		Sample:    s.latest,
		StartedAt: s.started.UTC().Format(time.RFC3339),
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to write status response")
	}
}

// Serve listens on the configured address until ctx is done.
func (s *Service) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return errFactory.Wrap(ErrServe, err)
	}
	return s.serve(ctx, ln)
}

func (s *Service) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: shutdownTimeout,
	}
	s.serverMu.Lock()
	s.server = srv
	s.serverMu.Unlock()

	s.logger.Info().Str("listen", ln.Addr().String()).Msg("Telemetry server listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errFactory.Wrap(ErrServe, err)
	case <-ctx.Done():
		return s.Close()
	}
}

func (s *Service) Close() error {
	s.serverMu.Lock()
	srv := s.server
	s.server = nil
	s.serverMu.Unlock()

	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return errFactory.Wrap(ErrShutdown, err)
	}
	return nil
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (noopCollector) Record(context.Context, *metrics.Sample) error { return nil }
func (noopCollector) ObserveMotion(string)                          {}
func (noopCollector) Close() error                                  { return nil }

func (noopCollector) Serve(ctx context.Context) error {
	<-ctx.Done()
	return nil
}
