package metrics

import (
	"context"

	"codeberg.org/mutker/pimonitor/internal/errors"
	"codeberg.org/mutker/pimonitor/internal/logger"
	"github.com/google/uuid"
)

type service struct {
	repo    Repository
	cfg     Config
	session string
}

// No-op implementation
type noopCollector struct {
	session string
}

func NewService(cfg Config, log logger.Logger) (Collector, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	session := uuid.New().String()

	// If metrics is disabled, return a no-op collector
	if !cfg.Enabled {
		log.Debug().Msg("Metrics collection disabled, using no-op collector")
		return &noopCollector{session: session}, nil
	}

	repo, err := NewRepository(cfg, log)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to create metrics repository")
		return nil, err
	}

	log.Debug().
		Str("db_path", cfg.DBPath).
		Str("session", session).
		Msg("Metrics service initialized successfully")

	return &service{
		repo:    repo,
		cfg:     cfg,
		session: session,
	}, nil
}

func (s *service) Record(ctx context.Context, sample *Sample) error {
	errFactory := errors.New()

	if sample == nil {
		return errFactory.New(ErrInvalidSample)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
		sample.Session = s.session
		if err := s.repo.Record(sample); err != nil {
			return errFactory.Wrap(ErrSampleCollection, err)
		}
	}

	return nil
}

func (s *service) Session() string {
	return s.session
}

func (s *service) Close() error {
	if err := s.repo.Close(); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}
	return nil
}

func (*noopCollector) Record(_ context.Context, _ *Sample) error {
	return nil
}

func (n *noopCollector) Session() string {
	return n.session
}

func (*noopCollector) Close() error {
	return nil
}
