package services

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/keenbingwood-bot/redflag2601/internal/core/domain"
	"github.com/keenbingwood-bot/redflag2601/internal/core/ports"
)

// AdmissionConfig agrega os limiters por bucket e a política de falha do storage.
type AdmissionConfig struct {
	General    ports.RateLimiter
	Privileged ports.RateLimiter
	// FailOpen admite a requisição quando o storage está indisponível.
	FailOpen bool
	Recorder ports.DecisionRecorder
	// RecordTimeout limita a gravação de estatísticas. <= 0 usa defaultRecordTimeout.
	RecordTimeout time.Duration
}

const defaultRecordTimeout = 250 * time.Millisecond

// AdmissionService escolhe o bucket pela classificação da identidade e consulta o limiter.
type AdmissionService struct {
	general    ports.RateLimiter
	privileged ports.RateLimiter
	failOpen      bool
	recorder      ports.DecisionRecorder
	recordTimeout time.Duration
	nowFn         func() time.Time
}

var _ ports.Admission = (*AdmissionService)(nil)

func NewAdmissionService(cfg AdmissionConfig) (*AdmissionService, error) {
	if cfg.General == nil || cfg.Privileged == nil {
		return nil, fmt.Errorf("general and privileged limiters are required")
	}
	if cfg.General.Bucket().Prefix == cfg.Privileged.Bucket().Prefix {
		return nil, fmt.Errorf("general and privileged buckets must use distinct prefixes")
	}
	recordTimeout := cfg.RecordTimeout
	if recordTimeout <= 0 {
		recordTimeout = defaultRecordTimeout
	}
	return &AdmissionService{
		general:       cfg.General,
		privileged:    cfg.Privileged,
		failOpen:      cfg.FailOpen,
		recorder:      cfg.Recorder,
		recordTimeout: recordTimeout,
		nowFn:         time.Now,
	}, nil
}

// LimiterFor classifica a identidade. A escolha é refeita a cada requisição.
func (s *AdmissionService) LimiterFor(identity string) ports.RateLimiter {
	if domain.IsLoopback(identity) {
		return s.privileged
	}
	return s.general
}

// Admit decide a requisição. Com FailOpen, uma falha de storage devolve uma decisão admitida
// junto com o erro, para que o chamador registre o incidente e siga adiante.
func (s *AdmissionService) Admit(ctx context.Context, identity string) (domain.Decision, error) {
	identity = domain.NormalizeIdentity(identity)
	limiter := s.LimiterFor(identity)
	bucket := limiter.Bucket()

	decision, err := limiter.Check(ctx, identity)
	if err != nil {
		s.record(ctx, bucket.Name, identity, domain.OutcomeStoreError)
		if s.failOpen {
			return domain.Decision{
				Admitted:  true,
				Bucket:    bucket.Name,
				Capacity:  bucket.Capacity,
				Remaining: 0,
			}, err
		}
		return domain.Decision{Bucket: bucket.Name, Capacity: bucket.Capacity}, err
	}

	outcome := domain.OutcomeAdmitted
	if !decision.Admitted {
		outcome = domain.OutcomeRejected
	}
	s.record(ctx, bucket.Name, identity, outcome)
	return decision, nil
}

func (s *AdmissionService) FailOpen() bool {
	return s.failOpen
}

func (s *AdmissionService) record(ctx context.Context, bucket, identity string, outcome domain.Outcome) {
	if s.recorder == nil {
		return
	}
	ev := domain.DecisionEvent{
		Bucket:   bucket,
		Identity: identity,
		Outcome:  outcome,
		At:       s.nowFn(),
	}
	recordCtx, cancel := context.WithTimeout(ctx, s.recordTimeout)
	defer cancel()
	if err := s.recorder.Record(recordCtx, ev); err != nil {
		log.WithError(err).WithField("bucket", bucket).Debug("rate limit: failed to record decision")
	}
}
