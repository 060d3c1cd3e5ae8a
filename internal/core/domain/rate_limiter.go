// Package domain concentra entidades e estruturas centrais do rate limiter e da análise de vagas.
package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	// AnonymousIdentity agrupa todas as requisições sem cabeçalhos de origem.
	AnonymousIdentity = "anonymous"

	GeneralBucketName    = "general"
	PrivilegedBucketName = "privileged"
)

var loopbackIdentities = map[string]struct{}{
	"127.0.0.1":        {},
	"::1":              {},
	"::ffff:127.0.0.1": {},
}

// Bucket é uma configuração imutável de limite: capacidade por janela deslizante.
type Bucket struct {
	Name     string
	Capacity int
	Window   time.Duration
	Prefix   string
}

// DefaultGeneralBucket retorna o bucket aplicado a chamadores comuns (5 a cada 10 minutos).
func DefaultGeneralBucket() Bucket {
	return Bucket{
		Name:     GeneralBucketName,
		Capacity: 5,
		Window:   10 * time.Minute,
		Prefix:   "redflag:ratelimit:general",
	}
}

// DefaultPrivilegedBucket retorna o bucket de chamadores loopback (1000 a cada 10 minutos).
func DefaultPrivilegedBucket() Bucket {
	return Bucket{
		Name:     PrivilegedBucketName,
		Capacity: 1000,
		Window:   10 * time.Minute,
		Prefix:   "redflag:ratelimit:privileged",
	}
}

func (b Bucket) Validate() error {
	if b.Capacity <= 0 {
		return fmt.Errorf("%w: bucket %q capacity must be positive", ErrInvalidBucket, b.Name)
	}
	if b.Window <= 0 {
		return fmt.Errorf("%w: bucket %q window must be positive", ErrInvalidBucket, b.Name)
	}
	if strings.TrimSpace(b.Prefix) == "" {
		return fmt.Errorf("%w: bucket %q prefix is required", ErrInvalidBucket, b.Name)
	}
	return nil
}

// Key monta a chave do contador compartilhado para a identidade neste bucket.
func (b Bucket) Key(identity string) string {
	return b.Prefix + ":" + identity
}

// Decision é o resultado de uma verificação de admissão. Nunca é persistida.
type Decision struct {
	Admitted  bool
	Bucket    string
	Capacity  int
	Remaining int
	Reset     time.Time
}

// Err retorna ErrQuotaExceeded quando a decisão é de rejeição.
func (d Decision) Err() error {
	if d.Admitted {
		return nil
	}
	return ErrQuotaExceeded
}

// NormalizeIdentity remove espaços e troca identidades vazias pela sentinela anônima.
func NormalizeIdentity(identity string) string {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return AnonymousIdentity
	}
	return identity
}

// IsLoopback indica se a identidade é exatamente um dos literais de loopback reconhecidos.
func IsLoopback(identity string) bool {
	_, ok := loopbackIdentities[identity]
	return ok
}

// DecisionEvent é o registro best-effort de uma decisão, usado para estatísticas.
type DecisionEvent struct {
	Bucket   string
	Identity string
	Outcome  Outcome
	At       time.Time
}

type Outcome string

const (
	OutcomeAdmitted   Outcome = "admitted"
	OutcomeRejected   Outcome = "rejected"
	OutcomeStoreError Outcome = "store_error"
)
