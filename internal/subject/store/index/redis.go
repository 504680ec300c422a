package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pseudonym-gateway/pkg/domain"
	"pseudonym-gateway/pkg/fhir"
)

const (
	valueKeyPrefix = "pgw:enroll:v:"
	readyKey       = "pgw:enroll:ready"
	generationKey  = "pgw:enroll:gen"

	// rebuildBatch caps the number of SADD commands per pipeline.
	rebuildBatch = 500
)

// RedisIndex stores one set of subject ids per extension value, shared by
// every gateway instance.
type RedisIndex struct {
	client redis.UniversalClient
	ttl    time.Duration
}

type RedisOption func(*RedisIndex)

// WithReadyTTL bounds how long a rebuild is trusted. Non-positive values
// fall back to DefaultTTL.
func WithReadyTTL(ttl time.Duration) RedisOption {
	return func(r *RedisIndex) {
		r.ttl = ttl
	}
}

func NewRedis(client redis.UniversalClient, opts ...RedisOption) *RedisIndex {
	r := &RedisIndex{client: client}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.ttl = boundedTTL(r.ttl)
	return r
}

func (r *RedisIndex) Candidates(ctx context.Context, pseudonym domain.ProviderPseudonym) ([]domain.SubjectID, bool, error) {
	pipe := r.client.Pipeline()
	ready := pipe.Exists(ctx, readyKey)
	members := pipe.SMembers(ctx, valueKeyPrefix+string(pseudonym))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, false, fmt.Errorf("read enrollment index: %w", err)
	}
	if ready.Val() == 0 {
		return nil, false, nil
	}
	return sortedIDs(members.Val()), true, nil
}

func (r *RedisIndex) Index(ctx context.Context, patient *fhir.Patient) error {
	if patient == nil || patient.ID == "" {
		return nil
	}
	pipe := r.client.Pipeline()
	for _, v := range values(patient) {
		pipe.SAdd(ctx, valueKeyPrefix+v, patient.ID)
	}
	if pipe.Len() == 0 {
		return nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("index subject %s: %w", patient.ID, err)
	}
	return nil
}

func (r *RedisIndex) Generation(ctx context.Context) (uint64, error) {
	gen, err := r.client.Get(ctx, generationKey).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read enrollment index generation: %w", err)
	}
	return gen, nil
}

// Rebuild adds every patient and then marks the index ready, unless an
// Invalidate has moved the generation on since the caller's scan began.
func (r *RedisIndex) Rebuild(ctx context.Context, generation uint64, patients []*fhir.Patient) error {
	pipe := r.client.Pipeline()
	for _, p := range patients {
		if p == nil || p.ID == "" {
			continue
		}
		for _, v := range values(p) {
			pipe.SAdd(ctx, valueKeyPrefix+v, p.ID)
		}
		if pipe.Len() >= rebuildBatch {
			if _, err := pipe.Exec(ctx); err != nil {
				return fmt.Errorf("rebuild enrollment index: %w", err)
			}
		}
	}
	if pipe.Len() > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("rebuild enrollment index: %w", err)
		}
	}

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, generationKey).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != generation {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, readyKey, "1", r.ttl)
			return nil
		})
		return err
	}, generationKey)
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark enrollment index ready: %w", err)
	}
	return nil
}

func (r *RedisIndex) Invalidate(ctx context.Context) error {
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, generationKey)
		p.Del(ctx, readyKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate enrollment index: %w", err)
	}
	return nil
}
