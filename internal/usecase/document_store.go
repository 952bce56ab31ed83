package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/face-detect/internal/annotation"
	"github.com/example/face-detect/internal/logging"
	"github.com/example/face-detect/internal/retry"
)

const emptyRecordJSON = "{}"

var errPartialRecord = errors.New("refusing to store a partial annotation record")

// documentStore is the annotation.Store of one document: a cache-aside view
// over the content property repository.
type documentStore struct {
	uc         *AnnotationUseCase
	documentID string
}

var _ annotation.Store = (*documentStore)(nil)

func (s *documentStore) cacheKey() string {
	return fmt.Sprintf("content-property:%s:%s", s.uc.propertyKey, s.documentID)
}

// Load returns the stored record, or the empty record when none was written.
func (s *documentStore) Load(ctx context.Context) (annotation.Record, error) {
	unlock := s.uc.lockDocument(s.documentID)
	defer unlock()

	opLogger := logging.WithOperation(ctx, s.uc.logger, "store.load", s.documentID)
	cacheKey := s.cacheKey()

	if cached, err := s.uc.withRedisGet(ctx, s.documentID, "cache.get.record", cacheKey); err == nil {
		record, err := decodeRecord(cached)
		if err == nil {
			return record, nil
		}
		opLogger.Warn("failed to decode cached record", zap.Error(err))
	} else if !errors.Is(err, redis.Nil) {
		opLogger.Warn("failed to read cache", zap.Error(err))
	}

	value, found, err := s.uc.repo.Get(ctx, s.documentID, s.uc.propertyKey)
	if err != nil {
		return annotation.Record{}, err
	}
	if !found {
		value = emptyRecordJSON
	}

	record, err := decodeRecord(value)
	if err != nil {
		return annotation.Record{}, logging.NewOperationError(ctx, "store.decode", s.documentID, err)
	}

	if err := s.uc.withRedisRetry(ctx, s.documentID, "cache.set.record", func() error {
		return s.uc.cache.Set(ctx, cacheKey, value, s.uc.cacheTTL)
	}); err != nil {
		opLogger.Warn("failed to cache record", zap.Error(err))
	}
	return record, nil
}

// Save overwrites the stored record and refreshes the cached copy. Only a
// populated record or the zero record can be stored.
func (s *documentStore) Save(ctx context.Context, record annotation.Record) error {
	value, err := encodeRecord(record)
	if err != nil {
		return logging.NewOperationError(ctx, "store.encode", s.documentID, err)
	}

	unlock := s.uc.lockDocument(s.documentID)
	defer unlock()

	if err := s.uc.repo.Put(ctx, s.documentID, s.uc.propertyKey, value); err != nil {
		return err
	}

	opLogger := logging.WithOperation(ctx, s.uc.logger, "store.save", s.documentID)
	cacheKey := s.cacheKey()
	err = s.uc.withRedisRetry(ctx, s.documentID, "cache.set.record", func() error {
		return s.uc.cache.Set(ctx, cacheKey, value, s.uc.cacheTTL)
	})
	if err == nil {
		return nil
	}
	opLogger.Warn("failed to refresh cached record", zap.Error(err))

	if err := s.uc.withRedisRetry(ctx, s.documentID, "cache.del.record", func() error {
		return s.uc.cache.Del(ctx, cacheKey)
	}); err != nil {
		opLogger.Warn("failed to invalidate cached record", zap.Error(err))
	}
	return nil
}

func encodeRecord(record annotation.Record) (string, error) {
	if isZeroRecord(record) {
		return emptyRecordJSON, nil
	}
	if !record.Populated() {
		return "", errPartialRecord
	}
	data, err := json.Marshal(record)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func isZeroRecord(record annotation.Record) bool {
	return record.Title == "" && record.OriginalImage == "" && record.Faces == nil
}

func decodeRecord(value string) (annotation.Record, error) {
	var record annotation.Record
	if err := json.Unmarshal([]byte(value), &record); err != nil {
		return annotation.Record{}, err
	}
	return record, nil
}

// documentLock serialises store access for one document. refs counts the
// holders and waiters so the entry can be dropped once nobody needs it.
type documentLock struct {
	mu   sync.Mutex
	refs int
}

// lockDocument blocks until the caller owns documentID's store and returns
// the matching unlock.
func (uc *AnnotationUseCase) lockDocument(documentID string) func() {
	uc.docMu.Lock()
	l, ok := uc.docLocks[documentID]
	if !ok {
		l = &documentLock{}
		uc.docLocks[documentID] = l
	}
	l.refs++
	uc.docMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		uc.docMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(uc.docLocks, documentID)
		}
		uc.docMu.Unlock()
	}
}

func (uc *AnnotationUseCase) withRedisRetry(ctx context.Context, documentID, operation string, fn func() error) error {
	runner := retry.Runner{
		Policy:  uc.cacheRetry,
		Logger:  uc.logger,
		Subject: "redis",
		Passthrough: func(err error) bool {
			return errors.Is(err, redis.Nil)
		},
	}
	return runner.Do(ctx, operation, documentID, fn)
}

func (uc *AnnotationUseCase) withRedisGet(ctx context.Context, documentID, operation, cacheKey string) (string, error) {
	var result string
	err := uc.withRedisRetry(ctx, documentID, operation, func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}
