package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/face-detect/internal/retry"
)

// ContentProperty is a JSON value attached to a document under a fixed key.
type ContentProperty struct {
	ID         uint      `gorm:"primaryKey"`
	DocumentID string    `gorm:"column:document_id;size:128;not null;uniqueIndex:idx_content_property_doc_key"`
	Key        string    `gorm:"column:property_key;size:128;not null;uniqueIndex:idx_content_property_doc_key"`
	Value      string    `gorm:"column:value;type:text;not null"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

// TableName overrides the default table name.
func (ContentProperty) TableName() string {
	return "content_properties"
}

// ContentPropertyRepository provides the document-scoped key-value store.
type ContentPropertyRepository struct {
	db     *gorm.DB
	logger *zap.Logger
	policy retry.Policy
}

// NewContentPropertyRepository creates a new repository instance.
func NewContentPropertyRepository(db *gorm.DB, logger *zap.Logger) *ContentPropertyRepository {
	return &ContentPropertyRepository{
		db:     db,
		logger: logger.Named("content_property_repository"),
		policy: retry.DefaultPolicy(),
	}
}

// AutoMigrate ensures the schema is available.
func (r *ContentPropertyRepository) AutoMigrate(ctx context.Context) error {
	return r.executeWithRetry(ctx, "repository.auto_migrate", "", func() error {
		return r.db.WithContext(ctx).AutoMigrate(&ContentProperty{})
	})
}

// Get returns the stored value for key on a document. found is false when the
// property was never written.
func (r *ContentPropertyRepository) Get(ctx context.Context, documentID, key string) (value string, found bool, err error) {
	var prop ContentProperty
	err = r.executeWithRetry(ctx, "repository.get", documentID, func() error {
		return r.db.WithContext(ctx).
			Where("document_id = ? AND property_key = ?", documentID, key).
			Take(&prop).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return prop.Value, true, nil
}

// Put overwrites the whole value for key on a document.
func (r *ContentPropertyRepository) Put(ctx context.Context, documentID, key, value string) error {
	prop := ContentProperty{DocumentID: documentID, Key: key, Value: value}
	return r.executeWithRetry(ctx, "repository.put", documentID, func() error {
		return r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "document_id"}, {Name: "property_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&prop).Error
	})
}

// ListValues returns every stored value for key across documents.
func (r *ContentPropertyRepository) ListValues(ctx context.Context, key string) ([]string, error) {
	var values []string
	err := r.executeWithRetry(ctx, "repository.list_values", "", func() error {
		values = values[:0]
		return r.db.WithContext(ctx).
			Model(&ContentProperty{}).
			Where("property_key = ?", key).
			Order("document_id").
			Pluck("value", &values).Error
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

func (r *ContentPropertyRepository) executeWithRetry(ctx context.Context, operation, documentID string, fn func() error) error {
	runner := retry.Runner{
		Policy:  r.policy,
		Logger:  r.logger,
		Subject: "database",
		Passthrough: func(err error) bool {
			return errors.Is(err, gorm.ErrRecordNotFound)
		},
	}
	return runner.Do(ctx, operation, documentID, fn)
}
