package usecase

import (
	"context"

	"go.uber.org/zap"
)

// Summary represents aggregated annotation insights.
type Summary struct {
	AnnotatedDocuments int64   `json:"annotated_documents"`
	CaptionedFaces     int64   `json:"captioned_faces"`
	AverageFaces       float64 `json:"average_faces"`
}

// GetSummary aggregates annotation counts from the stored properties.
func (uc *AnnotationUseCase) GetSummary(ctx context.Context) (*Summary, error) {
	values, err := uc.repo.ListValues(ctx, uc.propertyKey)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	for _, value := range values {
		record, err := decodeRecord(value)
		if err != nil {
			uc.logger.Warn("skipping unreadable annotation", zap.Error(err))
			continue
		}
		if !record.Populated() {
			continue
		}
		summary.AnnotatedDocuments++
		summary.CaptionedFaces += int64(len(record.Faces))
	}

	if summary.AnnotatedDocuments > 0 {
		summary.AverageFaces = float64(summary.CaptionedFaces) / float64(summary.AnnotatedDocuments)
	}
	return summary, nil
}
