package service

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mdesk/internal/extract"
	"github.com/xxxsen/mdesk/internal/repo"
)

const defaultExtractBatch = 50

type ExtractService struct {
	docs      *repo.DocumentRepo
	extractor extract.Extractor
}

func NewExtractService(docs *repo.DocumentRepo, extractor extract.Extractor) *ExtractService {
	return &ExtractService{docs: docs, extractor: extractor}
}

// ProcessPendingExtraction extracts text for up to batch documents that have
// none. Content that extracts to nothing is stored whitespace-collapsed so the
// document is not picked up again.
func (s *ExtractService) ProcessPendingExtraction(ctx context.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = defaultExtractBatch
	}
	logger := logutil.GetLogger(ctx)
	docs, err := s.docs.ListPendingExtraction(ctx, uint(batch))
	if err != nil {
		return 0, err
	}
	done := 0
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		text, err := s.extractor.Extract(ctx, doc.Content)
		if err != nil {
			logger.Warn("extract document text failed", zap.String("doc_id", doc.ID), zap.Error(err))
			continue
		}
		if text == "" {
			text = extract.PlainText(doc.Content)
		}
		if text == "" {
			continue
		}
		if err := s.docs.UpdateExtractedText(ctx, doc.ID, text); err != nil {
			logger.Warn("save extracted text failed", zap.String("doc_id", doc.ID), zap.Error(err))
			continue
		}
		done++
	}
	if done > 0 {
		logger.Info("document text extracted", zap.Int("count", done), zap.Int("pending", len(docs)))
	}
	return done, nil
}
