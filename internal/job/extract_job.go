package job

import (
	"context"
)

const ExtractJobName = "document_text_extract"

type PendingExtractor interface {
	ProcessPendingExtraction(ctx context.Context, batch int) (int, error)
}

// ExtractJob fills extracted_text for documents that have none yet.
type ExtractJob struct {
	extractor PendingExtractor
	batch     int
}

func NewExtractJob(extractor PendingExtractor, batch int) *ExtractJob {
	return &ExtractJob{extractor: extractor, batch: batch}
}

func (j *ExtractJob) Name() string {
	return ExtractJobName
}

func (j *ExtractJob) Run(ctx context.Context) error {
	if j.extractor == nil {
		return nil
	}
	_, err := j.extractor.ProcessPendingExtraction(ctx, j.batch)
	return err
}
