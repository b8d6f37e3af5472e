package job

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePending struct {
	batch int
	err   error
}

func (f *fakePending) ProcessPendingExtraction(_ context.Context, batch int) (int, error) {
	f.batch = batch
	return 0, f.err
}

func TestExtractJob(t *testing.T) {
	p := &fakePending{}
	j := NewExtractJob(p, 25)
	assert.Equal(t, "document_text_extract", j.Name())
	require.NoError(t, j.Run(context.Background()))
	assert.Equal(t, 25, p.batch)

	p.err = errors.New("db down")
	require.Error(t, j.Run(context.Background()))

	require.NoError(t, NewExtractJob(nil, 1).Run(context.Background()))
}
