package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// WrapLruCache memoizes extraction by content hash.
func WrapLruCache(e Extractor, size int, ttl time.Duration) Extractor {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &lruExtractor{
		next:  e,
		cache: expirable.NewLRU[string, string](size, nil, ttl),
	}
}

type lruExtractor struct {
	next  Extractor
	cache *expirable.LRU[string, string]
}

func (l *lruExtractor) Extract(ctx context.Context, content string) (string, error) {
	key := cacheKey(content)
	if cached, ok := l.cache.Get(key); ok {
		logutil.GetLogger(ctx).Debug("extract cache hit", zap.Int("content_len", len(content)))
		return cached, nil
	}
	res, err := l.next.Extract(ctx, content)
	if err != nil {
		return "", err
	}
	l.cache.Add(key, res)
	return res, nil
}

func cacheKey(content string) string {
	hash := sha256.Sum256([]byte(content))
	return "extract:" + hex.EncodeToString(hash[:])
}
