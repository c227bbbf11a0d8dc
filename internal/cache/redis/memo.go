package redis

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/chrisx599/ChatEmail/internal/storage/models"
	"github.com/chrisx599/ChatEmail/pkg/logger"
)

type Analyzer interface {
	AnalyzeEmail(ctx context.Context, subject, body, from string) (*models.Analysis, error)
}

// MemoAnalyzer consults the shared memo before calling next and records
// successful results. Redis failures fall through to next.
type MemoAnalyzer struct {
	memo  *Client
	next  Analyzer
	scope Scope
	ttl   time.Duration
}

func NewMemoAnalyzer(memo *Client, next Analyzer, scope Scope, ttl time.Duration) *MemoAnalyzer {
	return &MemoAnalyzer{memo: memo, next: next, scope: scope, ttl: ttl}
}

func (m *MemoAnalyzer) AnalyzeEmail(ctx context.Context, subject, body, from string) (*models.Analysis, error) {
	key := AnalysisKey(m.scope, subject, body, from)

	cached, found, err := m.memo.GetAnalysis(ctx, key)
	if err != nil {
		logger.Warn("Analysis memo unavailable", zap.Error(err))
	} else if found {
		return cached, nil
	}

	analysis, err := m.next.AnalyzeEmail(ctx, subject, body, from)
	if err != nil {
		return nil, err
	}

	if err := m.memo.SetAnalysis(ctx, key, analysis, m.ttl); err != nil {
		logger.Warn("Failed to memoize analysis", zap.Error(err))
	}
	return analysis, nil
}
