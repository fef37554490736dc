// Package cleanup は使用済み・期限切れのパスワードリセット要求を定期削除するジョブを提供する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/playnet/internal/metrics"
)

// DefaultRetention はリセット要求の保持期間のデフォルト値。
const DefaultRetention = 7 * 24 * time.Hour

// DefaultInterval はStartの既定の実行間隔。
const DefaultInterval = 24 * time.Hour

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanupJob はpassword_resetsの不要行を削除するバッチジョブ。
// 同じ入力に対して何度実行しても結果は変わらない。
type CleanupJob struct {
	db        Executor
	logger    *slog.Logger
	metrics   metrics.MetricsCollector
	now       func() time.Time
	Retention time.Duration
}

// NewCleanupJob は新しいCleanupJobを生成する。collectorがnilの場合は記録しない。
func NewCleanupJob(db Executor, logger *slog.Logger, collector metrics.MetricsCollector) *CleanupJob {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &CleanupJob{
		db:        db,
		logger:    logger,
		metrics:   collector,
		now:       time.Now,
		Retention: DefaultRetention,
	}
}

// Run は保持期間を過ぎたリセット要求を削除し、削除件数を返す。
// 使用済みの行はused_at、未使用の行はexpires_atを基準にする。
func (j *CleanupJob) Run(ctx context.Context) (int64, error) {
	start := time.Now()
	cutoff := j.now().Add(-j.Retention)

	result, err := j.db.ExecContext(ctx,
		`DELETE FROM password_resets
		 WHERE (used_at IS NOT NULL AND used_at < $1) OR expires_at < $1`,
		cutoff,
	)
	if err != nil {
		j.logger.Error("password reset cleanup failed",
			slog.String("error", err.Error()),
			slog.Duration("retention", j.Retention),
		)
		return 0, fmt.Errorf("failed to delete stale password resets: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	j.metrics.RecordResetsPurged(int(deleted))

	j.logger.Info("password reset cleanup completed",
		slog.Int64("deleted_count", deleted),
		slog.Duration("retention", j.Retention),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return deleted, nil
}

// Start は起動直後に1回、その後interval毎にRunを実行する。
// コンテキストがキャンセルされるまでブロックする。intervalが0以下なら日次で実行する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("cleanup worker started", slog.Duration("interval", interval))

	// Runの失敗はログ済みなので次回に持ち越す
	_, _ = j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("cleanup worker stopped")
			return
		case <-ticker.C:
			_, _ = j.Run(ctx)
		}
	}
}
