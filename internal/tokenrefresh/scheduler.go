package tokenrefresh

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/socialdash/internal/middleware"
	"github.com/hitoshi/socialdash/internal/model"
)

// ExpiringAccountLister はトークンの有効期限が近いアカウントを取得するインターフェース。
type ExpiringAccountLister interface {
	ListExpiringTokens(ctx context.Context, before time.Time) ([]*model.SocialAccount, error)
}

// Refresher はアカウントのトークンをリフレッシュするインターフェース。
type Refresher interface {
	Supports(platform string) bool
	Refresh(ctx context.Context, account *model.SocialAccount) (model.TokenUpdate, error)
}

// TokenApplier はリフレッシュ結果を保存するインターフェース。
// socialaccount.Service が満たし、RotateTokensと同じ部分更新の経路で保存する。
type TokenApplier interface {
	ApplyRefreshedTokens(ctx context.Context, accountID string, update model.TokenUpdate) (*model.SocialAccount, error)
}

// Scheduler はトークンリフレッシュの定期実行と並列制御を行う。
type Scheduler struct {
	accounts       ExpiringAccountLister
	refresher      Refresher
	applier        TokenApplier
	logger         *slog.Logger
	maxConcurrency int
	window         time.Duration
	now            func() time.Time
	sleep          func(ctx context.Context, d time.Duration) error

	// blocked は恒久的な失敗をしたアカウントIDと、失敗時点のupdated_at。
	// アカウントが更新されるまで再試行しない。
	mu      sync.Mutex
	blocked map[string]time.Time
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合は5、windowが0以下の場合は1時間を使用する。
func NewScheduler(
	accounts ExpiringAccountLister,
	refresher Refresher,
	applier TokenApplier,
	logger *slog.Logger,
	maxConcurrency int,
	window time.Duration,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 5
	}
	if window <= 0 {
		window = time.Hour
	}
	return &Scheduler{
		accounts:       accounts,
		refresher:      refresher,
		applier:        applier,
		logger:         logger,
		maxConcurrency: maxConcurrency,
		window:         window,
		now:            time.Now,
		sleep:          sleepContext,
		blocked:        make(map[string]time.Time),
	}
}

// Start はinterval間隔でRunOnceを実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("トークンリフレッシュスケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("window", s.window),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("トークンリフレッシュサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("トークンリフレッシュスケジューラを停止しました")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("トークンリフレッシュサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// CycleResult は1サイクルの処理件数。
type CycleResult struct {
	Refreshed int
	Skipped   int
	Failed    int
}

// RunOnce は有効期限がwindow以内のアカウントを取得し、並列でリフレッシュする。
// 個々のアカウントの失敗はログに記録し、サイクル全体は継続する。
func (s *Scheduler) RunOnce(ctx context.Context) (CycleResult, error) {
	start := s.now()

	accounts, err := s.accounts.ListExpiringTokens(ctx, start.Add(s.window))
	if err != nil {
		return CycleResult{}, err
	}

	s.pruneBlocked(accounts)

	if len(accounts) == 0 {
		s.logger.Info("リフレッシュ対象のアカウントはありません")
		return CycleResult{}, nil
	}

	s.logger.Info("トークンリフレッシュサイクルを開始します",
		slog.Int("account_count", len(accounts)),
	)

	var (
		mu     sync.Mutex
		result CycleResult
		wg     sync.WaitGroup
	)
	count := func(outcome refreshOutcome) {
		mu.Lock()
		defer mu.Unlock()
		switch outcome {
		case outcomeRefreshed:
			result.Refreshed++
		case outcomeSkipped:
			result.Skipped++
		default:
			result.Failed++
		}
	}

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)

	for _, account := range accounts {
		if !s.refresher.Supports(account.Platform) {
			s.logger.Info("OAuthクライアントが未設定のためスキップします",
				slog.String("account_id", account.ID),
				slog.String("platform", account.Platform),
			)
			count(outcomeSkipped)
			continue
		}
		if s.isBlocked(account) {
			s.logger.Debug("恒久的な失敗の後に更新されていないためスキップします",
				slog.String("account_id", account.ID),
				slog.String("platform", account.Platform),
			)
			count(outcomeSkipped)
			continue
		}

		wg.Add(1)
		sem <- struct{}{}

		go func(a *model.SocialAccount) {
			defer wg.Done()
			defer func() { <-sem }()
			count(s.refreshAccount(ctx, a))
		}(account)
	}

	wg.Wait()

	s.logger.Info("トークンリフレッシュサイクルが完了しました",
		slog.Int("refreshed", result.Refreshed),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return result, nil
}

type refreshOutcome int

const (
	outcomeRefreshed refreshOutcome = iota
	outcomeSkipped
	outcomeFailed
)

func (s *Scheduler) refreshAccount(ctx context.Context, account *model.SocialAccount) refreshOutcome {
	update, err := s.refreshWithRetry(ctx, account)
	if err != nil {
		permanent := ctx.Err() == nil && ClassifyRefreshError(err) == FailurePermanent
		s.logger.Warn("トークンのリフレッシュに失敗しました",
			slog.String("account_id", account.ID),
			slog.String("platform", account.Platform),
			slog.Bool("permanent", permanent),
			slog.String("error", err.Error()),
		)
		if permanent {
			s.block(account)
		}
		return outcomeFailed
	}

	// 有効期限を返さないプロバイダーでは古い期限が残り毎サイクル対象になるため、
	// window の2倍先を次回の期限として記録する
	if update.ExpiresAt == nil {
		expiry := s.now().Add(2 * s.window).UTC()
		update.ExpiresAt = &expiry
	}

	// 所有者として保存することで、user_idで絞り込む更新経路を通す
	ownerCtx := middleware.ContextWithUserID(ctx, account.UserID)
	if _, err := s.applier.ApplyRefreshedTokens(ownerCtx, account.ID, update); err != nil {
		s.logger.Error("リフレッシュしたトークンの保存に失敗しました",
			slog.String("account_id", account.ID),
			slog.String("platform", account.Platform),
			slog.String("error", err.Error()),
		)
		return outcomeFailed
	}

	s.logger.Info("トークンをリフレッシュしました",
		slog.String("account_id", account.ID),
		slog.String("platform", account.Platform),
	)
	return outcomeRefreshed
}

// refreshWithRetry は一時的な失敗に限り指数バックオフで再試行する。
func (s *Scheduler) refreshWithRetry(ctx context.Context, account *model.SocialAccount) (model.TokenUpdate, error) {
	var lastErr error
	for attempt := 0; attempt < maxRefreshAttempts; attempt++ {
		if attempt > 0 {
			delay := CalculateBackoff(attempt - 1)
			s.logger.Info("トークンのリフレッシュを再試行します",
				slog.String("account_id", account.ID),
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay),
			)
			if err := s.sleep(ctx, delay); err != nil {
				return model.TokenUpdate{}, err
			}
		}

		update, err := s.refresher.Refresh(ctx, account)
		if err == nil {
			return update, nil
		}
		lastErr = err
		if ClassifyRefreshError(err) == FailurePermanent {
			break
		}
	}
	return model.TokenUpdate{}, lastErr
}

// block はアカウントを現在のupdated_atのまま再試行対象から外す。
func (s *Scheduler) block(account *model.SocialAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked[account.ID] = account.UpdatedAt
}

// isBlocked は恒久的な失敗の後にアカウントが更新されていないかを返す。
// トークンの再設定などでupdated_atが変わっていれば再び対象にする。
func (s *Scheduler) isBlocked(account *model.SocialAccount) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	updatedAt, ok := s.blocked[account.ID]
	if !ok {
		return false
	}
	if !updatedAt.Equal(account.UpdatedAt) {
		delete(s.blocked, account.ID)
		return false
	}
	return true
}

// pruneBlocked は対象一覧に現れなくなったアカウントの記録を削除する。
func (s *Scheduler) pruneBlocked(accounts []*model.SocialAccount) {
	listed := make(map[string]struct{}, len(accounts))
	for _, a := range accounts {
		listed[a.ID] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.blocked {
		if _, ok := listed[id]; !ok {
			delete(s.blocked, id)
		}
	}
}
