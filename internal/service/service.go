package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"solwatch/internal/alerting"
	"solwatch/internal/chain"
	"solwatch/internal/config"
	"solwatch/internal/dedup"
	"solwatch/internal/metrics"
	"solwatch/internal/storage"
)

// Service orchestrates persistence and alerting for refresh outcomes. Its
// HandleSnapshot and HandleFailure methods are wired as refresher hooks.
type Service struct {
	store      storage.SampleStore
	alertStore storage.AlertStore
	notifier   alerting.Notifier
	deduper    *dedup.Deduplicator
	logger     zerolog.Logger

	threshold      decimal.Decimal
	channels       []string
	alertsOn       bool
	alertOnFailure bool
	cooldown       time.Duration
	locker         storage.AdvisoryLocker
	lockKey        int64
	retention      time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// New constructs the snapshot processing service. store, alertStore, notifier,
// and deduper may each be nil; the corresponding behaviour is skipped.
func New(cfg *config.Config, store storage.SampleStore, alertStore storage.AlertStore, notifier alerting.Notifier, deduper *dedup.Deduplicator, logger zerolog.Logger) *Service {
	threshold := decimal.Zero
	if cfg.Alerting.Enabled && cfg.Alerting.LowBalanceSOL > 0 {
		threshold = decimal.NewFromFloat(cfg.Alerting.LowBalanceSOL)
	}

	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		store:          store,
		alertStore:     alertStore,
		notifier:       notifier,
		deduper:        deduper,
		logger:         logger.With().Str("component", "service").Logger(),
		threshold:      threshold,
		channels:       cfg.Alerting.Channels,
		alertsOn:       cfg.Alerting.Enabled,
		alertOnFailure: cfg.Alerting.Enabled && cfg.Alerting.AlertOnFailure,
		cooldown:       cfg.Alerting.Cooldown,
		locker:         locker,
		lockKey:        cfg.Database.AdvisoryLockKey,
		retention:      cfg.Database.Retention,
	}
}

// HandleSnapshot 处理一次成功的快照刷新。
func (s *Service) HandleSnapshot(ctx context.Context, snap *chain.Snapshot) {
	metrics.RefreshTotal.WithLabelValues("success").Inc()
	metrics.LastSuccessTimestamp.Set(float64(snap.FetchedAt.Unix()))
	metrics.SlotHeight.Set(float64(snap.SlotHeight))
	for wallet, lamports := range snap.Balances {
		metrics.WalletBalanceLamports.WithLabelValues(wallet).Set(float64(lamports))
	}

	s.persistSample(ctx, snap)
	s.evaluateBalances(ctx, snap)
}

// HandleFailure 处理一次刷新失败(重试耗尽后)。
func (s *Service) HandleFailure(ctx context.Context, err error) {
	metrics.RefreshTotal.WithLabelValues("failure").Inc()

	if !s.alertOnFailure || s.notifier == nil {
		return
	}

	note := alerting.Notification{
		Kind:     alerting.KindRefreshFailure,
		Channels: s.channels,
		Message:  fmt.Sprintf("Error: %v", err),
	}
	s.dispatch(ctx, "refresh", note)
}

func (s *Service) persistSample(ctx context.Context, snap *chain.Snapshot) {
	if s.store == nil {
		return
	}

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to acquire advisory lock")
		return
	}
	if !proceed {
		s.logger.Debug().Msg("skip persistence because advisory lock held elsewhere")
		return
	}
	if unlock != nil {
		defer unlock()
	}

	balances, err := json.Marshal(snap.Balances)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode balances")
		return
	}

	sample := storage.SnapshotSample{
		FetchedAt:     snap.FetchedAt,
		SlotHeight:    snap.SlotHeight,
		TotalLamports: snap.TotalLamports(),
		Balances:      balances,
		TxCount:       len(snap.RecentTransactions),
		Status:        "complete",
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.UpsertSample(ctx, sample); err != nil {
		s.logger.Error().Err(err).Time("fetched_at", snap.FetchedAt).Msg("failed to upsert sample")
		return
	}

	s.logger.Info().
		Uint64("slot", snap.SlotHeight).
		Uint64("total_lamports", sample.TotalLamports).
		Int("tx_count", sample.TxCount).
		Msg("sample recorded")

	s.pruneHistory(ctx)
}

func (s *Service) pruneHistory(ctx context.Context) {
	if s.retention <= 0 {
		return
	}
	cutoff := time.Now().UTC().Add(-s.retention)
	removed, err := s.store.DeleteSamplesBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to prune history")
		return
	}
	if removed > 0 {
		s.logger.Debug().Int64("removed", removed).Time("cutoff", cutoff).Msg("pruned history")
	}
}

func (s *Service) evaluateBalances(ctx context.Context, snap *chain.Snapshot) {
	if !s.alertsOn || s.notifier == nil || s.threshold.IsZero() {
		return
	}

	for wallet, lamports := range snap.Balances {
		balance := chain.LamportsToSOL(lamports)
		key := dedupKey(alerting.KindLowBalance, wallet)

		if balance.GreaterThanOrEqual(s.threshold) {
			// 余额恢复,清除抑制键以便再次触发。
			s.clearSuppression(ctx, key)
			continue
		}

		note := alerting.Notification{
			Kind:         alerting.KindLowBalance,
			Wallet:       wallet,
			BalanceSOL:   balance,
			ThresholdSOL: s.threshold,
			SlotHeight:   snap.SlotHeight,
			FetchedAt:    snap.FetchedAt,
			Channels:     s.channels,
		}
		s.dispatch(ctx, key, note)
	}
}

// dispatch applies cooldown and dedup suppression before delivery.
func (s *Service) dispatch(ctx context.Context, key string, note alerting.Notification) {
	if s.suppressed(ctx, key) {
		metrics.AlertsSuppressedTotal.WithLabelValues(note.Kind).Inc()
		s.logger.Debug().Str("kind", note.Kind).Str("wallet", note.Wallet).Msg("alert suppressed")
		return
	}

	if s.alertStore != nil {
		record := storage.AlertRecord{
			Kind:      note.Kind,
			Wallet:    note.Wallet,
			Detail:    alerting.Summary(note),
			Channels:  s.channels,
			CreatedAt: time.Now().UTC(),
		}
		if _, err := s.alertStore.InsertAlert(ctx, record); err != nil {
			s.logger.Error().Err(err).Str("kind", note.Kind).Msg("failed to persist alert record")
		}
	}

	if err := s.notifier.Notify(ctx, note); err != nil {
		metrics.AlertsFailedTotal.WithLabelValues(note.Kind).Inc()
		s.logger.Error().Err(err).Str("kind", note.Kind).Str("wallet", note.Wallet).Msg("failed to dispatch alert")
		return
	}

	metrics.AlertsSentTotal.WithLabelValues(note.Kind).Inc()
	s.markSent(ctx, key)
}

func (s *Service) suppressed(ctx context.Context, key string) bool {
	if s.cooldown <= 0 {
		return false
	}
	if s.deduper != nil && s.deduper.AlreadySent(ctx, key) {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastSent[key]
	return ok && time.Since(last) < s.cooldown
}

func (s *Service) markSent(ctx context.Context, key string) {
	if s.cooldown <= 0 {
		return
	}
	if s.deduper != nil {
		s.deduper.Record(ctx, key, s.cooldown)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSent == nil {
		s.lastSent = make(map[string]time.Time)
	}
	s.lastSent[key] = time.Now()
}

func (s *Service) clearSuppression(ctx context.Context, key string) {
	if s.deduper != nil {
		s.deduper.Clear(ctx, key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lastSent, key)
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

func dedupKey(kind, wallet string) string {
	return fmt.Sprintf("solwatch:alert:%s:%s", kind, wallet)
}
