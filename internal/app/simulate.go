package app

import (
	"context"
	"errors"
	"time"

	"solwatch/internal/chain"
	"solwatch/internal/service"
)

// SimulateAlert 以给定余额构造一个合成快照走完整个告警流程。
func (a *App) SimulateAlert(ctx context.Context, wallet string, lamports uint64) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}

	if wallet == "" {
		if len(a.Config.Solana.Wallets) == 0 {
			return errors.New("no wallet configured; pass --wallet")
		}
		wallet = a.Config.Solana.Wallets[0]
	}

	snap := &chain.Snapshot{
		FetchedAt:  time.Now().UTC(),
		SlotHeight: 0,
		Balances:   map[string]uint64{wallet: lamports},
	}

	svc := service.New(a.Config, nil, nil, notifier, nil, a.Logger)
	svc.HandleSnapshot(ctx, snap)
	return nil
}
