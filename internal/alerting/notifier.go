package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Alert kinds.
const (
	KindLowBalance     = "low_balance"
	KindRefreshFailure = "refresh_failure"
)

// Notification 封装告警上下文。
type Notification struct {
	Kind         string
	Wallet       string
	BalanceSOL   decimal.Decimal
	ThresholdSOL decimal.Decimal
	SlotHeight   uint64
	FetchedAt    time.Time
	Channels     []string
	Message      string
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().
		Str("kind", note.Kind).
		Str("wallet", note.Wallet).
		Str("channels", strings.Join(note.Channels, ",")).
		Msg("告警已发送 (Telegram)")
	return nil
}

// Summary 生成用于审计记录的单行描述。
func Summary(note Notification) string {
	switch note.Kind {
	case KindLowBalance:
		return fmt.Sprintf("balance %s SOL below threshold %s SOL at slot %d",
			note.BalanceSOL.StringFixed(4), note.ThresholdSOL.StringFixed(4), note.SlotHeight)
	default:
		return note.Message
	}
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	switch note.Kind {
	case KindLowBalance:
		builder.WriteString("[solwatch] Low balance alert\n")
		builder.WriteString(fmt.Sprintf("Wallet: %s\n", note.Wallet))
		builder.WriteString(fmt.Sprintf("Balance: %s SOL (threshold %s SOL)\n",
			note.BalanceSOL.StringFixed(4), note.ThresholdSOL.StringFixed(4)))
		builder.WriteString(fmt.Sprintf("Slot: %d\n", note.SlotHeight))
	case KindRefreshFailure:
		builder.WriteString("[solwatch] Refresh failure\n")
	default:
		builder.WriteString("[solwatch] Alert\n")
	}
	if !note.FetchedAt.IsZero() {
		builder.WriteString(fmt.Sprintf("Observed: %s UTC\n", note.FetchedAt.UTC().Format(time.RFC3339)))
	}
	if note.Message != "" {
		builder.WriteString(note.Message)
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
