package notifier

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"futuresMegaBot/internal/domain"
)

type mockLogger struct {
	warns, infos, errs int
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infos++
}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.warns++
}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errs++
}

type fakeSender struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, f.err
}

type fakeNotifier struct {
	alerts []domain.Alert
	err    error
}

func (f *fakeNotifier) Notify(ctx context.Context, a domain.Alert) error {
	f.alerts = append(f.alerts, a)
	return f.err
}

func sampleAlert() domain.Alert {
	return domain.Alert{
		Kind:        domain.AlertBreakevenMoved,
		Symbol:      "BTCUSDT",
		Side:        domain.Long,
		Entry:       100,
		Stop:        100.07,
		TakeProfits: [domain.MaxTakeProfits]float64{110, 120},
		Description: "stop moved from 90",
	}
}

func TestFormatAlert(t *testing.T) {
	text := FormatAlert(sampleAlert())
	assert.Contains(t, text, "STOP MOVED TO BREAKEVEN")
	assert.Contains(t, text, "BTCUSDT LONG")
	assert.Contains(t, text, "Stop: 100.07")
	assert.Contains(t, text, "TP2: 120")
	assert.NotContains(t, text, "TP3")
	assert.NotContains(t, text, "Error")

	a := sampleAlert()
	a.Kind = domain.AlertLiquidationRisk
	a.Warning = true
	a.Error = "stop 79 beyond liquidation 80"
	text = FormatAlert(a)
	assert.Contains(t, text, "⚠️ STOP BEYOND LIQUIDATION")
	assert.Contains(t, text, "Error: stop 79 beyond liquidation 80")
}

func TestTelegramNotify(t *testing.T) {
	fs := &fakeSender{}
	tg := &Telegram{bot: fs, chatID: 42, logger: &mockLogger{}}

	require.NoError(t, tg.Notify(context.Background(), sampleAlert()))
	require.Len(t, fs.sent, 1)
	msg, ok := fs.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Contains(t, msg.Text, "BTCUSDT")

	fs.err = errors.New("bad gateway")
	assert.Error(t, tg.Notify(context.Background(), sampleAlert()))
}

func TestNewTelegramRequiresConfig(t *testing.T) {
	_, err := NewTelegram(TelegramConfig{Logger: &mockLogger{}})
	assert.Error(t, err)
}

func TestLogNotifier(t *testing.T) {
	log := &mockLogger{}
	n := NewLog(log)

	require.NoError(t, n.Notify(context.Background(), sampleAlert()))
	warn := sampleAlert()
	warn.Warning = true
	require.NoError(t, n.Notify(context.Background(), warn))

	assert.Equal(t, 1, log.infos)
	assert.Equal(t, 1, log.warns)
}

func TestMultiJoinsErrors(t *testing.T) {
	ok := &fakeNotifier{}
	failing := &fakeNotifier{err: errors.New("down")}
	m := Multi{ok, failing}

	err := m.Notify(context.Background(), sampleAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
	assert.Len(t, ok.alerts, 1)
	assert.Len(t, failing.alerts, 1)
}
