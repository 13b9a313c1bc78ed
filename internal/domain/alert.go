package domain

// AlertKind tags what an alert is about.
type AlertKind string

const (
	AlertTradeExecuted   AlertKind = "TRADE_EXECUTED"
	AlertTradeFailed     AlertKind = "TRADE_FAILED"
	AlertBreakevenMoved  AlertKind = "BREAKEVEN_MOVED"
	AlertBreakevenFailed AlertKind = "BREAKEVEN_FAILED"
	AlertStopRepaired    AlertKind = "STOP_REPAIRED"
	AlertStopRepairFail  AlertKind = "STOP_REPAIR_FAILED"
	AlertOrphanCancelled AlertKind = "ORPHAN_CANCELLED"
	AlertTradeClosed     AlertKind = "TRADE_CLOSED"
	AlertLiquidationRisk AlertKind = "LIQUIDATION_RISK"
	AlertProcessingError AlertKind = "PROCESSING_ERROR"
)

// Validation is the validation block attached to an alert.
type Validation struct {
	IsValid        bool
	Message        string
	VolumeAnalysis string
	EntryAnalysis  string
}

// Alert is the event handed to the notification channel.
type Alert struct {
	Kind        AlertKind
	Symbol      string
	Side        Side
	Entry       float64
	Stop        float64
	TakeProfits [MaxTakeProfits]float64
	Validation  Validation
	Description string
	Error       string
	Warning     bool
}

// AlertFromTrade seeds an alert with the prices of t.
func AlertFromTrade(kind AlertKind, t *Trade) Alert {
	return Alert{
		Kind:        kind,
		Symbol:      t.Symbol,
		Side:        t.Side,
		Entry:       t.EntryPrice,
		Stop:        t.StopPrice,
		TakeProfits: t.TakeProfits,
		Validation:  Validation{IsValid: true},
	}
}
