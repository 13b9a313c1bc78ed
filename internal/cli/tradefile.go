package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"futuresMegaBot/internal/domain"
)

// tradeFile is the on-disk form of a validated trade.
//
//	symbol: BTCUSDT
//	side: long
//	entry: 64000
//	stop: 62500
//	take_profits: [65500, 67000, 69000]
//	volume_required: true
//	volume_adds_margin: false
//	description: breakout retest
type tradeFile struct {
	Symbol           string    `yaml:"symbol"`
	Side             string    `yaml:"side"`
	Entry            float64   `yaml:"entry"`
	Stop             float64   `yaml:"stop"`
	TakeProfits      []float64 `yaml:"take_profits"`
	VolumeRequired   bool      `yaml:"volume_required"`
	VolumeAddsMargin bool      `yaml:"volume_adds_margin"`
	Description      string    `yaml:"description"`
}

func readTradeFile(path string) (domain.Trade, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return domain.Trade{}, fmt.Errorf("read trade file: %w", err)
	}
	return parseTrade(data)
}

func parseTrade(data []byte) (domain.Trade, error) {
	var f tradeFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.Trade{}, errors.New("trade file is empty")
		}
		return domain.Trade{}, fmt.Errorf("parse trade file: %w", err)
	}
	if len(f.TakeProfits) > domain.MaxTakeProfits {
		return domain.Trade{}, fmt.Errorf("at most %d take profits are supported, got %d", domain.MaxTakeProfits, len(f.TakeProfits))
	}

	side, ok := domain.ParseSide(f.Side)
	if !ok {
		return domain.Trade{}, fmt.Errorf("side must be LONG or SHORT, got %q", f.Side)
	}
	trade := domain.Trade{
		Symbol:           domain.NormalizeSymbol(f.Symbol),
		Side:             side,
		EntryPrice:       f.Entry,
		StopPrice:        f.Stop,
		VolumeRequired:   f.VolumeRequired,
		VolumeAddsMargin: f.VolumeAddsMargin,
		Description:      f.Description,
	}
	copy(trade.TakeProfits[:], f.TakeProfits)
	if err := trade.Validate(); err != nil {
		return domain.Trade{}, err
	}
	return trade, nil
}
