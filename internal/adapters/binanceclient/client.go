package binanceclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"futuresMegaBot/internal/domain"
	"futuresMegaBot/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"
)

// Client implements the ports.ExchangeGateway interface using the go-binance library.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger
	hedgeMode     atomic.Bool // Dual-side position mode; orders carry LONG/SHORT position sides
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	BaseURL    string       // Overrides the production/testnet URL when set
	HTTPClient *http.Client // Optional
	Logger     ports.Logger
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.HTTPClient != nil {
		client.HTTPClient = cfg.HTTPClient
	}

	// Set BaseURL directly instead of using global futures.UseTestnet
	switch {
	case cfg.BaseURL != "":
		client.BaseURL = cfg.BaseURL
	case cfg.UseTestnet:
		client.BaseURL = baseURLTestnet
	default:
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance client configured", map[string]interface{}{"baseURL": client.BaseURL, "testnet": cfg.UseTestnet})

	return &Client{
		futuresClient: client,
		logger:        cfg.Logger,
	}, nil
}

// handleError translates Binance API errors into a *ports.APIError wrapping
// the matching ports sentinel, and transport errors into ports sentinels.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		mapped := &ports.APIError{Code: apiErr.Code, Message: apiErr.Message, Kind: mapAPICode(apiErr.Code)}
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return fmt.Errorf("%s failed: %w", operation, mapped)
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		// Default for other errors (e.g., parsing errors within the adapter)
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// mapAPICode maps Binance error codes to ports sentinels.
func mapAPICode(code int64) error {
	switch code {
	case -1003: // Too many requests
		return ports.ErrRateLimited
	case -1021: // Timestamp for this request is outside of the recvWindow
		return ports.ErrTimeout
	case -1022: // Signature for this request is not valid
		return ports.ErrAuthenticationFailed
	case -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1121, -1125, -1127, -1128, -1130:
		return ports.ErrInvalidRequest
	case -2010: // New order rejected
		return ports.ErrOrderPlacementFailed
	case -2011: // Cancel order rejected
		return ports.ErrOrderCancelFailed
	case -2013: // Order does not exist
		return ports.ErrOrderNotFound
	case -2014, -2015: // API-key format invalid / invalid key, IP or permissions
		return ports.ErrInvalidAPIKeys
	case -2019, -3005, -3041: // Margin or balance insufficient
		return ports.ErrInsufficientFunds
	case -2022: // ReduceOnly Order is rejected
		return ports.ErrOrderPlacementFailed
	case -2027: // Exceeded the maximum allowable position at current leverage
		return ports.ErrPositionValueLimit
	case -4003, -4014, -4015: // Qty, price or leverage out of range
		return ports.ErrInvalidRequest
	case -4044: // Position not found
		return ports.ErrPositionNotFound
	default:
		return ports.ErrUnknown
	}
}

// SetServerTime synchronizes the client's time with the server's time.
func (c *Client) SetServerTime(ctx context.Context) error {
	op := "SetServerTime"
	_, err := c.futuresClient.NewSetServerTimeService().Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	err := c.futuresClient.NewPingService().Do(ctx)
	if err != nil {
		return c.handleError(ctx, fmt.Errorf("ping failed: %w", err), op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// DetectPositionMode reads whether the account runs in hedge (dual-side) mode.
func (c *Client) DetectPositionMode(ctx context.Context) error {
	op := "DetectPositionMode"
	mode, err := c.futuresClient.NewGetPositionModeService().Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.hedgeMode.Store(mode.DualSidePosition)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"hedgeMode": mode.DualSidePosition})
	return nil
}

// GetPrice retrieves the last traded price for a symbol.
func (c *Client) GetPrice(ctx context.Context, symbol string) (float64, error) {
	op := "GetPrice"
	prices, err := c.futuresClient.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if len(prices) == 0 {
		return 0, c.handleError(ctx, fmt.Errorf("no price data returned for symbol %s", symbol), op)
	}
	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, c.handleError(ctx, fmt.Errorf("could not parse price '%s': %w", prices[0].Price, err), op)
	}
	return price, nil
}

// GetPositions returns the nonzero positions for symbol, or for every
// symbol when symbol is empty.
func (c *Client) GetPositions(ctx context.Context, symbol string) ([]*domain.Position, error) {
	op := "GetPositions"
	svc := c.futuresClient.NewGetPositionRiskService()
	if symbol != "" {
		svc = svc.Symbol(symbol)
	}
	risks, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	positions := make([]*domain.Position, 0, len(risks))
	for _, r := range risks {
		pos := translatePositionRisk(r)
		if pos == nil || !pos.IsOpen() {
			continue
		}
		positions = append(positions, pos)
	}
	c.logger.Debug(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "count": len(positions)})
	return positions, nil
}

// GetOpenOrders returns all open orders on the account.
func (c *Client) GetOpenOrders(ctx context.Context) ([]*domain.Order, error) {
	op := "GetOpenOrders"
	orders, err := c.futuresClient.NewListOpenOrdersService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	out := make([]*domain.Order, 0, len(orders))
	for _, o := range orders {
		out = append(out, translateOrder(o))
	}
	return out, nil
}

// GetOrderStatus returns the execution state of one order.
func (c *Client) GetOrderStatus(ctx context.Context, symbol, orderID string) (*domain.OrderStatusReport, error) {
	op := "GetOrderStatus"
	id, err := parseOrderID(orderID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	o, err := c.futuresClient.NewGetOrderService().Symbol(symbol).OrderID(id).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	order := translateOrder(o)
	return &domain.OrderStatusReport{
		OrderID:     order.ID,
		Symbol:      order.Symbol,
		Type:        order.Type,
		Status:      order.Status,
		ExecutedQty: order.ExecutedQty,
		AvgPrice:    order.AvgPrice,
		CreateTime:  order.CreateTime,
		UpdateTime:  order.UpdateTime,
	}, nil
}

// GetMaxLeverage returns the initial leverage of the first notional bracket.
// Binance applies the same brackets to both sides.
func (c *Client) GetMaxLeverage(ctx context.Context, symbol string) (int, int, error) {
	op := "GetMaxLeverage"
	brackets, err := c.futuresClient.NewGetLeverageBracketService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, 0, c.handleError(ctx, err, op)
	}
	maxLev := 0
	for _, b := range brackets {
		if b.Symbol != symbol {
			continue
		}
		for _, br := range b.Brackets {
			if br.InitialLeverage > maxLev {
				maxLev = br.InitialLeverage
			}
		}
	}
	if maxLev == 0 {
		return 0, 0, c.handleError(ctx, fmt.Errorf("no leverage brackets for symbol %s", symbol), op)
	}
	return maxLev, maxLev, nil
}

// SetLeverage sets the leverage for a symbol. Binance leverage is per
// symbol, so positionSide is only logged.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int, positionSide domain.PositionSide) error {
	op := "SetLeverage"
	_, err := c.futuresClient.NewChangeLeverageService().
		Symbol(symbol).
		Leverage(leverage).
		Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "leverage": leverage, "positionSide": positionSide})
	return nil
}

// PlaceOrder places a single order.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (*ports.OrderResponse, error) {
	op := "PlaceOrder"
	svc := c.futuresClient.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(futures.SideType(req.Side)).
		Type(futures.OrderType(req.Type)).
		Quantity(formatFloat(req.Quantity))

	// Hedge mode rejects reduceOnly; the position side already scopes the order.
	if c.hedgeMode.Load() && req.PositionSide != domain.PositionSideBoth && req.PositionSide != "" {
		svc = svc.PositionSide(futures.PositionSideType(req.PositionSide))
	} else if req.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}
	if req.ClientOrderID != "" {
		svc = svc.NewClientOrderID(req.ClientOrderID)
	}

	switch req.Type {
	case domain.OrderTypeLimit:
		svc = svc.Price(formatFloat(req.Price)).TimeInForce(futures.TimeInForceTypeGTC)
	case domain.OrderTypeStop, domain.OrderTypeTakeProfit:
		price := req.Price
		if price <= 0 {
			price = req.StopPrice
		}
		svc = svc.Price(formatFloat(price)).StopPrice(formatFloat(req.StopPrice)).TimeInForce(futures.TimeInForceTypeGTC)
	case domain.OrderTypeStopMarket, domain.OrderTypeTakeProfitMarket:
		svc = svc.StopPrice(formatFloat(req.StopPrice)).WorkingType(futures.WorkingTypeMarkPrice)
	case domain.OrderTypeTrailingStopMarket:
		if req.ActivationPrice > 0 {
			svc = svc.ActivationPrice(formatFloat(req.ActivationPrice))
		}
		svc = svc.CallbackRate(formatFloat(req.PriceRate)).WorkingType(futures.WorkingTypeMarkPrice)
	}

	order, err := svc.Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	resp := translateOrderResponse(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol":    req.Symbol,
		"side":      req.Side,
		"type":      req.Type,
		"quantity":  req.Quantity,
		"stopPrice": req.StopPrice,
		"orderID":   resp.OrderID,
		"status":    resp.Status,
	})
	return resp, nil
}

// CancelOrder cancels an open order on Binance.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	op := "CancelOrder"
	id, err := parseOrderID(orderID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	c.logger.Debug(ctx, "Attempting to cancel order", map[string]interface{}{"symbol": symbol, "orderID": orderID})

	res, err := c.futuresClient.NewCancelOrderService().
		Symbol(symbol).
		OrderID(id).
		Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "orderID": orderID, "status": res.Status})
	return nil
}

// CancelReplaceOrder cancels cancelOrderID and then places req. Binance
// futures has no atomic cancel-replace, so a failed placement leaves the
// old order cancelled.
func (c *Client) CancelReplaceOrder(ctx context.Context, req domain.OrderRequest, cancelOrderID string) (*ports.OrderResponse, error) {
	op := "CancelReplaceOrder"
	if err := c.CancelOrder(ctx, req.Symbol, cancelOrderID); err != nil && !errors.Is(err, ports.ErrOrderNotFound) {
		return nil, fmt.Errorf("%s: cancel %s: %w", op, cancelOrderID, err)
	}
	resp, err := c.PlaceOrder(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: place replacement for %s: %w", op, cancelOrderID, err)
	}
	return resp, nil
}

// --- Translation Helpers ---

func parseOrderID(orderID string) (int64, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("order id %q is not numeric: %w", orderID, ports.ErrInvalidRequest)
	}
	return id, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func translateOrderResponse(order *futures.CreateOrderResponse) *ports.OrderResponse {
	if order == nil {
		return nil
	}
	raw, _ := json.Marshal(order)
	return &ports.OrderResponse{
		OrderID:       strconv.FormatInt(order.OrderID, 10),
		Symbol:        order.Symbol,
		ClientOrderID: order.ClientOrderID,
		AvgPrice:      parseFloat(order.AvgPrice),
		OrigQuantity:  parseFloat(order.OrigQuantity),
		ExecutedQty:   parseFloat(order.ExecutedQuantity),
		Status:        string(order.Status),
		Type:          string(order.Type),
		Side:          string(order.Side),
		Raw:           string(raw),
		Timestamp:     time.UnixMilli(order.UpdateTime),
	}
}

func translateOrder(o *futures.Order) *domain.Order {
	return &domain.Order{
		ID:              strconv.FormatInt(o.OrderID, 10),
		ClientOrderID:   o.ClientOrderID,
		Symbol:          o.Symbol,
		Side:            domain.OrderSide(o.Side),
		PositionSide:    domain.PositionSide(o.PositionSide),
		Type:            domain.OrderType(o.Type),
		Price:           parseFloat(o.Price),
		StopPrice:       parseFloat(o.StopPrice),
		ActivationPrice: parseFloat(o.ActivatePrice),
		PriceRate:       parseFloat(o.PriceRate),
		Quantity:        parseFloat(o.OrigQuantity),
		ExecutedQty:     parseFloat(o.ExecutedQuantity),
		AvgPrice:        parseFloat(o.AvgPrice),
		Status:          domain.OrderStatus(o.Status),
		ReduceOnly:      o.ReduceOnly,
		CreateTime:      time.UnixMilli(o.Time),
		UpdateTime:      time.UnixMilli(o.UpdateTime),
	}
}

func translatePositionRisk(pos *futures.PositionRisk) *domain.Position {
	if pos == nil {
		return nil
	}
	amt := parseFloat(pos.PositionAmt)
	leverage, _ := strconv.Atoi(pos.Leverage) // Leverage is string in go-binance

	side := domain.Long
	switch domain.PositionSide(pos.PositionSide) {
	case domain.PositionSideShort:
		side = domain.Short
	case domain.PositionSideLong:
		side = domain.Long
	default:
		if amt < 0 {
			side = domain.Short
		}
	}

	return &domain.Position{
		Symbol:           pos.Symbol,
		Side:             side,
		PositionAmt:      amt,
		EntryPrice:       parseFloat(pos.EntryPrice),
		MarkPrice:        parseFloat(pos.MarkPrice),
		UnrealizedPnL:    parseFloat(pos.UnRealizedProfit),
		LiquidationPrice: parseFloat(pos.LiquidationPrice),
		Leverage:         leverage,
	}
}
