package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"futuresMegaBot/internal/domain"
	"futuresMegaBot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the ports.TradeStore interface using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/futures_bot.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Data directory checked/created", map[string]interface{}{"path": filepath.Dir(dbPath)})

	// Open database connection
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close() // Close the connection if ping fails
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Set connection pool settings (important for SQLite)
	db.SetMaxOpenConns(1) // SQLite handles concurrency internally, but Go driver benefits from limiting connections
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour) // Optional: recycle connections periodically

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}

	// Initialize schema (consider moving to a separate migration tool/step)
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		entry_price REAL NOT NULL,
		stop_price REAL NOT NULL,
		tp1 REAL NOT NULL DEFAULT 0,
		tp2 REAL NOT NULL DEFAULT 0,
		tp3 REAL NOT NULL DEFAULT 0,
		tp4 REAL NOT NULL DEFAULT 0,
		tp5 REAL NOT NULL DEFAULT 0,
		tp6 REAL NOT NULL DEFAULT 0,
		volume_required INTEGER NOT NULL DEFAULT 0,
		volume_adds_margin INTEGER NOT NULL DEFAULT 0,
		description TEXT NOT NULL DEFAULT '',
		quantity REAL NOT NULL,
		leverage INTEGER NOT NULL,
		status TEXT NOT NULL,
		entry_order_id TEXT NULL,
		stop_order_id TEXT NULL,
		tp1_order_id TEXT NULL,
		tp2_order_id TEXT NULL,
		tp3_order_id TEXT NULL,
		tp4_order_id TEXT NULL,
		tp5_order_id TEXT NULL,
		tp6_order_id TEXT NULL,
		trailing_order_id TEXT NULL,
		position_id TEXT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS order_executions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trade_id INTEGER NOT NULL,
		order_id TEXT NOT NULL UNIQUE,
		role TEXT NOT NULL,
		order_type TEXT NOT NULL,
		status TEXT NOT NULL,
		executed_qty REAL NOT NULL,
		avg_price REAL NOT NULL,
		pnl REAL NOT NULL,
		fee REAL NOT NULL,
		create_time TIMESTAMP NULL,
		update_time TIMESTAMP NULL
	);

	CREATE TABLE IF NOT EXISTS order_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trade_id INTEGER NOT NULL,
		role TEXT NOT NULL,
		request TEXT NOT NULL,
		response TEXT NOT NULL,
		error TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	-- Add indexes for common lookups
	CREATE INDEX IF NOT EXISTS idx_trades_status ON trades (status);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol_side ON trades (symbol, side);
	CREATE INDEX IF NOT EXISTS idx_order_executions_trade ON order_executions (trade_id);
	CREATE INDEX IF NOT EXISTS idx_order_logs_trade ON order_logs (trade_id);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

const tradeColumns = `id, symbol, side, entry_price, stop_price, tp1, tp2, tp3, tp4, tp5, tp6,
	volume_required, volume_adds_margin, description, quantity, leverage, status,
	entry_order_id, stop_order_id, tp1_order_id, tp2_order_id, tp3_order_id, tp4_order_id,
	tp5_order_id, tp6_order_id, trailing_order_id, position_id, created_at, updated_at`

// --- Trades ---

// CreateTrade saves a new trade record and returns its assigned ID.
func (r *Repository) CreateTrade(ctx context.Context, rec *domain.TradeRecord) (int64, error) {
	const query = `
	INSERT INTO trades (symbol, side, entry_price, stop_price, tp1, tp2, tp3, tp4, tp5, tp6,
		volume_required, volume_adds_margin, description, quantity, leverage, status,
		entry_order_id, stop_order_id, tp1_order_id, tp2_order_id, tp3_order_id, tp4_order_id,
		tp5_order_id, tp6_order_id, trailing_order_id, position_id, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = domain.TradeStatusPendingEntry
	}

	tp := rec.TakeProfits
	ids := rec.TakeProfitOrderIDs
	result, err := r.db.ExecContext(ctx, query,
		rec.Symbol, string(rec.Side), rec.EntryPrice, rec.StopPrice, tp[0], tp[1], tp[2], tp[3], tp[4], tp[5],
		rec.VolumeRequired, rec.VolumeAddsMargin, rec.Description, rec.Quantity, rec.Leverage, string(rec.Status),
		nullString(rec.EntryOrderID), nullString(rec.StopOrderID),
		nullString(ids[0]), nullString(ids[1]), nullString(ids[2]), nullString(ids[3]), nullString(ids[4]), nullString(ids[5]),
		nullString(rec.TrailingOrderID), nullString(rec.PositionID), rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert trade for symbol %s: %w", rec.Symbol, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for trade %s: %w", rec.Symbol, err)
	}
	rec.ID = id // Update the domain object with the ID
	r.logger.Debug(ctx, "Trade created", map[string]interface{}{"tradeID": id, "symbol": rec.Symbol, "side": rec.Side})
	return id, nil
}

// GetTrade retrieves a trade by its unique ID.
func (r *Repository) GetTrade(ctx context.Context, id int64) (*domain.TradeRecord, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE id = ?`

	rec, err := scanTrade(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("trade ID %d: %w", id, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query trade by ID %d: %w", id, err)
	}
	return rec, nil
}

// AllTrades retrieves every trade ordered by ID.
func (r *Repository) AllTrades(ctx context.Context) ([]*domain.TradeRecord, error) {
	return r.queryTrades(ctx, `SELECT `+tradeColumns+` FROM trades ORDER BY id ASC`)
}

// OpenTrades retrieves trades that are not closed.
func (r *Repository) OpenTrades(ctx context.Context) ([]*domain.TradeRecord, error) {
	return r.queryTrades(ctx, `SELECT `+tradeColumns+` FROM trades WHERE status != ? ORDER BY id ASC`,
		string(domain.TradeStatusClosed))
}

func (r *Repository) queryTrades(ctx context.Context, query string, args ...interface{}) ([]*domain.TradeRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	trades := make([]*domain.TradeRecord, 0)
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

// UpdateStatus sets the lifecycle status of a trade.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status domain.TradeStatus) error {
	return r.updateTrade(ctx, id, "status = ?", string(status))
}

// UpdateLeverage records a leverage correction.
func (r *Repository) UpdateLeverage(ctx context.Context, id int64, leverage int) error {
	return r.updateTrade(ctx, id, "leverage = ?", leverage)
}

// UpdateQuantity records the quantity confirmed by the exchange.
func (r *Repository) UpdateQuantity(ctx context.Context, id int64, quantity float64) error {
	return r.updateTrade(ctx, id, "quantity = ?", quantity)
}

// UpdatePositionID binds the trade to an exchange position instance.
func (r *Repository) UpdatePositionID(ctx context.Context, id int64, positionID string) error {
	return r.updateTrade(ctx, id, "position_id = ?", positionID)
}

// UpdateOrderIDs persists all order id columns of rec.
func (r *Repository) UpdateOrderIDs(ctx context.Context, rec *domain.TradeRecord) error {
	ids := rec.TakeProfitOrderIDs
	return r.updateTrade(ctx, rec.ID,
		`entry_order_id = ?, stop_order_id = ?, tp1_order_id = ?, tp2_order_id = ?, tp3_order_id = ?,
		tp4_order_id = ?, tp5_order_id = ?, tp6_order_id = ?, trailing_order_id = ?`,
		nullString(rec.EntryOrderID), nullString(rec.StopOrderID),
		nullString(ids[0]), nullString(ids[1]), nullString(ids[2]), nullString(ids[3]), nullString(ids[4]), nullString(ids[5]),
		nullString(rec.TrailingOrderID))
}

func (r *Repository) updateTrade(ctx context.Context, id int64, set string, args ...interface{}) error {
	query := `UPDATE trades SET ` + set + `, updated_at = ? WHERE id = ?`
	args = append(args, time.Now().UTC(), id)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update trade ID %d (%s): %w", id, strings.TrimSpace(set), err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for trade ID %d: %w", id, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("trade ID %d not found for update: %w", id, ports.ErrNotFound)
	}
	r.logger.Debug(ctx, "Trade updated", map[string]interface{}{"tradeID": id})
	return nil
}

// --- Executions & order log ---

// AppendExecution stores the terminal state of one order.
func (r *Repository) AppendExecution(ctx context.Context, exec *domain.OrderExecution) error {
	const query = `
	INSERT INTO order_executions (trade_id, order_id, role, order_type, status, executed_qty,
		avg_price, pnl, fee, create_time, update_time)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		exec.TradeID, exec.OrderID, string(exec.Role), string(exec.Type), string(exec.Status),
		exec.ExecutedQty, exec.AvgPrice, exec.PNL, exec.Fee,
		nullTime(exec.CreateTime), nullTime(exec.UpdateTime))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("execution for order %s: %w", exec.OrderID, ports.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to insert execution for order %s: %w", exec.OrderID, err)
	}
	if exec.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("failed to get last insert ID for execution %s: %w", exec.OrderID, err)
	}
	r.logger.Debug(ctx, "Order execution stored", map[string]interface{}{
		"tradeID": exec.TradeID, "orderID": exec.OrderID, "role": exec.Role, "pnl": exec.PNL,
	})
	return nil
}

// HasExecution reports whether an execution was already stored for orderID.
func (r *Repository) HasExecution(ctx context.Context, orderID string) (bool, error) {
	const query = `SELECT COUNT(*) FROM order_executions WHERE order_id = ?`
	var count int
	if err := r.db.QueryRowContext(ctx, query, orderID).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check execution for order %s: %w", orderID, err)
	}
	return count > 0, nil
}

// ExecutionsByTrade returns the stored executions of a trade.
func (r *Repository) ExecutionsByTrade(ctx context.Context, tradeID int64) ([]*domain.OrderExecution, error) {
	const query = `
	SELECT id, trade_id, order_id, role, order_type, status, executed_qty, avg_price, pnl, fee,
	       create_time, update_time
	FROM order_executions WHERE trade_id = ? ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, tradeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions for trade %d: %w", tradeID, err)
	}
	defer rows.Close()

	execs := make([]*domain.OrderExecution, 0)
	for rows.Next() {
		e := &domain.OrderExecution{}
		var role, typ, status string
		var created, updated sql.NullTime
		if err := rows.Scan(&e.ID, &e.TradeID, &e.OrderID, &role, &typ, &status,
			&e.ExecutedQty, &e.AvgPrice, &e.PNL, &e.Fee, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		e.Role = domain.OrderRole(role)
		e.Type = domain.OrderType(typ)
		e.Status = domain.OrderStatus(status)
		if created.Valid {
			e.CreateTime = created.Time
		}
		if updated.Valid {
			e.UpdateTime = updated.Time
		}
		execs = append(execs, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating execution rows: %w", err)
	}
	return execs, nil
}

// AppendOrderLog stores a raw order response line.
func (r *Repository) AppendOrderLog(ctx context.Context, entry *domain.OrderLogEntry) error {
	const query = `
	INSERT INTO order_logs (trade_id, role, request, response, error, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, query,
		entry.TradeID, string(entry.Role), entry.Request, entry.Response, entry.Error, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order log for trade %d: %w", entry.TradeID, err)
	}
	return nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanTrade scans a row into a domain.TradeRecord struct.
func scanTrade(s scanner) (*domain.TradeRecord, error) {
	rec := &domain.TradeRecord{}
	var side, status string
	var entryID, stopID, trailingID, positionID sql.NullString
	var tpIDs [domain.MaxTakeProfits]sql.NullString
	tp := &rec.TakeProfits
	err := s.Scan(
		&rec.ID, &rec.Symbol, &side, &rec.EntryPrice, &rec.StopPrice,
		&tp[0], &tp[1], &tp[2], &tp[3], &tp[4], &tp[5],
		&rec.VolumeRequired, &rec.VolumeAddsMargin, &rec.Description, &rec.Quantity, &rec.Leverage, &status,
		&entryID, &stopID, &tpIDs[0], &tpIDs[1], &tpIDs[2], &tpIDs[3], &tpIDs[4], &tpIDs[5],
		&trailingID, &positionID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	rec.Side = domain.Side(side)
	rec.Status = domain.TradeStatus(status)
	rec.EntryOrderID = stringPtr(entryID)
	rec.StopOrderID = stringPtr(stopID)
	for i := range tpIDs {
		rec.TakeProfitOrderIDs[i] = stringPtr(tpIDs[i])
	}
	rec.TrailingOrderID = stringPtr(trailingID)
	rec.PositionID = stringPtr(positionID)
	return rec, nil
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return domain.StringPtr(ns.String)
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
