package sim

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ResultStore 管理 sim_runs/sim_rows/sim_transcripts 表。
type ResultStore struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

func NewResultStore(root string) (*ResultStore, error) {
	if root == "" {
		return nil, fmt.Errorf("result store root 不能为空")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(root, "runs.db")
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureResultSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &ResultStore{db: db, path: path}, nil
}

func (s *ResultStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureResultSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sim_runs (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			strategy TEXT NOT NULL,
			status TEXT NOT NULL,
			start_ts INTEGER NOT NULL,
			end_ts INTEGER NOT NULL,
			initial_cash REAL NOT NULL,
			final_value REAL NOT NULL DEFAULT 0,
			profit REAL NOT NULL DEFAULT 0,
			return_pct REAL NOT NULL DEFAULT 0,
			trades INTEGER NOT NULL DEFAULT 0,
			config_json TEXT NOT NULL,
			stats_json TEXT,
			message TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			completed_at INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS sim_rows (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			day INTEGER NOT NULL,
			ts INTEGER NOT NULL,
			date TEXT NOT NULL,
			action TEXT NOT NULL,
			quantity REAL NOT NULL,
			exec_price REAL NOT NULL,
			close_price REAL NOT NULL,
			cash REAL NOT NULL,
			shares REAL NOT NULL,
			portfolio_value REAL NOT NULL,
			daily_pnl REAL NOT NULL,
			reason TEXT,
			confidence INTEGER,
			forced INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY(run_id) REFERENCES sim_runs(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sim_rows_run ON sim_rows(run_id, day);`,
		`CREATE TABLE IF NOT EXISTS sim_transcripts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			provider TEXT,
			user_prompt TEXT,
			raw_output TEXT,
			error TEXT,
			FOREIGN KEY(run_id) REFERENCES sim_runs(id) ON DELETE CASCADE
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("建表失败: %w", err)
		}
	}
	return nil
}

func (s *ResultStore) InsertRun(ctx context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfgJSON, err := run.MarshalConfig()
	if err != nil {
		return err
	}
	statsJSON, err := run.MarshalStats()
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	_, err = s.db.ExecContext(ctx, `INSERT INTO sim_runs
		(id, symbol, strategy, status, start_ts, end_ts, initial_cash, final_value,
		 profit, return_pct, trades, config_json, stats_json, message, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		run.ID, run.Symbol, run.Strategy, run.Status, run.StartTS, run.EndTS,
		run.InitialCash, run.FinalValue, run.Profit, run.ReturnPct, run.Trades,
		string(cfgJSON), string(statsJSON), run.Message, now, now)
	return err
}

func (s *ResultStore) UpdateRunStatus(ctx context.Context, id, status, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`UPDATE sim_runs SET status = ?, message = ?, updated_at = ? WHERE id = ?`,
		status, message, time.Now().UnixMilli(), id)
	return err
}

func (s *ResultStore) UpdateRunSummary(ctx context.Context, id, status string, stats RunStats, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	_, err = s.db.ExecContext(ctx, `UPDATE sim_runs SET
		status = ?, final_value = ?, profit = ?, return_pct = ?, trades = ?,
		stats_json = ?, message = ?, updated_at = ?, completed_at = ?
		WHERE id = ?`,
		status, stats.FinalValue, stats.Profit, stats.ReturnPct, stats.Trades,
		string(statsJSON), message, now, now, id)
	return err
}

func (s *ResultStore) InsertRow(ctx context.Context, row LogRow) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	forced := 0
	if row.Forced {
		forced = 1
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO sim_rows
		(run_id, day, ts, date, action, quantity, exec_price, close_price,
		 cash, shares, portfolio_value, daily_pnl, reason, confidence, forced)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		row.RunID, row.Day, row.TS, row.Date, row.Action, row.Quantity,
		row.ExecPrice, row.ClosePrice, row.Cash, row.Shares,
		row.PortfolioValue, row.DailyPnL, row.Reason, row.Confidence, forced)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *ResultStore) InsertTranscript(ctx context.Context, tr TranscriptRow) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `INSERT INTO sim_transcripts
		(run_id, ts, provider, user_prompt, raw_output, error)
		VALUES (?,?,?,?,?,?)`,
		tr.RunID, tr.TS, tr.Provider, tr.UserPrompt, tr.RawOutput, tr.Error)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *ResultStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, symbol, strategy, status, start_ts, end_ts,
		initial_cash, final_value, profit, return_pct, trades, config_json, stats_json,
		message, created_at, updated_at, COALESCE(completed_at, 0)
		FROM sim_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s *ResultStore) GetRun(ctx context.Context, id string) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRowContext(ctx, `SELECT id, symbol, strategy, status, start_ts, end_ts,
		initial_cash, final_value, profit, return_pct, trades, config_json, stats_json,
		message, created_at, updated_at, COALESCE(completed_at, 0)
		FROM sim_runs WHERE id = ?`, id)
	return scanRun(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(sc rowScanner) (Run, error) {
	var run Run
	var cfgJSON, statsJSON string
	var message sql.NullString
	var createdAt, updatedAt, completedAt int64
	err := sc.Scan(&run.ID, &run.Symbol, &run.Strategy, &run.Status, &run.StartTS, &run.EndTS,
		&run.InitialCash, &run.FinalValue, &run.Profit, &run.ReturnPct, &run.Trades,
		&cfgJSON, &statsJSON, &message, &createdAt, &updatedAt, &completedAt)
	if err != nil {
		return Run{}, err
	}
	run.Message = message.String
	if cfgJSON != "" {
		_ = json.Unmarshal([]byte(cfgJSON), &run.Config)
	}
	if statsJSON != "" {
		_ = json.Unmarshal([]byte(statsJSON), &run.Stats)
	}
	run.CreatedAt = time.UnixMilli(createdAt)
	run.UpdatedAt = time.UnixMilli(updatedAt)
	if completedAt > 0 {
		run.CompletedAt = time.UnixMilli(completedAt)
	}
	return run, nil
}

func (s *ResultStore) ListRows(ctx context.Context, runID string, limit int) ([]LogRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > 10000 {
		limit = 2000
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, run_id, day, ts, date, action, quantity,
		exec_price, close_price, cash, shares, portfolio_value, daily_pnl,
		COALESCE(reason, ''), COALESCE(confidence, 0), forced
		FROM sim_rows WHERE run_id = ? ORDER BY day ASC LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LogRow
	for rows.Next() {
		var r LogRow
		var forced int
		if err := rows.Scan(&r.ID, &r.RunID, &r.Day, &r.TS, &r.Date, &r.Action, &r.Quantity,
			&r.ExecPrice, &r.ClosePrice, &r.Cash, &r.Shares, &r.PortfolioValue, &r.DailyPnL,
			&r.Reason, &r.Confidence, &forced); err != nil {
			return nil, err
		}
		r.Forced = forced != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *ResultStore) ListTranscripts(ctx context.Context, runID string, limit int) ([]TranscriptRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, run_id, ts, COALESCE(provider, ''),
		COALESCE(user_prompt, ''), COALESCE(raw_output, ''), COALESCE(error, '')
		FROM sim_transcripts WHERE run_id = ? ORDER BY ts ASC LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TranscriptRow
	for rows.Next() {
		var t TranscriptRow
		if err := rows.Scan(&t.ID, &t.RunID, &t.TS, &t.Provider, &t.UserPrompt, &t.RawOutput, &t.Error); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
