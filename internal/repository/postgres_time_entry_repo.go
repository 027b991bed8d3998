package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/worklog/internal/model"
)

// PostgresTimeEntryRepo はPostgreSQLを使用したタイムエントリリポジトリ。
type PostgresTimeEntryRepo struct {
	db *sql.DB
}

// NewPostgresTimeEntryRepo はPostgresTimeEntryRepoを生成する。
func NewPostgresTimeEntryRepo(db *sql.DB) *PostgresTimeEntryRepo {
	return &PostgresTimeEntryRepo{db: db}
}

// entryColumns はtime_entriesテーブルのSELECT対象カラム。
const entryColumns = `id, user_id, date, start_time, end_time, duration_minutes, purpose, description, created_at, updated_at`

// FindByID は指定IDのエントリを取得する。見つからない場合はnilを返す。
func (r *PostgresTimeEntryRepo) FindByID(ctx context.Context, id string) (*model.TimeEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM time_entries WHERE id = $1`, id)

	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("タイムエントリの取得に失敗しました: %w", err)
	}
	return entry, nil
}

// Create はエントリを作成する。
func (r *PostgresTimeEntryRepo) Create(ctx context.Context, entry *model.TimeEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO time_entries (id, user_id, date, start_time, end_time, duration_minutes, purpose, description, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID, entry.UserID, entry.Date, entry.StartTime, entry.EndTime,
		entry.DurationMinutes, entry.Purpose, entry.Description,
		entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("タイムエントリの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はエントリを上書き更新する。
func (r *PostgresTimeEntryRepo) Update(ctx context.Context, entry *model.TimeEntry) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE time_entries
		 SET date = $2, start_time = $3, end_time = $4, duration_minutes = $5,
		     purpose = $6, description = $7, updated_at = $8
		 WHERE id = $1`,
		entry.ID, entry.Date, entry.StartTime, entry.EndTime,
		entry.DurationMinutes, entry.Purpose, entry.Description, entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("タイムエントリの更新に失敗しました: %w", err)
	}
	return nil
}

// Delete は指定IDのエントリを削除する。
func (r *PostgresTimeEntryRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM time_entries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("タイムエントリの削除に失敗しました: %w", err)
	}
	return nil
}

// List は条件に一致するエントリを日付・開始時刻の降順で返す。
func (r *PostgresTimeEntryRepo) List(ctx context.Context, filter EntryFilter) ([]*model.TimeEntry, error) {
	where, args := buildEntryWhere(filter)

	query := `SELECT ` + entryColumns + ` FROM time_entries` + where +
		` ORDER BY date DESC, start_time DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("タイムエントリ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// SumDuration は条件に一致するエントリの作業時間合計（分）を返す。
func (r *PostgresTimeEntryRepo) SumDuration(ctx context.Context, filter EntryFilter) (int, error) {
	where, args := buildEntryWhere(filter)

	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(duration_minutes), 0) FROM time_entries`+where,
		args...,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("作業時間合計の取得に失敗しました: %w", err)
	}
	return total, nil
}

// SumPerDay は[from, to]の範囲の日別作業時間合計を返す。
func (r *PostgresTimeEntryRepo) SumPerDay(ctx context.Context, userID string, from, to time.Time) (map[string]int, error) {
	args := []any{from, to}
	query := `SELECT date, COALESCE(SUM(duration_minutes), 0)
	          FROM time_entries WHERE date >= $1 AND date <= $2`
	if userID != "" {
		args = append(args, userID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	query += ` GROUP BY date`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("日別作業時間の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	daily := make(map[string]int)
	for rows.Next() {
		var date time.Time
		var minutes int
		if err := rows.Scan(&date, &minutes); err != nil {
			return nil, fmt.Errorf("日別作業時間行の読み取りに失敗しました: %w", err)
		}
		daily[date.Format("2006-01-02")] = minutes
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("日別作業時間の読み取りに失敗しました: %w", err)
	}

	return daily, nil
}

// SumPerUser は条件に一致するエントリのユーザー別作業時間合計を返す。
func (r *PostgresTimeEntryRepo) SumPerUser(ctx context.Context, filter EntryFilter) (map[string]int, error) {
	where, args := buildEntryWhere(filter)

	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, COALESCE(SUM(duration_minutes), 0) FROM time_entries`+where+` GROUP BY user_id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("ユーザー別作業時間の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]int)
	for rows.Next() {
		var userID string
		var minutes int
		if err := rows.Scan(&userID, &minutes); err != nil {
			return nil, fmt.Errorf("ユーザー別作業時間行の読み取りに失敗しました: %w", err)
		}
		totals[userID] = minutes
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ユーザー別作業時間の読み取りに失敗しました: %w", err)
	}

	return totals, nil
}

// ListRecent は直近のエントリを日付・開始時刻の降順で最大limit件返す。
func (r *PostgresTimeEntryRepo) ListRecent(ctx context.Context, userID string, limit int) ([]*model.TimeEntry, error) {
	return r.List(ctx, EntryFilter{UserID: userID, Limit: limit})
}

// HasOverlap は同一ユーザー・同一日付で指定時間帯と重複するエントリの有無を返す。
// 時刻はHH:MM形式の固定長文字列のため、辞書順比較がそのまま時刻比較になる。
func (r *PostgresTimeEntryRepo) HasOverlap(ctx context.Context, userID string, date time.Time, startTime, endTime, excludeID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
		    SELECT 1 FROM time_entries
		    WHERE user_id = $1 AND date = $2 AND id <> $3
		      AND (
		          (start_time BETWEEN $4 AND $5)
		          OR (end_time BETWEEN $4 AND $5)
		          OR (start_time <= $4 AND end_time >= $5)
		      )
		 )`,
		userID, date, excludeID, startTime, endTime,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("重複エントリの判定に失敗しました: %w", err)
	}
	return exists, nil
}

// CountActiveUsersOn は指定日にエントリを持つユーザー数を返す。
func (r *PostgresTimeEntryRepo) CountActiveUsersOn(ctx context.Context, date time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT user_id) FROM time_entries WHERE date = $1`,
		date,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("当日アクティブユーザー数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// buildEntryWhere はEntryFilterからWHERE句とバインド引数を構築する。
func buildEntryWhere(filter EntryFilter) (string, []any) {
	var conds []string
	var args []any

	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}

	if filter.Year != 0 {
		// 年月指定は当該月の日付範囲に変換する
		monthStart := time.Date(filter.Year, filter.Month, 1, 0, 0, 0, 0, time.UTC)
		monthEnd := monthStart.AddDate(0, 1, -1)
		args = append(args, monthStart)
		conds = append(conds, fmt.Sprintf("date >= $%d", len(args)))
		args = append(args, monthEnd)
		conds = append(conds, fmt.Sprintf("date <= $%d", len(args)))
	} else {
		if filter.DateFrom != nil {
			args = append(args, *filter.DateFrom)
			conds = append(conds, fmt.Sprintf("date >= $%d", len(args)))
		}
		if filter.DateTo != nil {
			args = append(args, *filter.DateTo)
			conds = append(conds, fmt.Sprintf("date <= $%d", len(args)))
		}
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// rowScanner はsql.Rowとsql.Rowsの共通Scanインターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanEntry は1行をTimeEntryに読み取る。
func scanEntry(row rowScanner) (*model.TimeEntry, error) {
	entry := &model.TimeEntry{}
	err := row.Scan(
		&entry.ID, &entry.UserID, &entry.Date,
		&entry.StartTime, &entry.EndTime, &entry.DurationMinutes,
		&entry.Purpose, &entry.Description,
		&entry.CreatedAt, &entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// scanEntries は全行をTimeEntryのスライスに読み取る。
func scanEntries(rows *sql.Rows) ([]*model.TimeEntry, error) {
	var entries []*model.TimeEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("タイムエントリ行の読み取りに失敗しました: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("タイムエントリ一覧の読み取りに失敗しました: %w", err)
	}
	return entries, nil
}
