package sqlite

import (
	"context"
	"database/sql"
	"strings"

	gateway "github.com/keyhub-gw/keyhub/internal"
	"github.com/keyhub-gw/keyhub/internal/storage"
)

const logCols = `id, timestamp, token_id, channel_id, key_id, model, path, method,
	status, latency, input_tokens, output_tokens, error, streaming`

// InsertLogs appends logs and garbage-collects rows older than the configured
// retention in the same transaction, so retention never lags an append.
func (s *Store) InsertLogs(ctx context.Context, logs []gateway.RequestLog) error {
	if len(logs) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO request_logs (`+logCols+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i := range logs {
			l := &logs[i]
			if _, err := stmt.ExecContext(ctx,
				l.ID, l.Timestamp, nullStr(l.TokenID), l.ChannelID, l.KeyID,
				l.Model, l.Path, l.Method, l.Status, l.Latency,
				nullI64(int64(l.InputTokens)), nullI64(int64(l.OutputTokens)),
				nullStr(l.Error), boolToInt(l.Streaming),
			); err != nil {
				return err
			}
		}

		var retention int64
		if err := tx.QueryRowContext(ctx,
			`SELECT max_logs_retention FROM settings WHERE id=1`).Scan(&retention); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`DELETE FROM request_logs WHERE timestamp < ?`, gateway.Now()-retention)
		return err
	})
}

// QueryLogs returns matching logs sorted by timestamp descending plus the
// filtered total before pagination. Filters compose as AND.
func (s *Store) QueryLogs(ctx context.Context, f storage.LogFilter) ([]*gateway.RequestLog, int, error) {
	var conds []string
	var args []any
	if f.ChannelID != "" {
		conds = append(conds, "channel_id = ?")
		args = append(args, f.ChannelID)
	}
	if f.Status != 0 {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if f.StartTime != 0 {
		conds = append(conds, "timestamp >= ?")
		args = append(args, f.StartTime)
	}
	if f.EndTime != 0 {
		conds = append(conds, "timestamp <= ?")
		args = append(args, f.EndTime)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.read.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM request_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	rows, err := s.read.QueryContext(ctx,
		`SELECT `+logCols+` FROM request_logs`+where+
			` ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	logs, err := collectLogs(rows)
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// LogsSince returns logs with timestamp >= ts, newest first.
func (s *Store) LogsSince(ctx context.Context, ts int64) ([]*gateway.RequestLog, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT `+logCols+` FROM request_logs WHERE timestamp >= ?
		 ORDER BY timestamp DESC, id DESC`, ts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLogs(rows)
}

func collectLogs(rows *sql.Rows) ([]*gateway.RequestLog, error) {
	var logs []*gateway.RequestLog
	for rows.Next() {
		var l gateway.RequestLog
		var tokenID, errMsg sql.NullString
		var inTok, outTok sql.NullInt64
		var streaming int
		if err := rows.Scan(&l.ID, &l.Timestamp, &tokenID, &l.ChannelID, &l.KeyID,
			&l.Model, &l.Path, &l.Method, &l.Status, &l.Latency,
			&inTok, &outTok, &errMsg, &streaming); err != nil {
			return nil, err
		}
		l.TokenID = tokenID.String
		l.InputTokens = int(inTok.Int64)
		l.OutputTokens = int(outTok.Int64)
		l.Error = errMsg.String
		l.Streaming = streaming != 0
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}
