package sqlite

import (
	"context"
	"database/sql"

	gateway "github.com/keyhub-gw/keyhub/internal"
)

const keyCols = `id, channel_id, key, alias, status, priority, weight, balance,
	last_checked, last_used, error_count, total_requests, created_at, updated_at`

// CreateKey inserts a new upstream credential.
func (s *Store) CreateKey(ctx context.Context, k *gateway.APIKey) error {
	_, err := s.write.ExecContext(ctx, insertKeySQL, keyArgs(k)...)
	return err
}

// CreateKeys appends all keys in one transaction (bulk import).
func (s *Store) CreateKeys(ctx context.Context, keys []*gateway.APIKey) error {
	if len(keys) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, insertKeySQL)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, k := range keys {
			if _, err := stmt.ExecContext(ctx, keyArgs(k)...); err != nil {
				return err
			}
		}
		return nil
	})
}

const insertKeySQL = `INSERT INTO api_keys (` + keyCols + `)
	 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func keyArgs(k *gateway.APIKey) []any {
	return []any{
		k.ID, k.ChannelID, k.Key, nullStr(k.Alias), string(k.Status),
		k.Priority, k.Weight, nullFloat(k.Balance),
		nullI64(k.LastChecked), nullI64(k.LastUsed),
		k.ErrorCount, k.TotalRequests, k.CreatedAt, k.UpdatedAt,
	}
}

// GetKey retrieves a key by id, or (nil, nil) when absent.
func (s *Store) GetKey(ctx context.Context, id string) (*gateway.APIKey, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT `+keyCols+` FROM api_keys WHERE id = ?`, id)
	k, err := scanKey(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return k, err
}

// ListKeys returns all keys, or only the given channel's when channelID is
// non-empty, in insertion order.
func (s *Store) ListKeys(ctx context.Context, channelID string) ([]*gateway.APIKey, error) {
	q := `SELECT ` + keyCols + ` FROM api_keys ORDER BY created_at, id`
	args := []any{}
	if channelID != "" {
		q = `SELECT ` + keyCols + ` FROM api_keys WHERE channel_id = ? ORDER BY created_at, id`
		args = append(args, channelID)
	}
	return s.queryKeys(ctx, q, args...)
}

// ActiveKeysFor returns the channel's keys with status "active", in
// insertion order. Selection strategies rely on that order being stable.
func (s *Store) ActiveKeysFor(ctx context.Context, channelID string) ([]*gateway.APIKey, error) {
	return s.queryKeys(ctx,
		`SELECT `+keyCols+` FROM api_keys WHERE channel_id = ? AND status = ?
		 ORDER BY created_at, id`,
		channelID, string(gateway.KeyActive))
}

func (s *Store) queryKeys(ctx context.Context, q string, args ...any) ([]*gateway.APIKey, error) {
	rows, err := s.read.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []*gateway.APIKey
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// UpdateKey writes all mutable fields and the updatedAt stamp.
func (s *Store) UpdateKey(ctx context.Context, k *gateway.APIKey) error {
	_, err := s.write.ExecContext(ctx,
		`UPDATE api_keys SET key=?, alias=?, status=?, priority=?, weight=?,
		 balance=?, updated_at=? WHERE id=?`,
		k.Key, nullStr(k.Alias), string(k.Status), k.Priority, k.Weight,
		nullFloat(k.Balance), k.UpdatedAt, k.ID,
	)
	return err
}

// DeleteKey removes a key. Deleting a missing id is a no-op.
func (s *Store) DeleteKey(ctx context.Context, id string) error {
	_, err := s.write.ExecContext(ctx, `DELETE FROM api_keys WHERE id=?`, id)
	return err
}

// MarkKeyUsed applies relay bookkeeping in one statement so concurrent
// relays never lose a counter update.
func (s *Store) MarkKeyUsed(ctx context.Context, id string, success bool) error {
	var errExpr string
	if success {
		errExpr = "0"
	} else {
		errExpr = "error_count + 1"
	}
	_, err := s.write.ExecContext(ctx,
		`UPDATE api_keys SET last_used=?, total_requests=total_requests+1,
		 error_count=`+errExpr+` WHERE id=?`,
		gateway.Now(), id,
	)
	return err
}

// BumpKeyError increments errorCount only, for transport failures where the
// request never reached the upstream.
func (s *Store) BumpKeyError(ctx context.Context, id string) error {
	_, err := s.write.ExecContext(ctx,
		`UPDATE api_keys SET error_count=error_count+1 WHERE id=?`, id)
	return err
}

// ApplyCheckResult records a probe outcome. Only the checker rewrites
// status; relay errors merely bump counters.
func (s *Store) ApplyCheckResult(ctx context.Context, id string, status gateway.KeyStatus, balance *float64) error {
	var errExpr string
	if status == gateway.KeyActive {
		errExpr = "0"
	} else {
		errExpr = "error_count + 1"
	}
	if balance != nil {
		_, err := s.write.ExecContext(ctx,
			`UPDATE api_keys SET status=?, balance=?, last_checked=?,
			 error_count=`+errExpr+` WHERE id=?`,
			string(status), *balance, gateway.Now(), id)
		return err
	}
	_, err := s.write.ExecContext(ctx,
		`UPDATE api_keys SET status=?, last_checked=?,
		 error_count=`+errExpr+` WHERE id=?`,
		string(status), gateway.Now(), id)
	return err
}

func scanKey(sc scanner) (*gateway.APIKey, error) {
	var k gateway.APIKey
	var alias sql.NullString
	var status string
	var balance sql.NullFloat64
	var lastChecked, lastUsed sql.NullInt64

	err := sc.Scan(&k.ID, &k.ChannelID, &k.Key, &alias, &status,
		&k.Priority, &k.Weight, &balance, &lastChecked, &lastUsed,
		&k.ErrorCount, &k.TotalRequests, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		return nil, err
	}
	k.Alias = alias.String
	k.Status = gateway.KeyStatus(status)
	k.Balance = floatPtr(balance)
	k.LastChecked = lastChecked.Int64
	k.LastUsed = lastUsed.Int64
	return &k, nil
}
