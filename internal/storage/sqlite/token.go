package sqlite

import (
	"context"
	"database/sql"

	gateway "github.com/keyhub-gw/keyhub/internal"
)

const tokenCols = `id, name, token, allowed_channels, rate_limit, enabled, created_at, last_used`

// CreateToken inserts a new bearer token.
func (s *Store) CreateToken(ctx context.Context, t *gateway.Token) error {
	channels, err := marshalStrings(t.AllowedChannels)
	if err != nil {
		return err
	}
	_, err = s.write.ExecContext(ctx,
		`INSERT INTO tokens (`+tokenCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Token, channels, nullI64(int64(t.RateLimit)),
		boolToInt(t.Enabled), t.CreatedAt, nullI64(t.LastUsed),
	)
	return err
}

// GetToken retrieves a token by id, or (nil, nil) when absent.
func (s *Store) GetToken(ctx context.Context, id string) (*gateway.Token, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT `+tokenCols+` FROM tokens WHERE id = ?`, id)
	t, err := scanToken(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// GetTokenByValue retrieves a token by its secret value, or (nil, nil).
// The auth path calls this on every uncached request.
func (s *Store) GetTokenByValue(ctx context.Context, value string) (*gateway.Token, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT `+tokenCols+` FROM tokens WHERE token = ?`, value)
	t, err := scanToken(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// ListTokens returns all tokens in insertion order.
func (s *Store) ListTokens(ctx context.Context) ([]*gateway.Token, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT `+tokenCols+` FROM tokens ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []*gateway.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// UpdateToken writes all mutable fields. The token value itself is immutable.
func (s *Store) UpdateToken(ctx context.Context, t *gateway.Token) error {
	channels, err := marshalStrings(t.AllowedChannels)
	if err != nil {
		return err
	}
	_, err = s.write.ExecContext(ctx,
		`UPDATE tokens SET name=?, allowed_channels=?, rate_limit=?, enabled=? WHERE id=?`,
		t.Name, channels, nullI64(int64(t.RateLimit)), boolToInt(t.Enabled), t.ID,
	)
	return err
}

// DeleteToken removes a token. Deleting a missing id is a no-op.
func (s *Store) DeleteToken(ctx context.Context, id string) error {
	_, err := s.write.ExecContext(ctx, `DELETE FROM tokens WHERE id=?`, id)
	return err
}

// TouchTokenUsed updates the lastUsed timestamp.
func (s *Store) TouchTokenUsed(ctx context.Context, id string) error {
	_, err := s.write.ExecContext(ctx,
		`UPDATE tokens SET last_used=? WHERE id=?`, gateway.Now(), id)
	return err
}

func scanToken(sc scanner) (*gateway.Token, error) {
	var t gateway.Token
	var channels sql.NullString
	var rateLimit, lastUsed sql.NullInt64
	var enabled int

	err := sc.Scan(&t.ID, &t.Name, &t.Token, &channels, &rateLimit,
		&enabled, &t.CreatedAt, &lastUsed)
	if err != nil {
		return nil, err
	}
	allowed, err := unmarshalStrings(channels)
	if err != nil {
		return nil, err
	}
	t.AllowedChannels = allowed
	t.RateLimit = int(rateLimit.Int64)
	t.Enabled = enabled != 0
	t.LastUsed = lastUsed.Int64
	return &t, nil
}
