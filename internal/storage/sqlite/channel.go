package sqlite

import (
	"context"
	"database/sql"

	gateway "github.com/keyhub-gw/keyhub/internal"
)

const channelCols = `id, name, type, base_url, test_method, test_model, proxy_id,
	load_balance_strategy, enabled, created_at, updated_at`

// CreateChannel inserts a new channel.
func (s *Store) CreateChannel(ctx context.Context, c *gateway.Channel) error {
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO channels (`+channelCols+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Type, c.BaseURL, c.TestMethod, nullStr(c.TestModel),
		nullStr(c.ProxyID), c.LoadBalanceStrategy, boolToInt(c.Enabled),
		c.CreatedAt, c.UpdatedAt,
	)
	return err
}

// GetChannel retrieves a channel by id, or (nil, nil) when absent.
func (s *Store) GetChannel(ctx context.Context, id string) (*gateway.Channel, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT `+channelCols+` FROM channels WHERE id = ?`, id)
	c, err := scanChannel(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// ListChannels returns all channels in insertion order.
func (s *Store) ListChannels(ctx context.Context) ([]*gateway.Channel, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT `+channelCols+` FROM channels ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []*gateway.Channel
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, c)
	}
	return channels, rows.Err()
}

// UpdateChannel writes all mutable fields and the updatedAt stamp.
// Updating a missing id is a no-op.
func (s *Store) UpdateChannel(ctx context.Context, c *gateway.Channel) error {
	_, err := s.write.ExecContext(ctx,
		`UPDATE channels SET name=?, type=?, base_url=?, test_method=?, test_model=?,
		 proxy_id=?, load_balance_strategy=?, enabled=?, updated_at=? WHERE id=?`,
		c.Name, c.Type, c.BaseURL, c.TestMethod, nullStr(c.TestModel),
		nullStr(c.ProxyID), c.LoadBalanceStrategy, boolToInt(c.Enabled),
		c.UpdatedAt, c.ID,
	)
	return err
}

// DeleteChannel removes the channel and all of its keys in one transaction.
// The api_keys FK cascades, but the delete is issued explicitly so the
// invariant does not depend on the foreign_keys pragma.
func (s *Store) DeleteChannel(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM api_keys WHERE channel_id=?`, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM channels WHERE id=?`, id)
		return err
	})
}

func scanChannel(sc scanner) (*gateway.Channel, error) {
	var c gateway.Channel
	var testModel, proxyID sql.NullString
	var enabled int

	err := sc.Scan(&c.ID, &c.Name, &c.Type, &c.BaseURL, &c.TestMethod,
		&testModel, &proxyID, &c.LoadBalanceStrategy, &enabled,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.TestModel = testModel.String
	c.ProxyID = proxyID.String
	c.Enabled = enabled != 0
	return &c, nil
}
