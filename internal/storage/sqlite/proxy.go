package sqlite

import (
	"context"
	"database/sql"

	gateway "github.com/keyhub-gw/keyhub/internal"
)

const proxyCols = `id, name, type, host, port, username, password, enabled, created_at, updated_at`

// CreateProxy inserts a new proxy.
func (s *Store) CreateProxy(ctx context.Context, p *gateway.Proxy) error {
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO proxies (`+proxyCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Type, p.Host, p.Port,
		nullStr(p.Username), nullStr(p.Password), boolToInt(p.Enabled),
		p.CreatedAt, p.UpdatedAt,
	)
	return err
}

// GetProxy retrieves a proxy by id, or (nil, nil) when absent.
func (s *Store) GetProxy(ctx context.Context, id string) (*gateway.Proxy, error) {
	row := s.read.QueryRowContext(ctx,
		`SELECT `+proxyCols+` FROM proxies WHERE id = ?`, id)
	p, err := scanProxy(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// ListProxies returns all proxies in insertion order.
func (s *Store) ListProxies(ctx context.Context) ([]*gateway.Proxy, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT `+proxyCols+` FROM proxies ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var proxies []*gateway.Proxy
	for rows.Next() {
		p, err := scanProxy(rows)
		if err != nil {
			return nil, err
		}
		proxies = append(proxies, p)
	}
	return proxies, rows.Err()
}

// UpdateProxy writes all mutable fields and the updatedAt stamp.
func (s *Store) UpdateProxy(ctx context.Context, p *gateway.Proxy) error {
	_, err := s.write.ExecContext(ctx,
		`UPDATE proxies SET name=?, type=?, host=?, port=?, username=?, password=?,
		 enabled=?, updated_at=? WHERE id=?`,
		p.Name, p.Type, p.Host, p.Port,
		nullStr(p.Username), nullStr(p.Password), boolToInt(p.Enabled),
		p.UpdatedAt, p.ID,
	)
	return err
}

// DeleteProxy removes the proxy and clears proxyId on every referencing
// channel in the same transaction, so no dangling reference is observable.
func (s *Store) DeleteProxy(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE channels SET proxy_id=NULL, updated_at=? WHERE proxy_id=?`,
			gateway.Now(), id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM proxies WHERE id=?`, id)
		return err
	})
}

func scanProxy(sc scanner) (*gateway.Proxy, error) {
	var p gateway.Proxy
	var username, password sql.NullString
	var enabled int

	err := sc.Scan(&p.ID, &p.Name, &p.Type, &p.Host, &p.Port,
		&username, &password, &enabled, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Username = username.String
	p.Password = password.String
	p.Enabled = enabled != 0
	return &p, nil
}
