package sqlite

import (
	"context"

	gateway "github.com/keyhub-gw/keyhub/internal"
)

// GetSettings returns the settings singleton.
func (s *Store) GetSettings(ctx context.Context) (gateway.Settings, error) {
	var out gateway.Settings
	err := s.read.QueryRowContext(ctx,
		`SELECT check_interval, max_logs_retention FROM settings WHERE id=1`,
	).Scan(&out.CheckInterval, &out.MaxLogsRetention)
	return out, err
}

// UpdateSettings overwrites the settings singleton.
func (s *Store) UpdateSettings(ctx context.Context, set gateway.Settings) error {
	_, err := s.write.ExecContext(ctx,
		`UPDATE settings SET check_interval=?, max_logs_retention=? WHERE id=1`,
		set.CheckInterval, set.MaxLogsRetention)
	return err
}
