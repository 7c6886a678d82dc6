package store

import "fmt"

// Query returns the listen records finalized inside the window, ordered by
// finalize time.
func (s *Store) Query(w Window) ([]ListenRecord, error) {
	cond, args := w.clause("finished_at")
	rows, err := s.db.Query(
		`SELECT `+listenColumns+` FROM listens WHERE `+cond+` ORDER BY finished_at, id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying listens: %w", err)
	}
	defer rows.Close()

	var records []ListenRecord
	for rows.Next() {
		rec, err := scanListen(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning listen: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountAttempts reports how many sessions finalized inside the window and
// how many of those met the eligibility rule.
func (s *Store) CountAttempts(w Window) (total, eligible int64, err error) {
	cond, args := w.clause("finished_at")
	err = s.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(eligible), 0) FROM attempts WHERE `+cond,
		args...,
	).Scan(&total, &eligible)
	if err != nil {
		return 0, 0, fmt.Errorf("counting attempts: %w", err)
	}
	return total, eligible, nil
}
