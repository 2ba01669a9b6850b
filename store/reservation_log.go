package store

import "time"

// ReservationRecord is one row of the reservation audit log. The in-memory
// table is authoritative; this log is the durable record of what was granted
// and when, surviving agent restarts for accounting.
type ReservationRecord struct {
	ID         int64      `json:"id"`
	DeviceID   string     `json:"device_id"`
	Holder     string     `json:"holder"`
	GrantedAt  time.Time  `json:"granted_at"`
	ReleasedAt *time.Time `json:"released_at,omitempty"`
}

// LogGrant records a granted device binding.
func (db *DB) LogGrant(deviceID, holder string) error {
	_, err := db.Exec(db.Q(`INSERT INTO reservation_log (device_id, holder) VALUES (?, ?)`), deviceID, holder)
	return err
}

// LogRelease closes the open log entry for a device.
func (db *DB) LogRelease(deviceID string) error {
	_, err := db.Exec(db.Q(`
		UPDATE reservation_log SET released_at = datetime('now')
		WHERE device_id = ? AND released_at IS NULL
	`), deviceID)
	return err
}

// CloseAllOpenReservations closes every open entry. Called on startup: an
// agent restart implicitly releases all reservations, and the log must agree.
func (db *DB) CloseAllOpenReservations() (int64, error) {
	res, err := db.Exec(db.Q(`UPDATE reservation_log SET released_at = datetime('now') WHERE released_at IS NULL`))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListReservationHistory returns the most recent log entries for a device,
// newest first.
func (db *DB) ListReservationHistory(deviceID string, limit int) ([]ReservationRecord, error) {
	rows, err := db.Query(db.Q(`
		SELECT id, device_id, holder, granted_at, released_at
		FROM reservation_log WHERE device_id = ?
		ORDER BY id DESC LIMIT ?
	`), deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ReservationRecord
	for rows.Next() {
		var r ReservationRecord
		var grantedAt, releasedAt any
		if err := rows.Scan(&r.ID, &r.DeviceID, &r.Holder, &grantedAt, &releasedAt); err != nil {
			return nil, err
		}
		r.GrantedAt = parseTime(grantedAt)
		r.ReleasedAt = parseTimePtr(releasedAt)
		records = append(records, r)
	}
	return records, rows.Err()
}
