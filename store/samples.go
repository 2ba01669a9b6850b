package store

import "time"

// StatSample is one recorded per-device summary, kept as bounded history for
// the diagnostics API.
type StatSample struct {
	ID        int64     `json:"id"`
	DeviceID  string    `json:"device_id"`
	Summary   string    `json:"summary"`
	Detail    string    `json:"detail"` // JSON-encoded stat tree
	SampledAt time.Time `json:"sampled_at"`
}

// RecordSample inserts one stat sample.
func (db *DB) RecordSample(deviceID, summary, detail string, sampledAt time.Time) error {
	_, err := db.Exec(db.Q(`
		INSERT INTO stat_samples (device_id, summary, detail, sampled_at) VALUES (?, ?, ?, ?)
	`), deviceID, summary, detail, sampledAt.UTC().Format(time.RFC3339Nano))
	return err
}

// ListSamples returns the most recent samples for a device, newest first.
func (db *DB) ListSamples(deviceID string, limit int) ([]StatSample, error) {
	rows, err := db.Query(db.Q(`
		SELECT id, device_id, summary, detail, sampled_at
		FROM stat_samples WHERE device_id = ?
		ORDER BY id DESC LIMIT ?
	`), deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []StatSample
	for rows.Next() {
		var s StatSample
		var sampledAt any
		if err := rows.Scan(&s.ID, &s.DeviceID, &s.Summary, &s.Detail, &sampledAt); err != nil {
			return nil, err
		}
		s.SampledAt = parseTime(sampledAt)
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// PruneSamples deletes all but the newest keep rows per device.
func (db *DB) PruneSamples(deviceID string, keep int) error {
	_, err := db.Exec(db.Q(`
		DELETE FROM stat_samples WHERE device_id = ? AND id NOT IN (
			SELECT id FROM stat_samples WHERE device_id = ? ORDER BY id DESC LIMIT ?
		)
	`), deviceID, deviceID, keep)
	return err
}
