package store

// OutboxMessage is a queued outbound messaging envelope. Events are enqueued
// here transactionally and drained to the broker, so a broker outage never
// loses a domain event.
type OutboxMessage struct {
	ID        int64   `json:"id"`
	Topic     string  `json:"topic"`
	Payload   []byte  `json:"payload"`
	MsgType   string  `json:"msg_type"`
	Retries   int     `json:"retries"`
	CreatedAt string  `json:"created_at"`
	SentAt    *string `json:"sent_at"`
}

func (db *DB) EnqueueOutbox(topic string, payload []byte, msgType string) (int64, error) {
	if db.driver == "postgres" {
		var id int64
		err := db.QueryRow(db.Q(`INSERT INTO outbox (topic, payload, msg_type) VALUES (?, ?, ?) RETURNING id`),
			topic, payload, msgType).Scan(&id)
		return id, err
	}
	res, err := db.Exec(db.Q(`INSERT INTO outbox (topic, payload, msg_type) VALUES (?, ?, ?)`), topic, payload, msgType)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (db *DB) ListPendingOutbox(limit int) ([]OutboxMessage, error) {
	rows, err := db.Query(db.Q(`
		SELECT id, topic, payload, msg_type, retries, created_at
		FROM outbox WHERE sent_at IS NULL ORDER BY id LIMIT ?
	`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []OutboxMessage
	for rows.Next() {
		var m OutboxMessage
		var createdAt any
		if err := rows.Scan(&m.ID, &m.Topic, &m.Payload, &m.MsgType, &m.Retries, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt = parseTime(createdAt).Format("2006-01-02 15:04:05")
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (db *DB) AckOutbox(id int64) error {
	_, err := db.Exec(db.Q(`UPDATE outbox SET sent_at = datetime('now') WHERE id = ?`), id)
	return err
}

func (db *DB) IncrementOutboxRetries(id int64) error {
	_, err := db.Exec(db.Q(`UPDATE outbox SET retries = retries + 1 WHERE id = ?`), id)
	return err
}
