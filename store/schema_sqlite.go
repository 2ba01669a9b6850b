package store

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS admin_users (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at    TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS reservation_log (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    device_id   TEXT NOT NULL,
    holder      TEXT NOT NULL,
    granted_at  TEXT NOT NULL DEFAULT (datetime('now')),
    released_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_reservation_log_device ON reservation_log(device_id);
CREATE INDEX IF NOT EXISTS idx_reservation_log_open ON reservation_log(released_at) WHERE released_at IS NULL;

CREATE TABLE IF NOT EXISTS stat_samples (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    device_id   TEXT NOT NULL,
    summary     TEXT NOT NULL DEFAULT '',
    detail      TEXT NOT NULL DEFAULT '{}',
    sampled_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_stat_samples_device ON stat_samples(device_id, id);

CREATE TABLE IF NOT EXISTS outbox (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    topic      TEXT NOT NULL,
    payload    BLOB NOT NULL,
    msg_type   TEXT NOT NULL DEFAULT '',
    retries    INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    sent_at    TEXT
);
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(sent_at) WHERE sent_at IS NULL;
`
