package store

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS admin_users (
    id            BIGSERIAL PRIMARY KEY,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS reservation_log (
    id          BIGSERIAL PRIMARY KEY,
    device_id   TEXT NOT NULL,
    holder      TEXT NOT NULL,
    granted_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    released_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_reservation_log_device ON reservation_log(device_id);
CREATE INDEX IF NOT EXISTS idx_reservation_log_open ON reservation_log(released_at) WHERE released_at IS NULL;

CREATE TABLE IF NOT EXISTS stat_samples (
    id          BIGSERIAL PRIMARY KEY,
    device_id   TEXT NOT NULL,
    summary     TEXT NOT NULL DEFAULT '',
    detail      TEXT NOT NULL DEFAULT '{}',
    sampled_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_stat_samples_device ON stat_samples(device_id, id);

CREATE TABLE IF NOT EXISTS outbox (
    id         BIGSERIAL PRIMARY KEY,
    topic      TEXT NOT NULL,
    payload    BYTEA NOT NULL,
    msg_type   TEXT NOT NULL DEFAULT '',
    retries    INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    sent_at    TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(sent_at) WHERE sent_at IS NULL;
`
