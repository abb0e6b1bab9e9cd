package database

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    google_id TEXT NOT NULL UNIQUE,
    email TEXT NOT NULL,
    access_token TEXT NOT NULL DEFAULT '',
    refresh_token TEXT NOT NULL DEFAULT '',
    token_expiry DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    last_uid INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS email_metadata (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    message_id TEXT NOT NULL,
    from_addr TEXT NOT NULL DEFAULT 'N/A',
    subject TEXT NOT NULL DEFAULT 'No Subject',
    date DATETIME NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(user_id, message_id)
);

CREATE INDEX IF NOT EXISTS idx_metadata_user_date ON email_metadata(user_id, date);
CREATE INDEX IF NOT EXISTS idx_metadata_from ON email_metadata(from_addr);
CREATE INDEX IF NOT EXISTS idx_metadata_subject ON email_metadata(subject);
`
