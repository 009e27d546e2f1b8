package storage

// Timestamps are written in UTC. due_on and day are YYYY-MM-DD strings on the
// learner's shifted local day and compare correctly as text.

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS decks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS openings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    deck_id INTEGER NOT NULL,
    name TEXT NOT NULL,
    side TEXT NOT NULL CHECK (side IN ('white', 'black')),

    UNIQUE(deck_id, name),
    FOREIGN KEY(deck_id) REFERENCES decks(id) ON DELETE CASCADE
);

-- The 'sources' table tracks where deck files come from, either a local directory or a git repository.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL DEFAULT 'local',
    last_scanned DATETIME
);

-- A line's id is the hash of its content, so edited lines arrive as new rows.
CREATE TABLE IF NOT EXISTS lines (
    id TEXT PRIMARY KEY,
    opening_id INTEGER NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    moves TEXT NOT NULL,
    active INTEGER NOT NULL DEFAULT 1,
    source_id INTEGER,
    created_at DATETIME NOT NULL,

    FOREIGN KEY(opening_id) REFERENCES openings(id) ON DELETE CASCADE,
    FOREIGN KEY(source_id) REFERENCES sources(id) ON DELETE SET NULL
);

CREATE TABLE IF NOT EXISTS reviews (
    user_id TEXT NOT NULL,
    line_id TEXT NOT NULL,
    status TEXT NOT NULL CHECK (status IN ('learning', 'review', 'removed')),
    due_on TEXT,
    interval_days INTEGER,
    last_result TEXT,
    last_seen_at DATETIME,

    PRIMARY KEY(user_id, line_id),
    FOREIGN KEY(line_id) REFERENCES lines(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_reviews_due ON reviews(user_id, due_on);

CREATE TABLE IF NOT EXISTS review_events (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    line_id TEXT NOT NULL,
    result TEXT NOT NULL CHECK (result IN ('pass', 'fail')),
    seen_at DATETIME NOT NULL,

    FOREIGN KEY(line_id) REFERENCES lines(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_review_events_seen ON review_events(user_id, line_id, seen_at);

CREATE TABLE IF NOT EXISTS day_marks (
    user_id TEXT NOT NULL,
    deck_id INTEGER NOT NULL,
    day TEXT NOT NULL,
    kind TEXT NOT NULL,
    line_id TEXT NOT NULL,
    position INTEGER NOT NULL,

    PRIMARY KEY(user_id, deck_id, day, kind, line_id)
);

CREATE TABLE IF NOT EXISTS time_spent (
    user_id TEXT NOT NULL,
    day TEXT NOT NULL,
    seconds INTEGER NOT NULL DEFAULT 0,

    PRIMARY KEY(user_id, day)
);

CREATE TABLE IF NOT EXISTS user_settings (
    user_id TEXT PRIMARY KEY,
    current_deck_id INTEGER,
    daily_new_cap INTEGER,

    FOREIGN KEY(current_deck_id) REFERENCES decks(id) ON DELETE SET NULL
);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS decks (
    id BIGSERIAL PRIMARY KEY,
    name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS openings (
    id BIGSERIAL PRIMARY KEY,
    deck_id BIGINT NOT NULL REFERENCES decks(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    side TEXT NOT NULL CHECK (side IN ('white', 'black')),
    UNIQUE(deck_id, name)
);

CREATE TABLE IF NOT EXISTS sources (
    id BIGSERIAL PRIMARY KEY,
    path TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL DEFAULT 'local',
    last_scanned TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS lines (
    id TEXT PRIMARY KEY,
    opening_id BIGINT NOT NULL REFERENCES openings(id) ON DELETE CASCADE,
    name TEXT NOT NULL DEFAULT '',
    moves TEXT NOT NULL,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    source_id BIGINT REFERENCES sources(id) ON DELETE SET NULL,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS reviews (
    user_id TEXT NOT NULL,
    line_id TEXT NOT NULL REFERENCES lines(id) ON DELETE CASCADE,
    status TEXT NOT NULL CHECK (status IN ('learning', 'review', 'removed')),
    due_on TEXT,
    interval_days INTEGER,
    last_result TEXT,
    last_seen_at TIMESTAMPTZ,
    PRIMARY KEY(user_id, line_id)
);
CREATE INDEX IF NOT EXISTS idx_reviews_due ON reviews(user_id, due_on);

CREATE TABLE IF NOT EXISTS review_events (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    line_id TEXT NOT NULL REFERENCES lines(id) ON DELETE CASCADE,
    result TEXT NOT NULL CHECK (result IN ('pass', 'fail')),
    seen_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_review_events_seen ON review_events(user_id, line_id, seen_at);

CREATE TABLE IF NOT EXISTS day_marks (
    user_id TEXT NOT NULL,
    deck_id BIGINT NOT NULL,
    day TEXT NOT NULL,
    kind TEXT NOT NULL,
    line_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    PRIMARY KEY(user_id, deck_id, day, kind, line_id)
);

CREATE TABLE IF NOT EXISTS time_spent (
    user_id TEXT NOT NULL,
    day TEXT NOT NULL,
    seconds INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY(user_id, day)
);

CREATE TABLE IF NOT EXISTS user_settings (
    user_id TEXT PRIMARY KEY,
    current_deck_id BIGINT REFERENCES decks(id) ON DELETE SET NULL,
    daily_new_cap INTEGER
);
`
