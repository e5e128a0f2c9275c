package storage

const schema = `
-- The 'col' table holds the single collection row: creation time and scheduler options.
CREATE TABLE IF NOT EXISTS col (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    crt INTEGER NOT NULL,
    conf TEXT NOT NULL
);

-- Notes own sibling cards. Only tags are kept here.
CREATE TABLE IF NOT EXISTS notes (
    id INTEGER PRIMARY KEY,
    tags TEXT NOT NULL DEFAULT '',
    mod INTEGER NOT NULL DEFAULT 0
);

-- The 'cards' table stores the scheduling state of every card.
CREATE TABLE IF NOT EXISTS cards (
    id INTEGER PRIMARY KEY,
    nid INTEGER NOT NULL,
    did INTEGER NOT NULL,
    ord INTEGER NOT NULL DEFAULT 0,
    mod INTEGER NOT NULL DEFAULT 0,
    type INTEGER NOT NULL DEFAULT 0,   -- 0: New, 1: Learning, 2: Review, 3: Relearning
    queue INTEGER NOT NULL DEFAULT 0,
    due INTEGER NOT NULL DEFAULT 0,
    ivl INTEGER NOT NULL DEFAULT 0,
    factor INTEGER NOT NULL DEFAULT 0,
    reps INTEGER NOT NULL DEFAULT 0,
    lapses INTEGER NOT NULL DEFAULT 0,
    steps_left INTEGER NOT NULL DEFAULT 0,
    odue INTEGER NOT NULL DEFAULT 0,
    odid INTEGER NOT NULL DEFAULT 0,
    flags INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS ix_cards_nid ON cards (nid);
CREATE INDEX IF NOT EXISTS ix_cards_sched ON cards (did, queue, due);

-- Regular and filtered decks with their daily counters.
CREATE TABLE IF NOT EXISTS decks (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    dyn INTEGER NOT NULL DEFAULT 0,
    conf_id INTEGER NOT NULL DEFAULT 1,
    terms TEXT NOT NULL DEFAULT '[]',
    resched INTEGER NOT NULL DEFAULT 1,
    preview_delay INTEGER NOT NULL DEFAULT 10,
    new_day INTEGER NOT NULL DEFAULT 0,
    new_count INTEGER NOT NULL DEFAULT 0,
    rev_day INTEGER NOT NULL DEFAULT 0,
    rev_count INTEGER NOT NULL DEFAULT 0,
    lrn_day INTEGER NOT NULL DEFAULT 0,
    lrn_count INTEGER NOT NULL DEFAULT 0,
    time_day INTEGER NOT NULL DEFAULT 0,
    time_count INTEGER NOT NULL DEFAULT 0
);

-- Option groups, stored as JSON documents.
CREATE TABLE IF NOT EXISTS deck_config (
    id INTEGER PRIMARY KEY,
    data TEXT NOT NULL
);

-- Append-only review log. The id is the answer time in milliseconds.
CREATE TABLE IF NOT EXISTS revlog (
    id INTEGER PRIMARY KEY,
    cid INTEGER NOT NULL,
    ease INTEGER NOT NULL,
    ivl INTEGER NOT NULL,
    last_ivl INTEGER NOT NULL,
    factor INTEGER NOT NULL,
    time INTEGER NOT NULL,
    type INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_revlog_cid ON revlog (cid);
`
