// Package sqlite provides SQLite implementations of the storage interfaces.
// This is the default embedded backend: a single file (or :memory:) holds
// memory records, the conversation log, the vector memory index, and task
// records.
package sqlite

// Schema contains the SQL statements to create the database schema.
const Schema = `
-- Memories table: all four record kinds share one table with a kind
-- discriminator; kind-specific payloads live in a JSON column.
CREATE TABLE IF NOT EXISTS memories (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    content TEXT NOT NULL,
    source TEXT,
    importance INTEGER NOT NULL DEFAULT 5,

    -- Tags (JSON array)
    tags TEXT,

    -- Kind-specific payload (JSON object, shape depends on kind)
    payload TEXT,

    -- Arbitrary metadata (JSON object)
    metadata TEXT,

    -- Soft delete flag
    active INTEGER NOT NULL DEFAULT 1,

    -- Timestamps
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    expires_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_memories_kind ON memories(kind);
CREATE INDEX IF NOT EXISTS idx_memories_active ON memories(active);
CREATE INDEX IF NOT EXISTS idx_memories_importance ON memories(importance);

-- Conversations table: append-only session turn log.
CREATE TABLE IF NOT EXISTS conversations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    token_count INTEGER NOT NULL DEFAULT 0,
    metadata TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversations_session ON conversations(session_id, id);
CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, id);

-- Vector memory index: append-only embedded text units. Embeddings are
-- float32 little-endian BLOBs; similarity is computed in-process.
CREATE TABLE IF NOT EXISTS memory_vectors (
    memory_id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    session_id TEXT,
    type TEXT NOT NULL,
    text TEXT NOT NULL,
    embedding BLOB NOT NULL,
    dimension INTEGER NOT NULL,
    tags TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memory_vectors_user ON memory_vectors(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_memory_vectors_type ON memory_vectors(user_id, type);

-- Tasks table: async task records with state machine enforcement in the
-- store layer (terminal states are absorbing).
CREATE TABLE IF NOT EXISTS tasks (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    state TEXT NOT NULL,
    stage TEXT,
    percent INTEGER NOT NULL DEFAULT 0,
    params TEXT,
    result TEXT,
    error TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_state ON tasks(state);
`
