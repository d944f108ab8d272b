// Package postgres provides a PostgreSQL implementation of the vector
// memory index using the pgvector extension.
package postgres

// Schema contains the SQL statements to create the vector index schema.
// The embedding dimension is fixed at table creation; the default of
// 1536 matches text-embedding-3-small.
const Schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS memory_vectors (
    memory_id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    session_id TEXT,
    type TEXT NOT NULL,
    text TEXT NOT NULL,
    embedding vector(1536) NOT NULL,
    tags JSONB,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_memory_vectors_user ON memory_vectors(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_memory_vectors_type ON memory_vectors(user_id, type);

-- Approximate nearest neighbour index for cosine distance. Lists=100 is
-- the pgvector guidance for collections up to ~1M rows.
CREATE INDEX IF NOT EXISTS idx_memory_vectors_embedding
    ON memory_vectors USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
`
