package metadatastore

// migrations lays out the relational schema from spec §6, grounded on
// the teacher's internal/database migration-slice pattern (a plain
// ordered []string of idempotent DDL run at startup).
var migrations = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`,

	`CREATE TABLE IF NOT EXISTS datasets (
		id VARCHAR(255) PRIMARY KEY,
		organization_id VARCHAR(255) NOT NULL,
		tracking_id VARCHAR(255),
		server_configuration JSONB NOT NULL DEFAULT '{}',
		deleted INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS chunks (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		dataset_id VARCHAR(255) NOT NULL REFERENCES datasets(id),
		fingerprint UUID NOT NULL,
		content TEXT NOT NULL,
		html TEXT NOT NULL DEFAULT '',
		link TEXT NOT NULL DEFAULT '',
		tracking_id VARCHAR(255),
		metadata JSONB NOT NULL DEFAULT '{}',
		time_stamp TIMESTAMP WITH TIME ZONE,
		lat DOUBLE PRECISION,
		lon DOUBLE PRECISION,
		num_value DOUBLE PRECISION,
		weight DOUBLE PRECISION,
		image_urls TEXT[] NOT NULL DEFAULT '{}',
		tag_set TEXT[] NOT NULL DEFAULT '{}',
		deleted INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_chunks_dataset_tracking
		ON chunks(dataset_id, tracking_id) WHERE tracking_id IS NOT NULL AND deleted = 0`,
	`CREATE INDEX IF NOT EXISTS idx_chunks_dataset_id ON chunks(dataset_id) WHERE deleted = 0`,
	`CREATE INDEX IF NOT EXISTS idx_chunks_fingerprint ON chunks(fingerprint)`,

	`CREATE TABLE IF NOT EXISTS collisions (
		chunk_id UUID PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
		canonical_fingerprint UUID NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_collisions_canonical ON collisions(canonical_fingerprint)`,

	`CREATE TABLE IF NOT EXISTS groups (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		dataset_id VARCHAR(255) NOT NULL REFERENCES datasets(id),
		name VARCHAR(512) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		tracking_id VARCHAR(255),
		tag_set TEXT[] NOT NULL DEFAULT '{}',
		metadata JSONB NOT NULL DEFAULT '{}',
		deleted INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_groups_dataset_tracking
		ON groups(dataset_id, tracking_id) WHERE tracking_id IS NOT NULL AND deleted = 0`,

	`CREATE TABLE IF NOT EXISTS group_bookmarks (
		group_id UUID NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
		chunk_id UUID NOT NULL REFERENCES chunks(id) ON DELETE CASCADE,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		PRIMARY KEY (group_id, chunk_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_group_bookmarks_chunk ON group_bookmarks(chunk_id)`,

	`CREATE TABLE IF NOT EXISTS dataset_tags (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		dataset_id VARCHAR(255) NOT NULL REFERENCES datasets(id),
		tag VARCHAR(255) NOT NULL,
		UNIQUE(dataset_id, tag)
	)`,

	`CREATE TABLE IF NOT EXISTS chunk_tags (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		chunk_id UUID NOT NULL REFERENCES chunks(id) ON DELETE CASCADE,
		tag_id UUID NOT NULL REFERENCES dataset_tags(id) ON DELETE CASCADE,
		UNIQUE(chunk_id, tag_id)
	)`,

	`CREATE TABLE IF NOT EXISTS files (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		dataset_id VARCHAR(255) NOT NULL REFERENCES datasets(id),
		size_mb DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS groups_from_files (
		group_id UUID PRIMARY KEY REFERENCES groups(id) ON DELETE CASCADE,
		file_id UUID NOT NULL REFERENCES files(id) ON DELETE CASCADE
	)`,

	`CREATE TABLE IF NOT EXISTS dataset_words_last_processed (
		dataset_id VARCHAR(255) PRIMARY KEY REFERENCES datasets(id),
		last_processed BIGINT NOT NULL DEFAULT 0
	)`,
}
