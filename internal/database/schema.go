package database

const sqliteSchema = `
CREATE TABLE user_anime_list (
	user_id TEXT NOT NULL,
	mal_id INTEGER NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	image_url TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	score INTEGER NOT NULL DEFAULT 0,
	episodes_total INTEGER NOT NULL DEFAULT 0,
	episodes_watched INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (user_id, mal_id)
);

CREATE INDEX idx_user_anime_list_created ON user_anime_list(user_id, created_at);
CREATE INDEX idx_user_anime_list_status ON user_anime_list(user_id, status);
`

const postgresSchema = `
CREATE TABLE user_anime_list (
	user_id TEXT NOT NULL,
	mal_id INTEGER NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	image_url TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	score INTEGER NOT NULL DEFAULT 0 CHECK (score BETWEEN 0 AND 10),
	episodes_total INTEGER NOT NULL DEFAULT 0,
	episodes_watched INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, mal_id)
);

CREATE INDEX idx_user_anime_list_created ON user_anime_list(user_id, created_at);
CREATE INDEX idx_user_anime_list_status ON user_anime_list(user_id, status);
`

// Incremental schema changes, applied in order from the stored version.
// Index 0 is empty because version 0 uses the base schema.
var sqliteMigrations = []string{
	"",
}

var postgresMigrations = []string{
	"",
}
