package db

import (
	"context"
	"database/sql"
)

const keystoneMigration = `
CREATE EXTENSION IF NOT EXISTS "pgcrypto";

CREATE TABLE IF NOT EXISTS accounts (
    id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    username text NOT NULL,
    email text NOT NULL,
    password_hash text NOT NULL,
    role text NOT NULL DEFAULT 'user',

    discord_id text,
    discord_username text,
    discord_nickname text,
    discord_avatar text,
    discord_grade text,
    discord_roles text[] NOT NULL DEFAULT '{}',
    discord_linked_at timestamptz,

    sector text,
    service text,
    poles text[] NOT NULL DEFAULT '{}',
    habilitations text[] NOT NULL DEFAULT '{}',
    fjf boolean NOT NULL DEFAULT false,

    created_at timestamptz NOT NULL DEFAULT NOW(),
    updated_at timestamptz NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS accounts_username_lower_unique
ON accounts (LOWER(username));

CREATE UNIQUE INDEX IF NOT EXISTS accounts_email_lower_unique
ON accounts (LOWER(email));

CREATE UNIQUE INDEX IF NOT EXISTS accounts_discord_id_unique
ON accounts (discord_id) WHERE discord_id IS NOT NULL;
`

func RunKeystoneMigration(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, keystoneMigration)
	return err
}
