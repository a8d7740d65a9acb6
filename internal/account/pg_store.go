package account

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/zealess/doj-backend/internal/db"
)

// PGStore is the canonical Postgres-backed account store.
type PGStore struct {
	db *db.DB
}

func NewPGStore(db *db.DB) *PGStore {
	return &PGStore{db: db}
}

const accountColumns = `
	id, username, email, password_hash, role,
	discord_id, discord_username, discord_nickname, discord_avatar,
	discord_grade, discord_roles, discord_linked_at,
	sector, service, poles, habilitations, fjf,
	created_at, updated_at
`

func (s *PGStore) Create(ctx context.Context, acc *Account) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO accounts (username, email, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`,
		acc.Username,
		acc.Email,
		acc.PasswordHash,
		acc.Role,
	).Scan(&acc.ID, &acc.CreatedAt, &acc.UpdatedAt)

	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (s *PGStore) GetByID(ctx context.Context, id string) (*Account, error) {
	return s.getOne(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
	`, id)
}

func (s *PGStore) GetByLogin(ctx context.Context, identifier string) (*Account, error) {
	return s.getOne(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE LOWER(username) = LOWER($1)
		   OR LOWER(email) = LOWER($1)
	`, identifier)
}

func (s *PGStore) GetByDiscordID(ctx context.Context, discordID string) (*Account, error) {
	return s.getOne(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE discord_id = $1
	`, discordID)
}

// Update writes the full record back in one statement. Either every
// field lands or none do.
func (s *PGStore) Update(ctx context.Context, acc *Account) error {
	var (
		discordID       *string
		discordUsername *string
		discordNickname *string
		discordAvatar   *string
		discordGrade    *string
		discordRoles    = []string{}
		discordLinkedAt *time.Time
	)
	if acc.Discord != nil {
		discordID = &acc.Discord.ID
		discordUsername = &acc.Discord.Username
		discordNickname = acc.Discord.Nickname
		discordAvatar = acc.Discord.Avatar
		discordGrade = acc.Discord.Grade
		if acc.Discord.Roles != nil {
			discordRoles = acc.Discord.Roles
		}
		linkedAt := acc.Discord.LinkedAt
		discordLinkedAt = &linkedAt
	}

	poles := acc.Poles
	if poles == nil {
		poles = []string{}
	}
	habilitations := acc.Habilitations
	if habilitations == nil {
		habilitations = []string{}
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET
			discord_id = $2,
			discord_username = $3,
			discord_nickname = $4,
			discord_avatar = $5,
			discord_grade = $6,
			discord_roles = $7,
			discord_linked_at = $8,
			sector = $9,
			service = $10,
			poles = $11,
			habilitations = $12,
			fjf = $13,
			updated_at = NOW()
		WHERE id = $1
	`,
		acc.ID,
		discordID,
		discordUsername,
		discordNickname,
		discordAvatar,
		discordGrade,
		pq.Array(discordRoles),
		discordLinkedAt,
		acc.Sector,
		acc.Service,
		pq.Array(poles),
		pq.Array(habilitations),
		acc.FJF,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) getOne(ctx context.Context, query string, arg any) (*Account, error) {
	var (
		acc             Account
		discordID       sql.NullString
		discordUsername sql.NullString
		discordNickname sql.NullString
		discordAvatar   sql.NullString
		discordGrade    sql.NullString
		discordRoles    []string
		discordLinkedAt sql.NullTime
	)

	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&acc.ID,
		&acc.Username,
		&acc.Email,
		&acc.PasswordHash,
		&acc.Role,
		&discordID,
		&discordUsername,
		&discordNickname,
		&discordAvatar,
		&discordGrade,
		pq.Array(&discordRoles),
		&discordLinkedAt,
		&acc.Sector,
		&acc.Service,
		pq.Array(&acc.Poles),
		pq.Array(&acc.Habilitations),
		&acc.FJF,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if discordID.Valid {
		link := &DiscordLink{
			ID:       discordID.String,
			Username: discordUsername.String,
			Roles:    discordRoles,
		}
		if discordNickname.Valid {
			link.Nickname = &discordNickname.String
		}
		if discordAvatar.Valid {
			link.Avatar = &discordAvatar.String
		}
		if discordGrade.Valid {
			link.Grade = &discordGrade.String
		}
		if discordLinkedAt.Valid {
			link.LinkedAt = discordLinkedAt.Time
		}
		acc.Discord = link
	}

	return &acc, nil
}

func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == "23505"
}
