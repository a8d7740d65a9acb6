package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is loaded once at startup and passed explicitly into each
// component constructor. Nothing reads the environment after Load.
type Config struct {
	AppPort string `env:"APP_PORT" envDefault:"5000"`

	// Bearer token signing.
	JWTSecret  string        `env:"JWT_SECRET,required"`
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"168h"`
	// TTL for the OAuth state token. Minutes, not days: the state only
	// needs to survive one human redirect round-trip.
	LinkStateTTL time.Duration `env:"LINK_STATE_TTL" envDefault:"5m"`

	// Discord application credentials.
	DiscordClientID     string `env:"DISCORD_CLIENT_ID,required"`
	DiscordClientSecret string `env:"DISCORD_CLIENT_SECRET,required"`
	DiscordRedirectURL  string `env:"DISCORD_REDIRECT_URL,required"`
	// Bot token and guild are optional: without them the link flow
	// still works, members just resolve as unranked.
	DiscordBotToken string        `env:"DISCORD_BOT_TOKEN"`
	DiscordGuildID  string        `env:"DISCORD_GUILD_ID"`
	DiscordBaseURL  string        `env:"DISCORD_BASE_URL" envDefault:"https://discord.com"`
	DiscordTimeout  time.Duration `env:"DISCORD_TIMEOUT" envDefault:"10s"`

	// Ordered role-id -> grade mapping, highest grade first, e.g.
	// "1426617765623763055:Juge Fédéral,234:Juge Fédéral Adjoint".
	GradeRoleMap string `env:"GRADE_ROLE_MAP"`
	// Grades allowed to edit structural profile fields.
	ProfileEditGrades []string `env:"PROFILE_EDIT_GRADES" envSeparator:"," envDefault:"Juge Fédéral,Juge Fédéral Adjoint"`

	// Shared secret for the bot sync endpoint.
	SyncSharedSecret string `env:"SYNC_SHARED_SECRET,required"`

	// Where the browser lands after the link flow.
	FrontendBaseURL string `env:"FRONTEND_BASE_URL,required"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	DatabaseDSN string `env:"DATABASE_DSN,required"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.FrontendBaseURL = strings.TrimRight(cfg.FrontendBaseURL, "/")
	cfg.DiscordBaseURL = strings.TrimRight(cfg.DiscordBaseURL, "/")
	return cfg, nil
}

// RoleMapping is one role-id -> grade pair from GRADE_ROLE_MAP.
type RoleMapping struct {
	RoleID string
	Grade  string
}

// ParseGradeRoleMap parses GRADE_ROLE_MAP preserving declaration order,
// which is the precedence order of the grades (highest first). An empty
// value is valid and degrades grade resolution to always-unranked.
func ParseGradeRoleMap(raw string) ([]RoleMapping, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	parts := strings.Split(raw, ",")
	mappings := make([]RoleMapping, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		roleID, grade, ok := strings.Cut(part, ":")
		roleID = strings.TrimSpace(roleID)
		grade = strings.TrimSpace(grade)
		if !ok || roleID == "" || grade == "" {
			return nil, fmt.Errorf("config: invalid grade mapping entry %q", part)
		}
		mappings = append(mappings, RoleMapping{RoleID: roleID, Grade: grade})
	}
	return mappings, nil
}
