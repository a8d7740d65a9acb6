package account

import "time"

// Account is the identity record. Structural fields start at safe
// defaults on registration and are only changed through the grade-gated
// profile update. The Discord bundle is only written by the link flow
// and the bot sync path.
type Account struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         string

	// Discord is nil until the account has been linked. When set it
	// always carries at least the provider user id; Grade stays nil
	// for linked members holding none of the mapped roles.
	Discord *DiscordLink

	Sector        *string
	Service       *string
	Poles         []string
	Habilitations []string
	FJF           bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DiscordLink holds the external identity bundle persisted by the link
// flow. Grade is a display cache: it is recomputed from Roles whenever
// fresh roles arrive and never trusted as ground truth.
type DiscordLink struct {
	ID       string
	Username string
	Nickname *string
	Avatar   *string
	Grade    *string
	Roles    []string
	LinkedAt time.Time
}

// SafeView is the account shape returned to the frontend. It never
// carries the password hash.
type SafeView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`

	DiscordLinked   bool    `json:"discordLinked"`
	DiscordID       *string `json:"discordId"`
	DiscordUsername *string `json:"discordUsername"`
	DiscordNickname *string `json:"discordNickname"`
	DiscordAvatar   *string `json:"discordAvatar"`
	DiscordGrade    *string `json:"discordHighestRole"`

	Sector        *string  `json:"sector"`
	Service       *string  `json:"service"`
	Poles         []string `json:"poles"`
	Habilitations []string `json:"habilitations"`
	FJF           bool     `json:"fjf"`
}

// Safe builds the frontend view of the account.
func (a *Account) Safe() SafeView {
	view := SafeView{
		ID:            a.ID,
		Username:      a.Username,
		Email:         a.Email,
		Role:          a.Role,
		Sector:        a.Sector,
		Service:       a.Service,
		Poles:         a.Poles,
		Habilitations: a.Habilitations,
		FJF:           a.FJF,
	}
	if view.Poles == nil {
		view.Poles = []string{}
	}
	if view.Habilitations == nil {
		view.Habilitations = []string{}
	}
	if a.Discord != nil {
		id := a.Discord.ID
		username := a.Discord.Username
		view.DiscordLinked = true
		view.DiscordID = &id
		view.DiscordUsername = &username
		view.DiscordNickname = a.Discord.Nickname
		view.DiscordAvatar = a.Discord.Avatar
		view.DiscordGrade = a.Discord.Grade
	}
	return view
}

// Grade returns the cached resolved grade, or "" when the account is
// unlinked or unranked.
func (a *Account) Grade() string {
	if a.Discord == nil || a.Discord.Grade == nil {
		return ""
	}
	return *a.Discord.Grade
}
