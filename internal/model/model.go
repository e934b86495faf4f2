// Package model defines domain entities used by services and repositories.
package model

import (
	"fmt"
	"strings"

	"github.com/daladal/discord-bot/internal/errs"
)

// DefaultPrefix is the command prefix used when a guild has no stored config.
const DefaultPrefix = "!"

// Region is a League of Legends platform code such as "euw" or "kr".
type Region string

// validRegions is the closed set of accepted region codes, in display order.
var validRegions = []Region{
	"na", "euw", "eune", "kr", "br", "lan", "las", "oce",
	"ru", "tr", "jp", "ph", "sg", "th", "tw", "vn",
}

// Regions returns the supported region codes in display order.
func Regions() []Region {
	return append([]Region(nil), validRegions...)
}

// ParseRegion normalizes s and checks it against the supported set.
func ParseRegion(s string) (Region, error) {
	r := Region(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range validRegions {
		if v == r {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", errs.ErrInvalidRegion, s)
}

// Display returns the upper-case form shown to users.
func (r Region) Display() string { return strings.ToUpper(string(r)) }

// LinkRecord binds a Discord user to a Riot account.
type LinkRecord struct {
	OwnerID    string  // Discord user id, PK
	Name       string  // Riot game name as returned by the verifier
	Tag        string  // Riot tag line as returned by the verifier
	Region     Region  // platform the user plays on
	VerifiedID *string // Riot PUUID; nil for unverified legacy rows
}

// RiotID renders the record as Name#TAG.
func (l LinkRecord) RiotID() string { return l.Name + "#" + l.Tag }

// ServerConfig holds per-guild settings.
type ServerConfig struct {
	Prefix string
}

// DefaultServerConfig is used for guilds without a stored row and for DMs.
func DefaultServerConfig() ServerConfig { return ServerConfig{Prefix: DefaultPrefix} }

// ScopedConfig pairs a guild id with its config, as returned by bulk loads.
type ScopedConfig struct {
	ScopeID string
	Config  ServerConfig
}

// VerifiedIdentity is the canonical account returned by the Riot API.
type VerifiedIdentity struct {
	PUUID    string
	GameName string
	TagLine  string
}
