package bot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/daladal/discord-bot/internal/errs"
	"github.com/daladal/discord-bot/internal/model"
	"github.com/daladal/discord-bot/internal/service"
)

const (
	msgPong       = "Pong!"
	msgInternal   = "Something went wrong. Please try again later."
	msgGuildOnly  = "This command only works in servers!"
	msgLinkUsage  = "Usage: `link <Name#TAG> <region>`\nExample: `link Faker#KR1 kr`"
	msgBadRiotID  = "Invalid Riot ID format. Use `Name#TAG` (e.g., `Faker#KR1`)"
	msgNotLinked  = "You don't have a linked LoL account."
	msgLinkHint   = "\nUse `link <Name#TAG> <region>` to link one."
	msgThrottled  = "You're linking too often. Please wait a bit before trying again."
	msgRiotBusy   = "The Riot API is busy right now. Please try again in a minute."
	msgRiotAuth   = "Account verification is unavailable right now. The bot operators have been notified."
	msgRiotFault  = "Riot's servers are having trouble. Please try again later."
	msgRiotDown   = "Couldn't reach the Riot API. Please try again later."
	msgRiotWeird  = "Riot returned an unexpected response. Please try again later."
	msgSaveFailed = "Failed to save your link. Please try again later."
)

func regionList() string {
	rs := model.Regions()
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = string(r)
	}
	return strings.Join(out, ", ")
}

func helpText(prefix string) string {
	return "Available commands:\n" +
		"ping - Responds with Pong!\n" +
		"help - Shows this message\n" +
		"prefix [new_prefix] - View or set command prefix for this server\n" +
		"link <Name#TAG> <region> - Link your Discord account to your LoL account\n" +
		"unlink - Remove your linked LoL account\n" +
		"me - Show your linked LoL account\n" +
		"\n" +
		"Regions: " + regionList() + "\n" +
		"Example: " + prefix + "link Faker#KR1 kr\n" +
		"\n" +
		"Tip: Use quotes for multi-word arguments: `" + prefix + "link \"Hide on bush#KR1\" kr`"
}

func storeOp(err error) string {
	var se *errs.StoreError
	if errors.As(err, &se) {
		return se.Op
	}
	return ""
}

func describeLink(rec model.LinkRecord, region, riotID string, err error) string {
	switch {
	case err == nil:
		return fmt.Sprintf("✅ Linked your account to **%s** in region **%s**", rec.RiotID(), rec.Region.Display())
	case errors.Is(err, errs.ErrInvalidRegion):
		return fmt.Sprintf("Invalid region: `%s`. Valid regions: %s", region, regionList())
	case errors.Is(err, errs.ErrInvalidRiotID):
		return msgBadRiotID
	case errors.Is(err, errs.ErrCommandThrottled):
		return msgThrottled
	case errors.Is(err, errs.ErrUpstreamNotFound):
		return fmt.Sprintf("Riot account **%s** was not found. Check the name and tag.", riotID)
	case errors.Is(err, errs.ErrRateLimited):
		return msgRiotBusy
	case errors.Is(err, errs.ErrUnauthorized):
		return msgRiotAuth
	case errors.Is(err, errs.ErrUpstreamFault):
		return msgRiotFault
	case errors.Is(err, errs.ErrTransport):
		return msgRiotDown
	case errors.Is(err, errs.ErrMalformed):
		return msgRiotWeird
	case errors.Is(err, errs.ErrStore):
		return msgSaveFailed
	default:
		return msgInternal
	}
}

func describeUnlink(err error) string {
	switch {
	case err == nil:
		return "✅ Your LoL account has been unlinked."
	case errors.Is(err, errs.ErrNotFound):
		return msgNotLinked
	case storeOp(err) == errs.OpCheck:
		return "Failed to check your link. Please try again later."
	case storeOp(err) == errs.OpDelete:
		return "Failed to unlink your account. Please try again later."
	default:
		return msgInternal
	}
}

func describeLookup(rec model.LinkRecord, err error) string {
	switch {
	case err == nil:
		verified := ""
		if rec.VerifiedID == nil {
			verified = "\n⚠️ Not verified with Riot. Link again to verify."
		}
		return fmt.Sprintf("**Your linked account:**\n🎮 **%s**\n🌍 Region: **%s**%s",
			rec.RiotID(), rec.Region.Display(), verified)
	case errors.Is(err, errs.ErrNotFound):
		return msgNotLinked + msgLinkHint
	case errors.Is(err, errs.ErrStore):
		return "Failed to retrieve your link. Please try again later."
	default:
		return msgInternal
	}
}

func describePrefix(prefix string, err error) string {
	switch {
	case err == nil:
		return fmt.Sprintf("Prefix changed to: `%s`", prefix)
	case errors.Is(err, errs.ErrInvalidPrefix):
		return fmt.Sprintf("Invalid prefix. Use 1 to %d characters without spaces.", service.MaxPrefixLen)
	case errors.Is(err, errs.ErrStore):
		return "Failed to save the new prefix. Please try again later."
	default:
		return msgInternal
	}
}
