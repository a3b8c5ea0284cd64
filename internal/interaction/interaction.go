// Package interaction models inbound interaction payloads as a closed set of
// variants selected by the payload's "type" discriminant.
package interaction

import (
	"encoding/json"
	"math"

	"github.com/bwmarrin/discordgo"
	"github.com/relaybot/interaction-gateway/internal/snowflake"
)

// Type is the interaction discriminant carried in the payload's "type" field.
type Type = discordgo.InteractionType

const (
	TypePing               = discordgo.InteractionPing
	TypeApplicationCommand = discordgo.InteractionApplicationCommand
	TypeMessageComponent   = discordgo.InteractionMessageComponent
	TypeAutocomplete       = discordgo.InteractionApplicationCommandAutocomplete
	TypeModalSubmit        = discordgo.InteractionModalSubmit
)

// Interaction is implemented only by the variants in this package:
// *Ping, *ApplicationCommand, *MessageComponent, *Autocomplete, *ModalSubmit
// and *Unsupported.
type Interaction interface {
	InteractionType() Type
	sealed()
}

// Ping is sent by the platform to check that the endpoint is alive.
type Ping struct {
	ID            snowflake.ID `json:"id"`
	ApplicationID snowflake.ID `json:"application_id"`
}

// ApplicationCommand is a slash-command invocation.
type ApplicationCommand struct {
	ID            snowflake.ID      `json:"id"`
	ApplicationID snowflake.ID      `json:"application_id"`
	GuildID       *snowflake.ID     `json:"guild_id,omitempty"`
	ChannelID     *snowflake.ID     `json:"channel_id,omitempty"`
	Member        *discordgo.Member `json:"member,omitempty"`
	User          *discordgo.User   `json:"user,omitempty"`
	Token         string            `json:"token"`
	Data          CommandData       `json:"data"`
}

// CommandData is the invoked command and the entities it references.
type CommandData struct {
	ID       snowflake.ID `json:"id"`
	Name     string       `json:"name"`
	Resolved Resolved     `json:"resolved"`
}

// Resolved holds entities the sender embedded so the receiver can skip lookups.
type Resolved struct {
	Users    map[snowflake.ID]*discordgo.User    `json:"users,omitempty"`
	Members  map[snowflake.ID]*discordgo.Member  `json:"members,omitempty"`
	Roles    map[snowflake.ID]*discordgo.Role    `json:"roles,omitempty"`
	Channels map[snowflake.ID]*discordgo.Channel `json:"channels,omitempty"`
}

// MessageComponent is a button or select-menu interaction.
type MessageComponent struct {
	ID            snowflake.ID      `json:"id"`
	ApplicationID snowflake.ID      `json:"application_id"`
	GuildID       *snowflake.ID     `json:"guild_id,omitempty"`
	ChannelID     *snowflake.ID     `json:"channel_id,omitempty"`
	Member        *discordgo.Member `json:"member,omitempty"`
	User          *discordgo.User   `json:"user,omitempty"`
	Token         string            `json:"token"`
	Data          ComponentData     `json:"data"`
}

type ComponentData struct {
	CustomID      string                  `json:"custom_id"`
	ComponentType discordgo.ComponentType `json:"component_type"`
	Values        []string                `json:"values,omitempty"`
}

// Autocomplete is an application command autocomplete request.
type Autocomplete struct {
	ID            snowflake.ID  `json:"id"`
	ApplicationID snowflake.ID  `json:"application_id"`
	GuildID       *snowflake.ID `json:"guild_id,omitempty"`
}

// ModalSubmit is the submission of a modal form.
type ModalSubmit struct {
	ID            snowflake.ID  `json:"id"`
	ApplicationID snowflake.ID  `json:"application_id"`
	GuildID       *snowflake.ID `json:"guild_id,omitempty"`
}

// Unsupported is any interaction whose discriminant has no variant. Kind is
// the discriminant as sent, which may not fit in a Type. Raw keeps the
// original payload.
type Unsupported struct {
	Kind int64
	Raw  json.RawMessage
}

func (*Ping) InteractionType() Type               { return TypePing }
func (*ApplicationCommand) InteractionType() Type { return TypeApplicationCommand }
func (*MessageComponent) InteractionType() Type   { return TypeMessageComponent }
func (*Autocomplete) InteractionType() Type       { return TypeAutocomplete }
func (*ModalSubmit) InteractionType() Type        { return TypeModalSubmit }

// InteractionType narrows Kind; discriminants outside the Type range map to 0.
func (u *Unsupported) InteractionType() Type {
	if u.Kind < 0 || u.Kind > math.MaxUint8 {
		return 0
	}
	return Type(u.Kind)
}

func (*Ping) sealed()               {}
func (*ApplicationCommand) sealed() {}
func (*MessageComponent) sealed()   {}
func (*Autocomplete) sealed()       {}
func (*ModalSubmit) sealed()        {}
func (*Unsupported) sealed()        {}

// Pong is the acknowledgement returned for a Ping.
func Pong() discordgo.InteractionResponse {
	return discordgo.InteractionResponse{Type: discordgo.InteractionResponsePong}
}
