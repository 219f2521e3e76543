package irc

import "fmt"

// Templates holds the slash-command formats used for whispers and moderation
// actions. Twitch delivers these as specially formatted PRIVMSG payloads and
// the exact formats are service-defined and undocumented, so they are
// configurable rather than hard-coded. Each format is a fmt.Sprintf template.
type Templates struct {
	// ServiceChannel is the channel whispers are sent through when no user
	// channel applies.
	ServiceChannel string `json:"service_channel"`

	Whisper string `json:"whisper"` // two args: user, text
	Ban     string `json:"ban"`     // one arg: user
	Unban   string `json:"unban"`   // one arg: user
	Clear   string `json:"clear"`   // no args
	Mods    string `json:"mods"`    // no args
}

// DefaultTemplates returns the formats the chat service conventionally
// accepts.
func DefaultTemplates() Templates {
	return Templates{
		ServiceChannel: "#jtv",
		Whisper:        "/w %s %s",
		Ban:            "/ban %s",
		Unban:          "/unban %s",
		Clear:          "/clear",
		Mods:           "/mods",
	}
}

// merged returns t with empty fields filled from the defaults, so a partial
// config override keeps the remaining conventions.
func (t Templates) merged() Templates {
	def := DefaultTemplates()
	if t.ServiceChannel == "" {
		t.ServiceChannel = def.ServiceChannel
	}
	if t.Whisper == "" {
		t.Whisper = def.Whisper
	}
	if t.Ban == "" {
		t.Ban = def.Ban
	}
	if t.Unban == "" {
		t.Unban = def.Unban
	}
	if t.Clear == "" {
		t.Clear = def.Clear
	}
	if t.Mods == "" {
		t.Mods = def.Mods
	}
	return t
}

// WhisperLine encodes a whisper to a user, carried as a PRIVMSG to the
// service channel.
func (t Templates) WhisperLine(user, text string) string {
	t = t.merged()
	return Message(t.ServiceChannel, fmt.Sprintf(t.Whisper, user, text))
}

// BanLine encodes a ban command against a user in a channel.
func (t Templates) BanLine(user, channel string) string {
	t = t.merged()
	return Message(channel, fmt.Sprintf(t.Ban, user))
}

// UnbanLine encodes an unban command against a user in a channel.
func (t Templates) UnbanLine(user, channel string) string {
	t = t.merged()
	return Message(channel, fmt.Sprintf(t.Unban, user))
}

// ClearLine encodes a clear-chat command for a channel.
func (t Templates) ClearLine(channel string) string {
	t = t.merged()
	return Message(channel, t.Clear)
}

// ModsLine encodes a list-moderators command for a channel.
func (t Templates) ModsLine(channel string) string {
	t = t.merged()
	return Message(channel, t.Mods)
}
