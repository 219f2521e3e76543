// Package event defines the typed events the client produces from raw chat
// protocol lines.
package event

import "strings"

// Command identifies the kind of a decoded chat event. Values mirror the
// wire-level command tokens so logs and metrics read the same as raw traffic.
type Command string

// Commands recognized by the codec. Any well-formed line whose command token
// is not listed here (numerics included) decodes to CommandUnknown.
const (
	CommandPrivMsg    Command = "PRIVMSG"
	CommandJoin       Command = "JOIN"
	CommandPart       Command = "PART"
	CommandNotice     Command = "NOTICE"
	CommandPing       Command = "PING"
	CommandWhisper    Command = "WHISPER"
	CommandMode       Command = "MODE"
	CommandClearChat  Command = "CLEARCHAT"
	CommandHostTarget Command = "HOSTTARGET"
	CommandReconnect  Command = "RECONNECT"
	CommandRoomState  Command = "ROOMSTATE"
	CommandUserNotice Command = "USERNOTICE"
	CommandUserState  Command = "USERSTATE"
	CommandUnknown    Command = "UNKNOWN"
)

// known is the set of command tokens that map to a dedicated Command value.
var known = map[string]Command{
	"PRIVMSG":    CommandPrivMsg,
	"JOIN":       CommandJoin,
	"PART":       CommandPart,
	"NOTICE":     CommandNotice,
	"PING":       CommandPing,
	"WHISPER":    CommandWhisper,
	"MODE":       CommandMode,
	"CLEARCHAT":  CommandClearChat,
	"HOSTTARGET": CommandHostTarget,
	"RECONNECT":  CommandReconnect,
	"ROOMSTATE":  CommandRoomState,
	"USERNOTICE": CommandUserNotice,
	"USERSTATE":  CommandUserState,
}

// CommandFromToken maps a wire command token to its Command value.
// Matching is case-sensitive: the protocol sends commands in upper case and
// a lower-cased token is not the same command. Unlisted tokens map to
// CommandUnknown with ok=false.
func CommandFromToken(token string) (Command, bool) {
	if cmd, ok := known[token]; ok {
		return cmd, true
	}
	return CommandUnknown, false
}

// Event is one decoded protocol occurrence delivered through the event queue
// and to subscribers. Exactly two concrete types implement it: ChatEvent for
// lines matching the base grammar and MalformedEvent for lines that do not.
type Event interface {
	// RawLine returns the original unparsed protocol line. Never empty.
	RawLine() string
}

// ChatEvent is an immutable decoded chat protocol line. Fields the line's
// grammar does not supply are left as empty strings (nil for Tags).
type ChatEvent struct {
	// Command is the decoded kind; CommandUnknown for recognized-but-
	// unclassified tokens such as server numerics.
	Command Command

	// Nickname is the originating user, empty for server-level events.
	Nickname string

	// Channel is the target channel including its '#' prefix, if any.
	Channel string

	// Message is the free-text payload, if any.
	Message string

	// Mode carries the mode change ("+o"/"-o") for MODE events.
	Mode string

	// Tags holds IRCv3 message tags when the line carried an @-prefix.
	Tags map[string]string

	// Raw is the original line as received, retained for diagnostics and
	// forward compatibility.
	Raw string
}

// RawLine implements Event.
func (e ChatEvent) RawLine() string { return e.Raw }

// Tag returns the value of an IRCv3 tag and whether it was present.
func (e ChatEvent) Tag(key string) (string, bool) {
	v, ok := e.Tags[key]
	return v, ok
}

// MalformedEvent signals a protocol line that matched no known grammar at
// all. It flows through the same queue and subscriber channels as ChatEvent
// so applications can detect protocol drift without the engine crashing.
type MalformedEvent struct {
	// Raw is the offending line, preserved exactly.
	Raw string
}

// RawLine implements Event.
func (e MalformedEvent) RawLine() string { return e.Raw }

// ParseTags parses an IRCv3 tag segment ("key=value;key2=value2") into a
// map. The leading '@' must already be stripped. Keys without '=' get an
// empty value, matching how the chat service emits boolean tags.
func ParseTags(segment string) map[string]string {
	if segment == "" {
		return nil
	}
	tags := make(map[string]string)
	for _, pair := range strings.Split(segment, ";") {
		if pair == "" {
			continue
		}
		if idx := strings.IndexByte(pair, '='); idx >= 0 {
			tags[pair[:idx]] = pair[idx+1:]
		} else {
			tags[pair] = ""
		}
	}
	return tags
}
