// Package irc implements the line codec for the Twitch chat protocol: pure
// functions that encode outgoing commands into wire lines and decode incoming
// wire lines into typed events. The codec performs no I/O and holds no state.
package irc

import (
	"fmt"
	"strings"

	"github.com/joshuaskelly/twitch-observer/event"
)

// LineTerminator is appended to every encoded line as the protocol requires.
const LineTerminator = "\r\n"

// Decode parses one incoming protocol line into an event. The grammar is
//
//	[@tags ][:prefix ]COMMAND params [:trailing]
//
// where the command token is one or more upper-case letters or a 3-digit
// numeric. Lines from which no command token can be extracted decode to
// event.MalformedEvent with the raw line preserved exactly; they never fail.
// Trailing CR/LF and whitespace are tolerated.
func Decode(line string) event.Event {
	raw := line
	rest := strings.TrimRight(line, "\r\n \t")
	if rest == "" {
		return event.MalformedEvent{Raw: raw}
	}

	var tags map[string]string
	if strings.HasPrefix(rest, "@") {
		segment, remainder, found := strings.Cut(rest[1:], " ")
		if !found {
			return event.MalformedEvent{Raw: raw}
		}
		tags = event.ParseTags(segment)
		rest = strings.TrimLeft(remainder, " ")
	}

	var nickname string
	if strings.HasPrefix(rest, ":") {
		prefix, remainder, found := strings.Cut(rest[1:], " ")
		if !found {
			return event.MalformedEvent{Raw: raw}
		}
		nickname = nicknameFromPrefix(prefix)
		rest = strings.TrimLeft(remainder, " ")
	}

	token, params, _ := strings.Cut(rest, " ")
	if !validCommandToken(token) {
		return event.MalformedEvent{Raw: raw}
	}
	params = strings.TrimLeft(params, " ")

	cmd, _ := event.CommandFromToken(token)
	ev := event.ChatEvent{
		Command:  cmd,
		Nickname: nickname,
		Tags:     tags,
		Raw:      raw,
	}

	switch cmd {
	case event.CommandJoin, event.CommandPart, event.CommandUserState,
		event.CommandRoomState, event.CommandClearChat:
		channel, trailing := splitTrailing(params)
		ev.Channel = channel
		ev.Message = trailing

	case event.CommandPrivMsg, event.CommandNotice, event.CommandHostTarget,
		event.CommandUserNotice:
		channel, trailing := splitTrailing(params)
		ev.Channel = channel
		ev.Message = trailing

	case event.CommandWhisper:
		// The first parameter is the whisper recipient (our own nick);
		// only the text is interesting.
		_, trailing := splitTrailing(params)
		ev.Message = trailing

	case event.CommandMode:
		ev.Channel, ev.Mode, ev.Nickname = splitMode(params)

	case event.CommandPing:
		if trailing, found := strings.CutPrefix(params, ":"); found {
			ev.Message = trailing
		} else {
			ev.Message = params
		}
	}

	return ev
}

// nicknameFromPrefix extracts the user nickname from a message prefix such
// as "nick!user@host.tmi.twitch.tv". Server prefixes ("tmi.twitch.tv") have
// no '!' and yield an empty nickname.
func nicknameFromPrefix(prefix string) string {
	if idx := strings.IndexByte(prefix, '!'); idx >= 0 {
		return prefix[:idx]
	}
	return ""
}

// validCommandToken reports whether token is a protocol command: one or more
// upper-case ASCII letters, or exactly three digits (server numerics).
// Matching is case-sensitive on purpose.
func validCommandToken(token string) bool {
	if token == "" {
		return false
	}
	digits := true
	for i := 0; i < len(token); i++ {
		c := token[i]
		if c < '0' || c > '9' {
			digits = false
			break
		}
	}
	if digits {
		return len(token) == 3
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}

// splitTrailing splits "first [:trailing]" parameters. The first parameter
// is returned verbatim (channels keep their '#'); the trailing segment may
// be empty.
func splitTrailing(params string) (first, trailing string) {
	first, rest, found := strings.Cut(params, " ")
	if !found {
		return first, ""
	}
	rest = strings.TrimLeft(rest, " ")
	if after, ok := strings.CutPrefix(rest, ":"); ok {
		return first, after
	}
	return first, rest
}

// splitMode parses MODE parameters "#chan +o nick".
func splitMode(params string) (channel, mode, nickname string) {
	fields := strings.Fields(params)
	if len(fields) >= 1 {
		channel = fields[0]
	}
	if len(fields) >= 2 {
		mode = fields[1]
	}
	if len(fields) >= 3 {
		nickname = fields[2]
	}
	return channel, mode, nickname
}

// normalizeChannel ensures a channel name carries its '#' prefix. Callers
// may pass either "roomname" or "#roomname".
func normalizeChannel(channel string) string {
	if channel == "" || strings.HasPrefix(channel, "#") {
		return channel
	}
	return "#" + channel
}

// Message encodes a chat message to a channel.
func Message(channel, text string) string {
	return fmt.Sprintf("PRIVMSG %s :%s%s", normalizeChannel(channel), text, LineTerminator)
}

// Join encodes a channel join request.
func Join(channel string) string {
	return fmt.Sprintf("JOIN %s%s", normalizeChannel(channel), LineTerminator)
}

// Part encodes a channel leave request.
func Part(channel string) string {
	return fmt.Sprintf("PART %s%s", normalizeChannel(channel), LineTerminator)
}

// Pong encodes a keepalive reply carrying the probe's token.
func Pong(token string) string {
	return fmt.Sprintf("PONG :%s%s", token, LineTerminator)
}

// Pass encodes the credential line of the authentication handshake.
func Pass(token string) string {
	return fmt.Sprintf("PASS %s%s", token, LineTerminator)
}

// Nick encodes the nickname line of the authentication handshake.
func Nick(nick string) string {
	return fmt.Sprintf("NICK %s%s", nick, LineTerminator)
}

// CapReq encodes a capability request such as "twitch.tv/tags".
func CapReq(capability string) string {
	return fmt.Sprintf("CAP REQ :%s%s", capability, LineTerminator)
}
