// Package address implements the channel naming scheme shared by every
// courier client on a transport. A logical (namespace, sender, recipient,
// kind, correlation id) tuple is encoded into a delimited channel name, and
// incoming channel names are decoded back into typed addresses.
//
// The format is a wire contract between independent processes. Changing any
// shape here requires a namespace bump, since heterogeneous clients may share
// one transport.
package address

import (
	"errors"
	"strconv"
	"strings"
)

// Delimiter separates the fields of a channel name. Dynamic fields are
// escaped so the delimiter can never appear inside them.
const Delimiter = ":"

// roomLiteral is the reserved second field that marks a room channel.
const roomLiteral = "room"

// responseLiteral is the trailing field that marks a direct response.
const responseLiteral = "r"

// ErrMalformed is returned by the Decode functions when a channel does not
// have the expected shape. Callers are expected to drop such channels
// silently; shared transports routinely deliver near-matches from other
// namespaces.
var ErrMalformed = errors.New("address: malformed channel")

// Direct is a decoded point-to-point channel:
// ns:recipient:sender:correlationId[:r]
type Direct struct {
	Namespace     string
	Recipient     string
	Sender        string
	CorrelationID uint64
	// Response is true when the channel carries a reply to an earlier send
	// rather than a fresh message.
	Response bool
}

// Broadcast is a decoded namespace-wide channel: ns::broadcastType::sender
type Broadcast struct {
	Namespace string
	Kind      string
	Sender    string
}

// Room is a decoded group channel: ns:room:roomName:sender:correlationId
type Room struct {
	Namespace     string
	Room          string
	Sender        string
	CorrelationID uint64
}

// Escape makes a dynamic field safe to embed in a channel name. The scheme is
// reversible for every input string: "%" is rewritten before ":" so that the
// placeholder itself survives a round trip.
func Escape(s string) string {
	s = strings.ReplaceAll(s, "%", "%p")
	return strings.ReplaceAll(s, Delimiter, "%c")
}

// Unescape reverses Escape. Unescape(Escape(s)) == s for all s.
func Unescape(s string) string {
	s = strings.ReplaceAll(s, "%c", Delimiter)
	return strings.ReplaceAll(s, "%p", "%")
}

// EncodeDirect builds the channel name for a point-to-point message. When
// response is true the channel addresses the reply leg of an exchange and
// carries the trailing response marker.
func EncodeDirect(namespace, recipient, sender string, correlationID uint64, response bool) string {
	channel := Escape(namespace) + Delimiter +
		Escape(recipient) + Delimiter +
		Escape(sender) + Delimiter +
		strconv.FormatUint(correlationID, 10)
	if response {
		channel += Delimiter + responseLiteral
	}
	return channel
}

// EncodeBroadcast builds the channel name for a namespace-wide announcement.
// Broadcast channels use a doubled delimiter so receivers can split them
// unambiguously without counting fields.
func EncodeBroadcast(namespace, kind, sender string) string {
	return Escape(namespace) + Delimiter + Delimiter +
		Escape(kind) + Delimiter + Delimiter +
		Escape(sender)
}

// EncodeRoom builds the channel name for a room-scoped message.
func EncodeRoom(namespace, room, sender string, correlationID uint64) string {
	return Escape(namespace) + Delimiter +
		roomLiteral + Delimiter +
		Escape(room) + Delimiter +
		Escape(sender) + Delimiter +
		strconv.FormatUint(correlationID, 10)
}

// DecodeDirect parses a direct-shape channel. The namespace is returned
// unescaped; the caller is responsible for checking it (and the recipient)
// against its own identity.
func DecodeDirect(channel string) (Direct, error) {
	fields := strings.Split(channel, Delimiter)
	if len(fields) < 4 {
		return Direct{}, ErrMalformed
	}
	id, err := strconv.ParseUint(fields[3], 10, 64)
	if err != nil {
		return Direct{}, ErrMalformed
	}
	return Direct{
		Namespace:     Unescape(fields[0]),
		Recipient:     Unescape(fields[1]),
		Sender:        Unescape(fields[2]),
		CorrelationID: id,
		Response:      len(fields) >= 5 && fields[4] == responseLiteral,
	}, nil
}

// DecodeBroadcast parses a broadcast-shape channel by splitting on the
// doubled delimiter.
func DecodeBroadcast(channel string) (Broadcast, error) {
	fields := strings.Split(channel, Delimiter+Delimiter)
	if len(fields) < 3 {
		return Broadcast{}, ErrMalformed
	}
	return Broadcast{
		Namespace: Unescape(fields[0]),
		Kind:      Unescape(fields[1]),
		Sender:    Unescape(fields[2]),
	}, nil
}

// DecodeRoom parses a room-shape channel.
func DecodeRoom(channel string) (Room, error) {
	fields := strings.Split(channel, Delimiter)
	if len(fields) < 5 || fields[1] != roomLiteral {
		return Room{}, ErrMalformed
	}
	id, err := strconv.ParseUint(fields[4], 10, 64)
	if err != nil {
		return Room{}, ErrMalformed
	}
	return Room{
		Namespace:     Unescape(fields[0]),
		Room:          Unescape(fields[2]),
		Sender:        Unescape(fields[3]),
		CorrelationID: id,
	}, nil
}

// DirectPattern is the subscription pattern that matches every direct message
// and response addressed to the given identity.
func DirectPattern(namespace, identity string) string {
	return Escape(namespace) + Delimiter + Escape(identity) + Delimiter + "*"
}

// BroadcastPattern is the subscription pattern that matches every broadcast
// in the namespace.
func BroadcastPattern(namespace string) string {
	return Escape(namespace) + Delimiter + Delimiter + "*"
}

// RoomPattern is the subscription pattern that matches every message sent to
// the given room.
func RoomPattern(namespace, room string) string {
	return Escape(namespace) + Delimiter + roomLiteral + Delimiter + Escape(room) + Delimiter + "*"
}

// RoomPatternPrefix is the prefix shared by all room subscription patterns in
// a namespace. The dispatcher uses it to classify an incoming notification as
// room traffic before decoding.
func RoomPatternPrefix(namespace string) string {
	return Escape(namespace) + Delimiter + roomLiteral + Delimiter
}
