package models

import "strings"

// Top-level namespaces. The relay seeds MessagesRoot and UsersRoot.
const (
	MessagesRoot = "messages"
	UsersRoot    = "users"
	PresenceRoot = "presence"
	ChannelsRoot = "channels"

	// Sentinel is the placeholder field that pre-creates a namespace.
	Sentinel = "initialized"

	DefaultChannel = "general"
)

// MessagesSoul is the node listing a channel's messages.
func MessagesSoul(channel string) string {
	return MessagesRoot + "/" + channel
}

// MessageSoul is the node holding one message.
func MessageSoul(channel, id string) string {
	return MessagesSoul(channel) + "/" + id
}

// ProfileSoul is the node holding a user's profile.
func ProfileSoul(username string) string {
	return UsersRoot + "/" + username
}

// PresenceSoul is the node holding a user's presence.
func PresenceSoul(username string) string {
	return PresenceRoot + "/" + username
}

// ChannelSoul is the node holding a channel record.
func ChannelSoul(name string) string {
	return ChannelsRoot + "/" + name
}

// AliasSoul maps a username to the public keys claiming it.
func AliasSoul(alias string) string {
	return "~@" + alias
}

// PubSoul is the node of one identity.
func PubSoul(pub string) string {
	return "~" + pub
}

// IsAliasSoul reports whether soul is an alias node.
func IsAliasSoul(soul string) bool {
	return strings.HasPrefix(soul, "~@")
}

// IsPubSoul reports whether soul is an identity node.
func IsPubSoul(soul string) bool {
	return strings.HasPrefix(soul, "~") && !IsAliasSoul(soul)
}
