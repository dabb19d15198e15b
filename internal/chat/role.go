package chat

import "github.com/suPer8Hu/gopherchat/internal/ai"

// Role is the sender of a turn. The zero value is RoleUnknown.
type Role uint8

const (
	RoleUnknown Role = iota
	RoleHuman
	RoleAssistant
)

// Sender tags as stored in chat_messages.sender.
const (
	senderHuman     = "human"
	senderAssistant = "ai"
)

// ParseRole decodes a stored sender tag. Anything other than the two known
// tags is RoleUnknown; it is never mapped onto a known role.
func ParseRole(tag string) Role {
	switch tag {
	case senderHuman:
		return RoleHuman
	case senderAssistant:
		return RoleAssistant
	default:
		return RoleUnknown
	}
}

func (r Role) Known() bool {
	return r == RoleHuman || r == RoleAssistant
}

// Tag is the sender value written to storage.
func (r Role) Tag() string {
	switch r {
	case RoleHuman:
		return senderHuman
	case RoleAssistant:
		return senderAssistant
	default:
		return "unknown"
	}
}

func (r Role) String() string { return r.Tag() }

// wireRole is the provider-side role name.
func (r Role) wireRole() (string, bool) {
	switch r {
	case RoleHuman:
		return ai.RoleUser, true
	case RoleAssistant:
		return ai.RoleAssistant, true
	default:
		return "", false
	}
}
