// Package domain defines the core domain models for the chat relay.
package domain

// Role represents the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the recognized roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// ConversationRoles are the roles shown to end users.
var ConversationRoles = []Role{RoleUser, RoleAssistant}

// SettingSystemPrompt is the settings key that overrides the configured persona.
const SettingSystemPrompt = "system_prompt"
