package models

// Role represents the role of a message participant as seen by the browser and the relay.
type Role string

// UpstreamRole represents the role of a message in the completion API request.
type UpstreamRole string

const (
	// RoleUser represents a message typed by the user.
	RoleUser Role = "user"
	// RoleAI represents a message streamed back from the model.
	RoleAI Role = "ai"

	UpstreamRoleSystem    UpstreamRole = "system"
	UpstreamRoleUser      UpstreamRole = "user"
	UpstreamRoleAssistant UpstreamRole = "assistant"
)

// UpstreamRole maps a conversation role to the role understood by completion APIs. Only "ai"
// becomes "assistant"; everything else is sent as "user".
func (r Role) UpstreamRole() UpstreamRole {
	if r == RoleAI {
		return UpstreamRoleAssistant
	}
	return UpstreamRoleUser
}
