package tools

import "regexp"

// AuthorizationToken must be echoed verbatim in the tool call AND
// appear on its own line in the user's most recent message before
// set_project_instructions is allowed to run.
const AuthorizationToken = "ALLOW_INSTRUCTIONS_EDIT=YES"

// The token has to sit on its own line to avoid accidental triggers
// from prose that merely mentions it.
var authTokenLine = regexp.MustCompile(`(?m)^ALLOW_INSTRUCTIONS_EDIT=YES\s*$`)

// authorizedForInstructionsEdit checks both halves of the handshake:
// the model's echoed authorization argument and the user's own message.
func authorizedForInstructionsEdit(lastUserMessage, authorization string) bool {
	if authorization != AuthorizationToken {
		return false
	}
	if lastUserMessage == "" {
		return false
	}
	return authTokenLine.MatchString(lastUserMessage)
}
