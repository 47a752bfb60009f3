// Chatbot-admin is the operator tool for the chatbot database.
//
// Usage:
//
//	# List the most recently active sessions
//	chatbot-admin sessions --limit 20
//
//	# Show message and token counts for a session
//	chatbot-admin stats <session-id>
//
//	# Clear one conversation, or all of them, keeping each persona
//	chatbot-admin clear <session-id>
//	chatbot-admin clear --all
//
//	# Delete sessions permanently and retire their ids
//	chatbot-admin wipe <session-id>
//	chatbot-admin wipe --all --yes
//
//	# Snapshot the database
//	chatbot-admin backup [path]
//
//	# Inspect or change the persona used for new sessions
//	chatbot-admin prompt get
//	chatbot-admin prompt set "You are a helpful assistant."
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
