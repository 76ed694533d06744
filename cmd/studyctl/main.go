// Studyctl talks to a studygate gateway from the command line.
//
// Usage:
//
//	# Stream one chat turn
//	studyctl stream "Explain the chain rule"
//
//	# Continue a chat
//	studyctl stream --chat <chat-id> "And the product rule?"
//
//	# One-shot completion without persistence
//	studyctl complete "Summarize photosynthesis in one line"
//
// STUDYGATE_URL and STUDYGATE_TOKEN provide the defaults for --url and --token.
package main

func main() {
	Execute()
}
