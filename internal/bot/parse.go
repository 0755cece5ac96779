package bot

import (
	"fmt"
	"strings"
)

// LastSeenArgs holds the parsed arguments of /lastseen.
type LastSeenArgs struct {
	Email    string
	Username string
}

// ParseLastSeenArgs parses arguments for /lastseen.
// Format: <primary_email> <username|@username>
func ParseLastSeenArgs(args string) (LastSeenArgs, error) {
	parts := strings.Fields(args)
	if len(parts) != 2 {
		return LastSeenArgs{}, fmt.Errorf("usage: /lastseen <email> <username>")
	}

	email := strings.TrimSpace(parts[0])
	if !strings.Contains(email, "@") || strings.HasPrefix(email, "@") {
		return LastSeenArgs{}, fmt.Errorf("invalid email %q", email)
	}

	username := strings.TrimPrefix(parts[1], "@")
	if username == "" {
		return LastSeenArgs{}, fmt.Errorf("username must not be empty")
	}

	return LastSeenArgs{Email: email, Username: username}, nil
}
