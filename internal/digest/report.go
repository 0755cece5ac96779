package digest

import "time"

// Status is the outcome of a run for one user.
type Status string

// User outcomes.
const (
	StatusSent        Status = "sent"
	StatusAlreadySent Status = "already_sent"
	StatusNoContent   Status = "no_content"
	StatusFailed      Status = "failed"
)

// UserReport summarizes what a run did for one user.
type UserReport struct {
	Email    string
	Status   Status
	Handles  int
	Posts    int
	Trending bool
	Error    string
}

// Report summarizes one run.
type Report struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Users      []UserReport
}

// Count returns how many users ended with status s.
func (r *Report) Count(s Status) int {
	n := 0
	for _, u := range r.Users {
		if u.Status == s {
			n++
		}
	}
	return n
}
