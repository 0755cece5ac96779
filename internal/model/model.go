// Package model defines the domain types used across the application.
package model

import (
	"fmt"
	"math/big"
	"time"
)

// Post is a single post fetched from a followed account.
type Post struct {
	// ID is an unsigned decimal integer that grows over time for a given source.
	ID   string
	Text string
	// CreatedAt is zero when the source did not provide a usable timestamp.
	CreatedAt time.Time
	Quoted    *QuotedPost
}

// QuotedPost is the post embedded in a quote. Only one level is kept.
type QuotedPost struct {
	Text   string
	Author string
}

// HandlePosts groups the new posts of one followed account.
type HandlePosts struct {
	Username string
	Posts    []Post
}

// HandleSummary is the rendered digest section for one followed account.
type HandleSummary struct {
	Username    string
	SummaryHTML string
	Links       []string
	PostCount   int
}

// ParseID parses a post identifier as an unsigned arbitrary-precision integer.
func ParseID(id string) (*big.Int, error) {
	if !allDigits(id) {
		return nil, fmt.Errorf("invalid post id %q", id)
	}
	n, ok := new(big.Int).SetString(id, 10)
	if !ok {
		return nil, fmt.Errorf("invalid post id %q", id)
	}
	return n, nil
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ValidID reports whether id is an unsigned decimal integer.
func ValidID(id string) bool {
	_, err := ParseID(id)
	return err == nil
}

// CompareIDs compares two post identifiers numerically.
// It returns -1 if a < b, 0 if a == b and +1 if a > b.
func CompareIDs(a, b string) (int, error) {
	x, err := ParseID(a)
	if err != nil {
		return 0, err
	}
	y, err := ParseID(b)
	if err != nil {
		return 0, err
	}
	return x.Cmp(y), nil
}

// MaxID returns the numerically largest identifier among posts.
func MaxID(posts []Post) (string, error) {
	if len(posts) == 0 {
		return "", fmt.Errorf("no posts")
	}
	var (
		maxID  = posts[0].ID
		maxVal *big.Int
	)
	for _, p := range posts {
		v, err := ParseID(p.ID)
		if err != nil {
			return "", err
		}
		if maxVal == nil || v.Cmp(maxVal) > 0 {
			maxID, maxVal = p.ID, v
		}
	}
	return maxID, nil
}

// Permalink returns the canonical URL of a post by username.
func Permalink(username, id string) string {
	return "https://x.com/" + username + "/status/" + id
}

// ProfileURL returns the canonical URL of an account.
func ProfileURL(username string) string {
	return "https://x.com/" + username
}
