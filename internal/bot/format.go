package bot

import (
	"fmt"
	"strings"
	"time"

	"bird_whisperer/internal/app"
	"bird_whisperer/internal/config"
	"bird_whisperer/internal/digest"
)

// FormatRunResult formats a finished run for display.
func FormatRunResult(res *app.RunResult) string {
	if res == nil {
		return "No digest run has finished yet."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Run %s (%s)\n", res.ID, res.Trigger)
	fmt.Fprintf(&b, "Started: %s\n", res.StartedAt.Format("2006-01-02 15:04 UTC"))
	if !res.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "Took: %s\n", res.FinishedAt.Sub(res.StartedAt).Round(time.Second))
	}
	if res.Report != nil {
		b.WriteString("\n")
		b.WriteString(formatReport(res.Report))
	}
	if res.Err != nil {
		fmt.Fprintf(&b, "\nError: %v", res.Err)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatFailure formats the report sent to the operator when a run fails.
// res may be nil when the run failed before producing a result.
func FormatFailure(res *app.RunResult, err error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Digest run failed: %v", err)
	if res == nil {
		return b.String()
	}
	fmt.Fprintf(&b, "\nRun: %s", res.ID)
	if res.Report == nil {
		return b.String()
	}
	for _, u := range res.Report.Users {
		if u.Status != digest.StatusFailed {
			continue
		}
		fmt.Fprintf(&b, "\n%s: %s", u.Email, u.Error)
	}
	return b.String()
}

func formatReport(r *digest.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "sent %d, already sent %d, no content %d, failed %d\n",
		r.Count(digest.StatusSent),
		r.Count(digest.StatusAlreadySent),
		r.Count(digest.StatusNoContent),
		r.Count(digest.StatusFailed),
	)
	for _, u := range r.Users {
		fmt.Fprintf(&b, "\n%s: %s", u.Email, u.Status)
		switch u.Status {
		case digest.StatusSent:
			fmt.Fprintf(&b, " (%d handles, %s)", u.Handles, plural(u.Posts, "post"))
			if u.Trending {
				b.WriteString(" +trending")
			}
		case digest.StatusFailed:
			fmt.Fprintf(&b, ": %s", u.Error)
		}
	}
	b.WriteString("\n")
	return b.String()
}

// FormatFollows formats the recipients and followed accounts of a declaration.
func FormatFollows(d *config.Digest) string {
	if len(d.Users) == 0 {
		return "The declaration has no recipients."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "LLM: %s %s\n", d.LLM.Provider, d.LLM.Model)
	for _, u := range d.Users {
		fmt.Fprintf(&b, "\n%s\n", strings.Join(u.Emails, ", "))
		if len(u.Follows) == 0 {
			b.WriteString("   no follows\n")
			continue
		}
		names := make([]string, len(u.Follows))
		for i, f := range u.Follows {
			names[i] = "@" + f.Username
		}
		fmt.Fprintf(&b, "   %s\n", strings.Join(names, " "))
	}
	return b.String()
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
