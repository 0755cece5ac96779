package social

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bird_whisperer/internal/model"
)

const (
	defaultXBaseURL = "https://x.com/i/api/graphql"

	// Public bearer token of the x.com web client; requests are authorized by
	// the session cookies, not by this token.
	webBearerToken = "AAAAAAAAAAAAAAAAAAAAANRILgAAAAAAnNwIzUejRCOuH5E6I8xnZz4puTs%3D1Zv7ttfk8LF81IUq16cHjhLTvJu4FA33AGWWjCpTnA"

	defaultUserByScreenNameQuery = "xmU6X_CKVnQ5lSrCbAmJsg"
	defaultUserTweetsQuery       = "V7H0Ap3_Hh2FyS75OCDO3Q"

	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

var xFeatures = map[string]bool{
	"hidden_profile_subscriptions_enabled":                              true,
	"rweb_tipjar_consumption_enabled":                                   true,
	"responsive_web_graphql_exclude_directive_enabled":                  true,
	"verified_phone_label_enabled":                                      false,
	"subscriptions_verification_info_is_identity_verified_enabled":      true,
	"subscriptions_verification_info_verified_since_enabled":            true,
	"highlights_tweets_tab_ui_enabled":                                  true,
	"responsive_web_twitter_article_notes_tab_enabled":                  true,
	"creator_subscriptions_tweet_preview_api_enabled":                   true,
	"responsive_web_graphql_skip_user_profile_image_extensions_enabled": false,
	"responsive_web_graphql_timeline_navigation_enabled":                true,
	"longform_notetweets_consumption_enabled":                           true,
	"longform_notetweets_rich_text_read_enabled":                        true,
	"longform_notetweets_inline_media_enabled":                          true,
	"tweetypie_unmention_optimization_enabled":                          true,
	"view_counts_everywhere_api_enabled":                                true,
	"freedom_of_speech_not_reach_fetch_enabled":                         true,
	"standardized_nudges_misinfo":                                       true,
	"responsive_web_edit_tweet_api_enabled":                             true,
	"graphql_is_translatable_rweb_tweet_is_translatable_enabled":        true,
	"communities_web_enable_tweet_community_results_fetch":              true,
	"c9s_tweet_anatomy_moderator_badge_enabled":                         true,
	"articles_preview_enabled":                                          true,
	"tweet_awards_web_tipping_enabled":                                  false,
	"responsive_web_enhance_cards_enabled":                              false,
}

// XOptions configures the X client.
type XOptions struct {
	AuthToken string
	CT0       string
	// Query ids of the GraphQL operations; empty uses built-in defaults.
	UserByScreenNameQuery string
	UserTweetsQuery       string
	BaseURL               string
}

// X reads accounts and timelines from the x.com web GraphQL API using the
// cookies of a logged-in browser session.
type X struct {
	client HTTPClient
	opts   XOptions
	log    *slog.Logger
}

// NewX creates an X client.
func NewX(client HTTPClient, opts XOptions, log *slog.Logger) *X {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultXBaseURL
	}
	if opts.UserByScreenNameQuery == "" {
		opts.UserByScreenNameQuery = defaultUserByScreenNameQuery
	}
	if opts.UserTweetsQuery == "" {
		opts.UserTweetsQuery = defaultUserTweetsQuery
	}
	return &X{client: client, opts: opts, log: log}
}

// ResolveHandle returns the numeric account id of username.
func (x *X) ResolveHandle(ctx context.Context, username string) (string, error) {
	var resp struct {
		Data struct {
			User struct {
				Result *struct {
					Typename string `json:"__typename"`
					RestID   string `json:"rest_id"`
				} `json:"result"`
			} `json:"user"`
		} `json:"data"`
	}
	vars := map[string]any{
		"screen_name":              username,
		"withSafetyModeUserFields": true,
	}
	if err := x.call(ctx, x.opts.UserByScreenNameQuery, "UserByScreenName", vars, &resp); err != nil {
		return "", err
	}
	r := resp.Data.User.Result
	if r == nil || r.RestID == "" || r.Typename == "UserUnavailable" {
		return "", fmt.Errorf("resolve @%s: %w", username, ErrNotFound)
	}
	return r.RestID, nil
}

// RecentPosts returns up to limit posts from the account's profile timeline.
func (x *X) RecentPosts(ctx context.Context, accountID string, limit int) ([]model.Post, error) {
	var resp userTweetsResponse
	vars := map[string]any{
		"userId":                                 accountID,
		"count":                                  limit,
		"includePromotedContent":                 false,
		"withQuickPromoteEligibilityTweetFields": false,
		"withVoice":                              true,
		"withV2Timeline":                         true,
	}
	if err := x.call(ctx, x.opts.UserTweetsQuery, "UserTweets", vars, &resp); err != nil {
		return nil, err
	}
	return keepValid(resp.posts(), limit, x.log), nil
}

func (x *X) call(ctx context.Context, queryID, operation string, vars map[string]any, out any) error {
	varsJSON, err := json.Marshal(vars)
	if err != nil {
		return fmt.Errorf("marshal variables: %w", err)
	}
	featJSON, err := json.Marshal(xFeatures)
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}

	q := url.Values{}
	q.Set("variables", string(varsJSON))
	q.Set("features", string(featJSON))
	endpoint := fmt.Sprintf("%s/%s/%s?%s", x.opts.BaseURL, queryID, operation, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+webBearerToken)
	req.Header.Set("X-Csrf-Token", x.opts.CT0)
	req.Header.Set("Cookie", fmt.Sprintf("auth_token=%s; ct0=%s", x.opts.AuthToken, x.opts.CT0))
	req.Header.Set("X-Twitter-Auth-Type", "OAuth2Session")
	req.Header.Set("X-Twitter-Active-User", "yes")
	req.Header.Set("X-Twitter-Client-Language", "en")
	req.Header.Set("User-Agent", userAgent)

	resp, err := x.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: http get: %w", operation, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return fmt.Errorf("%s: read body: %w", operation, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", operation, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%s: unexpected status %d: %.200s", operation, resp.StatusCode, body)
	}

	var envelope struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("%s: decode response: %w", operation, err)
	}
	if len(envelope.Errors) > 0 && (len(envelope.Data) == 0 || string(envelope.Data) == "null") {
		return fmt.Errorf("%s: api error: %s", operation, envelope.Errors[0].Message)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", operation, err)
	}
	return nil
}

type userTweetsResponse struct {
	Data struct {
		User struct {
			Result struct {
				Timeline   *timelineWrapper `json:"timeline"`
				TimelineV2 *timelineWrapper `json:"timeline_v2"`
			} `json:"result"`
		} `json:"user"`
	} `json:"data"`
}

type timelineWrapper struct {
	Timeline struct {
		Instructions []instruction `json:"instructions"`
	} `json:"timeline"`
}

type instruction struct {
	Type    string  `json:"type"`
	Entries []entry `json:"entries"`
	Entry   *entry  `json:"entry"`
}

type entry struct {
	EntryID string `json:"entryId"`
	Content struct {
		ItemContent *itemContent `json:"itemContent"`
		Items       []struct {
			Item struct {
				ItemContent *itemContent `json:"itemContent"`
			} `json:"item"`
		} `json:"items"`
	} `json:"content"`
}

type itemContent struct {
	TweetResults struct {
		Result *tweetResult `json:"result"`
	} `json:"tweet_results"`
}

type tweetResult struct {
	Typename string       `json:"__typename"`
	RestID   string       `json:"rest_id"`
	Tweet    *tweetResult `json:"tweet"`
	Core     struct {
		UserResults struct {
			Result userResult `json:"result"`
		} `json:"user_results"`
	} `json:"core"`
	Legacy struct {
		IDStr     string `json:"id_str"`
		FullText  string `json:"full_text"`
		CreatedAt string `json:"created_at"`
	} `json:"legacy"`
	NoteTweet struct {
		NoteTweetResults struct {
			Result struct {
				Text string `json:"text"`
			} `json:"result"`
		} `json:"note_tweet_results"`
	} `json:"note_tweet"`
	QuotedStatusResult *struct {
		Result *tweetResult `json:"result"`
	} `json:"quoted_status_result"`
}

type userResult struct {
	Legacy struct {
		ScreenName string `json:"screen_name"`
	} `json:"legacy"`
	Core struct {
		ScreenName string `json:"screen_name"`
	} `json:"core"`
}

func (u userResult) screenName() string {
	if u.Core.ScreenName != "" {
		return u.Core.ScreenName
	}
	return u.Legacy.ScreenName
}

// unwrap returns the tweet inside a visibility wrapper.
func (t *tweetResult) unwrap() *tweetResult {
	if t != nil && t.Typename == "TweetWithVisibilityResults" && t.Tweet != nil {
		return t.Tweet
	}
	return t
}

func (t *tweetResult) id() string {
	if t.RestID != "" {
		return t.RestID
	}
	return t.Legacy.IDStr
}

func (t *tweetResult) text() string {
	if s := t.NoteTweet.NoteTweetResults.Result.Text; s != "" {
		return s
	}
	return t.Legacy.FullText
}

func (r *userTweetsResponse) posts() []model.Post {
	tl := r.Data.User.Result.TimelineV2
	if tl == nil {
		tl = r.Data.User.Result.Timeline
	}
	if tl == nil {
		return nil
	}

	var posts []model.Post
	add := func(ic *itemContent) {
		if ic == nil {
			return
		}
		t := ic.TweetResults.Result.unwrap()
		if t == nil || t.Typename == "TweetTombstone" || t.id() == "" {
			return
		}
		posts = append(posts, toPost(t))
	}

	for _, ins := range tl.Timeline.Instructions {
		entries := ins.Entries
		if ins.Entry != nil {
			entries = append(entries, *ins.Entry)
		}
		for _, e := range entries {
			add(e.Content.ItemContent)
			for _, it := range e.Content.Items {
				add(it.Item.ItemContent)
			}
		}
	}
	return posts
}

func toPost(t *tweetResult) model.Post {
	p := model.Post{
		ID:   t.id(),
		Text: t.text(),
	}
	if ts, err := time.Parse(time.RubyDate, strings.TrimSpace(t.Legacy.CreatedAt)); err == nil {
		p.CreatedAt = ts.UTC()
	}
	if t.QuotedStatusResult != nil {
		if q := t.QuotedStatusResult.Result.unwrap(); q != nil && q.text() != "" {
			p.Quoted = &model.QuotedPost{
				Text:   q.text(),
				Author: q.Core.UserResults.Result.screenName(),
			}
		}
	}
	return p
}
