package social

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	logpkg "github.com/benvon/situation-monitor/internal/logger"
)

const (
	// DefaultXBaseURL is the public API host used by the web client.
	DefaultXBaseURL = "https://api.x.com"
	// DefaultTimelineCount is how many posts are requested per timeline fetch.
	DefaultTimelineCount = 20

	defaultUserByScreenNameQueryID = "xmU6X_CKVnQ5lSrCbAmJsg"
	defaultUserTweetsQueryID       = "E3opETHurmVJflFsUBVuUQ"

	// Guest tokens are valid for a few hours; refresh well before that.
	guestTokenTTL = 2 * time.Hour
	maxBodyBytes  = 8 << 20
)

// GraphQL feature flags the endpoints insist on. Unknown flags are ignored upstream.
var graphQLFeatures = map[string]bool{
	"hidden_profile_subscriptions_enabled":                              true,
	"responsive_web_graphql_exclude_directive_enabled":                  true,
	"verified_phone_label_enabled":                                      false,
	"highlights_tweets_tab_ui_enabled":                                  true,
	"creator_subscriptions_tweet_preview_api_enabled":                   true,
	"responsive_web_graphql_skip_user_profile_image_extensions_enabled": false,
	"responsive_web_graphql_timeline_navigation_enabled":                true,
	"view_counts_everywhere_api_enabled":                                true,
	"longform_notetweets_consumption_enabled":                           true,
	"tweet_awards_web_tipping_enabled":                                  false,
	"freedom_of_speech_not_reach_fetch_enabled":                         true,
	"standardized_nudges_misinfo":                                       true,
	"longform_notetweets_rich_text_read_enabled":                        true,
	"responsive_web_enhance_cards_enabled":                              false,
}

// XClient reads public data from X (Twitter) in guest mode.
type XClient struct {
	httpClient       *http.Client
	baseURL          string
	bearerToken      string
	userQueryID      string
	timelineQueryID  string
	timelineCount    int
	logger           *zap.Logger
	now              func() time.Time
	mu               sync.Mutex
	guestToken       string
	guestTokenExpiry time.Time
}

// XOption customizes an XClient.
type XOption func(*XClient)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) XOption {
	return func(x *XClient) { x.httpClient = c }
}

// WithQueryIDs overrides the GraphQL query ids, which X rotates periodically.
func WithQueryIDs(userByScreenName, userTweets string) XOption {
	return func(x *XClient) {
		if userByScreenName != "" {
			x.userQueryID = userByScreenName
		}
		if userTweets != "" {
			x.timelineQueryID = userTweets
		}
	}
}

// WithTimelineCount sets how many posts a timeline fetch asks for.
func WithTimelineCount(n int) XOption {
	return func(x *XClient) {
		if n > 0 {
			x.timelineCount = n
		}
	}
}

// NewXClient creates a guest-mode client. bearerToken is the web client's public app token.
func NewXClient(baseURL, bearerToken string, logger *zap.Logger, opts ...XOption) (*XClient, error) {
	if bearerToken == "" {
		return nil, fmt.Errorf("social bearer token is required")
	}
	if baseURL == "" {
		baseURL = DefaultXBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	x := &XClient{
		httpClient:      &http.Client{Timeout: 20 * time.Second},
		baseURL:         strings.TrimRight(baseURL, "/"),
		bearerToken:     bearerToken,
		userQueryID:     defaultUserByScreenNameQueryID,
		timelineQueryID: defaultUserTweetsQueryID,
		timelineCount:   DefaultTimelineCount,
		logger:          logger,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x, nil
}

// UserDetails resolves a screen name to a profile.
func (x *XClient) UserDetails(ctx context.Context, handle string) (*Profile, error) {
	variables := map[string]any{
		"screen_name":              strings.TrimPrefix(strings.TrimSpace(handle), "@"),
		"withSafetyModeUserFields": true,
	}
	body, err := x.graphQL(ctx, x.userQueryID, "UserByScreenName", variables)
	if err != nil {
		return nil, err
	}
	return parseUserDetails(body), nil
}

// UserTimeline returns the user's most recent posts.
func (x *XClient) UserTimeline(ctx context.Context, userID string) ([]Post, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	variables := map[string]any{
		"userId":                                 userID,
		"count":                                  x.timelineCount,
		"includePromotedContent":                 false,
		"withQuickPromoteEligibilityTweetFields": false,
		"withVoice":                              false,
		"withV2Timeline":                         true,
	}
	body, err := x.graphQL(ctx, x.timelineQueryID, "UserTweets", variables)
	if err != nil {
		return nil, err
	}
	return parseTimeline(body), nil
}

func (x *XClient) graphQL(ctx context.Context, queryID, operation string, variables map[string]any) ([]byte, error) {
	vars, err := json.Marshal(variables)
	if err != nil {
		return nil, fmt.Errorf("failed to encode variables: %w", err)
	}
	features, err := json.Marshal(graphQLFeatures)
	if err != nil {
		return nil, fmt.Errorf("failed to encode features: %w", err)
	}
	q := url.Values{}
	q.Set("variables", string(vars))
	q.Set("features", string(features))
	endpoint := fmt.Sprintf("%s/graphql/%s/%s?%s", x.baseURL, queryID, operation, q.Encode())

	// A rejected guest token is refreshed once.
	for attempt := 0; attempt < 2; attempt++ {
		token, err := x.guest(ctx, attempt > 0)
		if err != nil {
			return nil, err
		}
		status, body, err := x.do(ctx, http.MethodGet, endpoint, token)
		if err != nil {
			return nil, fmt.Errorf("%s request failed: %w", operation, err)
		}
		switch {
		case status == http.StatusOK:
			return body, nil
		case status == http.StatusTooManyRequests:
			return nil, fmt.Errorf("%s: %w", operation, ErrRateLimited)
		case (status == http.StatusUnauthorized || status == http.StatusForbidden) && attempt == 0:
			x.logger.Info("social_guest_token_rejected",
				zap.String("operation", operation),
				zap.Int("status_code", status),
			)
			continue
		default:
			return nil, fmt.Errorf("%s returned status %d: %s", operation, status, logpkg.SanitizeString(string(body), 300))
		}
	}
	return nil, fmt.Errorf("%s: guest token rejected twice", operation)
}

// guest returns a cached guest token, activating a new one when missing, expired or forced.
func (x *XClient) guest(ctx context.Context, force bool) (string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if !force && x.guestToken != "" && x.now().Before(x.guestTokenExpiry) {
		return x.guestToken, nil
	}

	status, body, err := x.do(ctx, http.MethodPost, x.baseURL+"/1.1/guest/activate.json", "")
	if err != nil {
		return "", fmt.Errorf("guest token activation failed: %w", err)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("guest token activation returned status %d", status)
	}
	token := gjson.GetBytes(body, "guest_token").String()
	if token == "" {
		return "", fmt.Errorf("guest token activation returned no token")
	}
	x.guestToken = token
	x.guestTokenExpiry = x.now().Add(guestTokenTTL)
	x.logger.Debug("social_guest_token_activated")
	return token, nil
}

func (x *XClient) do(ctx context.Context, method, endpoint, guestToken string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+x.bearerToken)
	req.Header.Set("Accept", "application/json")
	if guestToken != "" {
		req.Header.Set("x-guest-token", guestToken)
	}
	resp, err := x.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func parseUserDetails(body []byte) *Profile {
	result := gjson.GetBytes(body, "data.user.result")
	if !result.Exists() || result.Get("__typename").String() == "UserUnavailable" {
		return nil
	}
	id := result.Get("rest_id").String()
	if id == "" {
		return nil
	}
	legacy := result.Get("legacy")
	// Newer payloads move some fields out of legacy into core/avatar.
	userName := firstString(legacy.Get("screen_name"), result.Get("core.screen_name"))
	return &Profile{
		ID:              id,
		UserName:        userName,
		FullName:        firstString(legacy.Get("name"), result.Get("core.name")),
		Description:     legacy.Get("description").String(),
		Location:        firstString(legacy.Get("location"), result.Get("location.location")),
		CreatedAt:       firstString(legacy.Get("created_at"), result.Get("core.created_at")),
		FollowersCount:  legacy.Get("followers_count").Int(),
		FollowingsCount: legacy.Get("friends_count").Int(),
		StatusesCount:   legacy.Get("statuses_count").Int(),
		IsVerified:      result.Get("is_blue_verified").Bool() || legacy.Get("verified").Bool(),
		ProfileImage:    firstString(legacy.Get("profile_image_url_https"), result.Get("avatar.image_url")),
	}
}

func parseTimeline(body []byte) []Post {
	user := gjson.GetBytes(body, "data.user.result")
	instructions := user.Get("timeline_v2.timeline.instructions")
	if !instructions.Exists() {
		instructions = user.Get("timeline.timeline.instructions")
	}

	var posts []Post
	seen := make(map[string]bool)
	add := func(tweet gjson.Result) {
		if p, ok := parseTweet(tweet); ok && !seen[p.ID] {
			seen[p.ID] = true
			posts = append(posts, p)
		}
	}

	instructions.ForEach(func(_, instr gjson.Result) bool {
		if instr.Get("type").String() != "TimelineAddEntries" {
			return true
		}
		instr.Get("entries").ForEach(func(_, entry gjson.Result) bool {
			content := entry.Get("content")
			switch content.Get("entryType").String() {
			case "TimelineTimelineItem":
				add(content.Get("itemContent.tweet_results.result"))
			case "TimelineTimelineModule":
				content.Get("items").ForEach(func(_, item gjson.Result) bool {
					add(item.Get("item.itemContent.tweet_results.result"))
					return true
				})
			}
			return true
		})
		return true
	})
	return posts
}

func parseTweet(result gjson.Result) (Post, bool) {
	if result.Get("__typename").String() == "TweetWithVisibilityResults" {
		result = result.Get("tweet")
	}
	id := result.Get("rest_id").String()
	if id == "" {
		return Post{}, false
	}
	legacy := result.Get("legacy")
	text := result.Get("note_tweet.note_tweet_results.result.text").String()
	if text == "" {
		text = legacy.Get("full_text").String()
	}
	p := Post{
		ID:           id,
		FullText:     text,
		CreatedAt:    legacy.Get("created_at").String(),
		LikeCount:    legacy.Get("favorite_count").Int(),
		RetweetCount: legacy.Get("retweet_count").Int(),
	}
	if views := result.Get("views.count"); views.Exists() {
		n := views.Int()
		p.ViewCount = &n
	}
	return p, true
}

func firstString(values ...gjson.Result) string {
	for _, v := range values {
		if s := v.String(); s != "" {
			return s
		}
	}
	return ""
}
