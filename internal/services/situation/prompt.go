package situation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/benvon/situation-monitor/internal/services/social"
)

const postSeparator = "\n---\n"

// RankPosts returns a copy of posts ordered by view count, highest first.
// Posts without a view count rank as zero; ties keep timeline order.
func RankPosts(posts []social.Post) []social.Post {
	ranked := make([]social.Post, len(posts))
	copy(ranked, posts)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Views() > ranked[j].Views()
	})
	return ranked
}

// FormatPosts renders ranked posts as the block list sent to the model.
func FormatPosts(userName string, posts []social.Post) string {
	blocks := make([]string, 0, len(posts))
	for _, p := range RankPosts(posts) {
		blocks = append(blocks, fmt.Sprintf("Tweet %s: \"%s\" \nView Count: %d\nURL: %s",
			p.ID, p.FullText, p.Views(), PostURL(userName, p.ID)))
	}
	return strings.Join(blocks, postSeparator)
}

// PostURL is the canonical link to a post.
func PostURL(userName, postID string) string {
	return fmt.Sprintf("https://twitter.com/%s/status/%s", userName, postID)
}

// FormatUserDetails serializes the profile for the prompt.
func FormatUserDetails(p *social.Profile) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode user details: %w", err)
	}
	return string(b), nil
}

// NormalizeSituation guarantees the phrase starts with "the ". The check is
// case-insensitive and the rest of the phrase is left untouched.
func NormalizeSituation(s string) string {
	if strings.HasPrefix(strings.ToLower(s), "the ") {
		return s
	}
	return "the " + s
}
