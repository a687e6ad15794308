package youtube

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/wjiang/picktrace/internal/source"
)

const (
	defaultAPIBaseURL       = "https://www.googleapis.com/youtube/v3"
	defaultTimedTextBaseURL = "https://video.google.com"
	searchPageSize          = 50
)

// ErrNoTranscript indicates the video has captions disabled or no English
// track.
var ErrNoTranscript = errors.New("no transcript available")

// channelURLPatterns maps the supported channel URL shapes to an identifier
// kind.
var channelURLPatterns = []struct {
	re   *regexp.Regexp
	kind string
}{
	{regexp.MustCompile(`youtube\.com/@([\w-]+)`), "handle"},
	{regexp.MustCompile(`youtube\.com/channel/([\w-]+)`), "channel_id"},
	{regexp.MustCompile(`youtube\.com/c/([\w-]+)`), "custom"},
	{regexp.MustCompile(`youtube\.com/user/([\w-]+)`), "user"},
}

// ExtractIdentifier parses a channel URL into its identifier and kind
// (handle, channel_id, custom, user).
func ExtractIdentifier(channelURL string) (identifier, kind string, err error) {
	for _, p := range channelURLPatterns {
		if m := p.re.FindStringSubmatch(channelURL); m != nil {
			return m[1], p.kind, nil
		}
	}
	return "", "", fmt.Errorf("could not extract channel identifier from URL %q", channelURL)
}

// Client talks to the YouTube Data API v3 for channel resolution and video
// discovery, and to the timedtext endpoint for transcripts.
type Client struct {
	client           *resty.Client
	apiKey           string
	apiBaseURL       string
	timedTextBaseURL string
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURLs overrides the API endpoints, mainly for tests.
func WithBaseURLs(apiBaseURL, timedTextBaseURL string) Option {
	return func(c *Client) {
		c.apiBaseURL = apiBaseURL
		c.timedTextBaseURL = timedTextBaseURL
	}
}

// NewClient creates a YouTube Data API client.
func NewClient(apiKey string, opts ...Option) *Client {
	client := resty.New()
	client.SetTimeout(30 * time.Second)

	c := &Client{
		client:           client,
		apiKey:           apiKey,
		apiBaseURL:       defaultAPIBaseURL,
		timedTextBaseURL: defaultTimedTextBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		ID struct {
			VideoID   string `json:"videoId"`
			ChannelID string `json:"channelId"`
		} `json:"id"`
		Snippet struct {
			ChannelID   string `json:"channelId"`
			Title       string `json:"title"`
			PublishedAt string `json:"publishedAt"`
		} `json:"snippet"`
	} `json:"items"`
}

type channelsResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title      string `json:"title"`
			Thumbnails struct {
				Default struct {
					URL string `json:"url"`
				} `json:"default"`
			} `json:"thumbnails"`
		} `json:"snippet"`
	} `json:"items"`
}

// ResolveChannel resolves a channel URL to its canonical channel ID, name
// and thumbnail. Handles, custom URLs and legacy usernames are resolved by
// a channel search.
func (c *Client) ResolveChannel(ctx context.Context, channelURL string) (*source.ChannelMeta, error) {
	identifier, kind, err := ExtractIdentifier(channelURL)
	if err != nil {
		return nil, err
	}

	channelID := identifier
	if kind != "channel_id" {
		query := identifier
		if kind == "handle" {
			query = "@" + identifier
		}
		channelID, err = c.searchChannelID(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve channel %q: %w", identifier, err)
		}
	}

	var resp channelsResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"part": "snippet",
			"id":   channelID,
			"key":  c.apiKey,
		}).
		SetResult(&resp).
		Get(c.apiBaseURL + "/channels")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch channel metadata: %w", err)
	}
	if httpResp.StatusCode() != 200 {
		return nil, fmt.Errorf("channel metadata request returned HTTP %d", httpResp.StatusCode())
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("channel %s not found", channelID)
	}

	item := resp.Items[0]
	return &source.ChannelMeta{
		SourceChannelID: item.ID,
		Name:            item.Snippet.Title,
		ThumbnailURL:    item.Snippet.Thumbnails.Default.URL,
	}, nil
}

func (c *Client) searchChannelID(ctx context.Context, query string) (string, error) {
	var resp searchResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"part":       "snippet",
			"q":          query,
			"type":       "channel",
			"maxResults": "1",
			"key":        c.apiKey,
		}).
		SetResult(&resp).
		Get(c.apiBaseURL + "/search")
	if err != nil {
		return "", err
	}
	if httpResp.StatusCode() != 200 {
		return "", fmt.Errorf("channel search returned HTTP %d", httpResp.StatusCode())
	}
	if len(resp.Items) == 0 {
		return "", fmt.Errorf("no channel matched %q", query)
	}
	if id := resp.Items[0].ID.ChannelID; id != "" {
		return id, nil
	}
	return resp.Items[0].Snippet.ChannelID, nil
}

// ListVideos lists videos published within the last monthsBack months,
// paging through the search API newest first.
func (c *Client) ListVideos(ctx context.Context, sourceChannelID string, monthsBack int) ([]source.VideoRef, error) {
	if monthsBack <= 0 {
		monthsBack = 12
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -monthsBack*30)

	var videos []source.VideoRef
	pageToken := ""
	for {
		var resp searchResponse
		req := c.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"part":           "snippet",
				"channelId":      sourceChannelID,
				"maxResults":     fmt.Sprintf("%d", searchPageSize),
				"order":          "date",
				"publishedAfter": cutoff.Format("2006-01-02T15:04:05Z"),
				"type":           "video",
				"key":            c.apiKey,
			}).
			SetResult(&resp)
		if pageToken != "" {
			req.SetQueryParam("pageToken", pageToken)
		}
		httpResp, err := req.Get(c.apiBaseURL + "/search")
		if err != nil {
			return nil, fmt.Errorf("failed to fetch videos: %w", err)
		}
		if httpResp.StatusCode() != 200 {
			return nil, fmt.Errorf("video search returned HTTP %d", httpResp.StatusCode())
		}

		for _, item := range resp.Items {
			if item.ID.VideoID == "" {
				continue
			}
			publishedAt, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt)
			if err != nil {
				publishedAt = time.Now().UTC()
			}
			videos = append(videos, source.VideoRef{
				SourceVideoID: item.ID.VideoID,
				Title:         html.UnescapeString(item.Snippet.Title),
				URL:           "https://www.youtube.com/watch?v=" + item.ID.VideoID,
				PublishedAt:   publishedAt,
			})
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return videos, nil
}

type timedTextResponse struct {
	XMLName xml.Name `xml:"transcript"`
	Texts   []struct {
		Content string `xml:",chardata"`
	} `xml:"text"`
}

// Transcript fetches the English caption track of a video via the timedtext
// endpoint and joins the segments into one string.
func (c *Client) Transcript(ctx context.Context, sourceVideoID string) (string, error) {
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"lang": "en",
			"v":    sourceVideoID,
		}).
		Get(c.timedTextBaseURL + "/timedtext")
	if err != nil {
		return "", fmt.Errorf("failed to fetch transcript: %w", err)
	}
	if httpResp.StatusCode() == 404 {
		return "", ErrNoTranscript
	}
	if httpResp.StatusCode() != 200 {
		return "", fmt.Errorf("transcript request returned HTTP %d", httpResp.StatusCode())
	}

	body := httpResp.Body()
	if len(body) == 0 {
		return "", ErrNoTranscript
	}

	var tt timedTextResponse
	if err := xml.Unmarshal(body, &tt); err != nil {
		return "", fmt.Errorf("failed to parse transcript: %w", err)
	}
	if len(tt.Texts) == 0 {
		return "", ErrNoTranscript
	}

	segments := make([]string, 0, len(tt.Texts))
	for _, t := range tt.Texts {
		text := strings.TrimSpace(html.UnescapeString(t.Content))
		if text != "" {
			segments = append(segments, text)
		}
	}
	return strings.Join(segments, " "), nil
}
