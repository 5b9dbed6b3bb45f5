// Package metadata looks up song title and artist for a media link.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"porramusical/internal/domain"
)

const (
	// DefaultOEmbedURL is the YouTube oEmbed endpoint
	DefaultOEmbedURL = "https://www.youtube.com/oembed"

	defaultTimeout = 10 * time.Second
)

var (
	// ErrUnsupportedURL is returned for links that are not YouTube videos
	ErrUnsupportedURL = errors.New("unsupported media url")

	// ErrExtractionFailed is returned when metadata could not be obtained.
	// Callers fall back to manual entry.
	ErrExtractionFailed = errors.New("could not extract song info, please fill it in manually")
)

// SongInfo is the extracted title and main artist
type SongInfo struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

// Extractor resolves a media link into song info
type Extractor interface {
	Extract(ctx context.Context, mediaURL string) (SongInfo, error)
}

// OEmbedExtractor extracts song info from YouTube oEmbed responses
type OEmbedExtractor struct {
	endpoint string
	client   *http.Client
}

// NewOEmbedExtractor creates an extractor. An empty endpoint uses DefaultOEmbedURL.
func NewOEmbedExtractor(endpoint string, client *http.Client) *OEmbedExtractor {
	if endpoint == "" {
		endpoint = DefaultOEmbedURL
	}
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &OEmbedExtractor{endpoint: endpoint, client: client}
}

type oembedResponse struct {
	Title      string `json:"title"`
	AuthorName string `json:"author_name"`
}

// Extract implements Extractor
func (e *OEmbedExtractor) Extract(ctx context.Context, mediaURL string) (SongInfo, error) {
	if _, ok := domain.YouTubeVideoID(mediaURL); !ok {
		return SongInfo{}, fmt.Errorf("%w: %s", ErrUnsupportedURL, mediaURL)
	}

	query := url.Values{}
	query.Set("url", mediaURL)
	query.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return SongInfo{}, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return SongInfo{}, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return SongInfo{}, fmt.Errorf("%w: oembed status %d", ErrExtractionFailed, resp.StatusCode)
	}

	var body oembedResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return SongInfo{}, fmt.Errorf("%w: decode oembed: %v", ErrExtractionFailed, err)
	}

	info := ParseVideoTitle(body.Title, body.AuthorName)
	if info.Title == "" || info.Artist == "" {
		return SongInfo{}, fmt.Errorf("%w: no title or artist in %q", ErrExtractionFailed, body.Title)
	}
	return info, nil
}

var (
	// "(Official Video)", "[Lyrics]", "(Audio)" and similar decorations
	decorationPattern = regexp.MustCompile(`\s*[\(\[][^\)\]]*[\)\]]`)

	// Guest artists: "feat. X", "ft. X", "featuring X", "con X"
	artistGuestPattern = regexp.MustCompile(`(?i)\s+(feat\.?|ft\.?|featuring|con)\s+.*$`)
	titleGuestPattern  = regexp.MustCompile(`(?i)\s+(feat\.?|ft\.?|featuring)\s+.*$`)

	// Channel suffixes added by labels and auto-generated channels
	channelSuffixPattern = regexp.MustCompile(`(?i)(\s+-\s+topic|vevo|official)$`)
)

// ParseVideoTitle derives song info from a video title and its channel name.
// Titles shaped "Artist - Title" are split; otherwise the channel is the artist.
// Only the main artist is kept.
func ParseVideoTitle(videoTitle, channel string) SongInfo {
	cleaned := strings.TrimSpace(decorationPattern.ReplaceAllString(videoTitle, ""))

	var info SongInfo
	if artist, title, ok := splitArtistTitle(cleaned); ok {
		info = SongInfo{Title: title, Artist: artist}
	} else {
		info = SongInfo{Title: cleaned, Artist: strings.TrimSpace(channelSuffixPattern.ReplaceAllString(strings.TrimSpace(channel), ""))}
	}

	info.Artist = strings.TrimSpace(artistGuestPattern.ReplaceAllString(info.Artist, ""))
	info.Title = strings.TrimSpace(titleGuestPattern.ReplaceAllString(info.Title, ""))

	return info
}

func splitArtistTitle(s string) (artist, title string, ok bool) {
	for _, sep := range []string{" - ", " – ", " — ", " | "} {
		if a, t, found := strings.Cut(s, sep); found {
			a, t = strings.TrimSpace(a), strings.TrimSpace(t)
			if a != "" && t != "" {
				return a, t, true
			}
		}
	}
	return "", "", false
}
