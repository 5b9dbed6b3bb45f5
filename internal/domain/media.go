package domain

import "regexp"

var youTubeIDPattern = regexp.MustCompile(`^.*(youtu\.be/|youtube\.com/|v/|u/\w/|embed/|shorts/|watch\?v=|&v=)([^#&?/]*).*`)

// YouTubeVideoID extracts the 11 character video ID from a YouTube link
func YouTubeVideoID(url string) (string, bool) {
	if url == "" {
		return "", false
	}
	m := youTubeIDPattern.FindStringSubmatch(url)
	if m == nil || len(m[2]) != 11 {
		return "", false
	}
	return m[2], true
}

// YouTubeEmbedURL returns the embeddable player URL for a YouTube link
func YouTubeEmbedURL(url string) (string, bool) {
	id, ok := YouTubeVideoID(url)
	if !ok {
		return "", false
	}
	return "https://www.youtube.com/embed/" + id, true
}

// YouTubeThumbnailURL returns the cover image URL for a YouTube link
func YouTubeThumbnailURL(url string) (string, bool) {
	id, ok := YouTubeVideoID(url)
	if !ok {
		return "", false
	}
	return "https://img.youtube.com/vi/" + id + "/sddefault.jpg", true
}
