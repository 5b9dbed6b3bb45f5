package domain

// Song represents a media item submitted anonymously by a participant
type Song struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	YouTubeURL  string `json:"youtubeUrl"`
	SubmittedBy string `json:"submittedBy"` // Participant ID
}

// SongInput holds the caller-provided fields of a new song
type SongInput struct {
	Title       string
	Artist      string
	YouTubeURL  string
	SubmittedBy string
}
