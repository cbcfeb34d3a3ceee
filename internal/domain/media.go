package domain

import "time"

// MediaReference maps a source media item to its materialized copy on a destination
type MediaReference struct {
	SourceID       int64
	DestinationID  int64
	SourceURL      string
	DestinationURL string
}

// MediaItem is a stored media blob
type MediaItem struct {
	ID          int64
	Path        string
	SourceURL   string
	Filename    string
	MimeType    string
	Size        int64
	ContentHash string
	Data        []byte
	CreatedAt   time.Time
}

// MediaURL is the public URL a media item is served from
func MediaURL(siteURL string, id int64) string {
	return JoinURL(siteURL, "media/"+itoa(id))
}
