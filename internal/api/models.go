package api

// ItemMetadata describes one downloadable audiobook. It is fetched from the
// server at download time and persisted verbatim as metadata.json inside the
// item's download directory; the catalog reads it back at startup.
type ItemMetadata struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Author    string     `json:"author,omitempty"`
	CoverPath string     `json:"coverPath,omitempty"`
	Tracks    []TrackRef `json:"tracks"`
}

// TrackRef is one audio track of an item. Indices form a contiguous 0..N-1
// range and define both the local filename (chapter_<index>.mp3) and the
// playback order.
type TrackRef struct {
	Index    int     `json:"index"`
	Title    string  `json:"title,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// PlaybackSession is the server's short-lived resolution of an item into
// concrete downloadable track paths. It is never persisted.
type PlaybackSession struct {
	ID     string         `json:"id"`
	Tracks []SessionTrack `json:"tracks"`
}

// SessionTrack carries the server-relative content path for one track.
type SessionTrack struct {
	Index       int    `json:"index"`
	ContentPath string `json:"contentPath"`
}
