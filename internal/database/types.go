package database

import (
	"time"
)

// Event is a gallery event. Only public events can be searched.
type Event struct {
	ID                string
	EventHash         string // public identifier used in gallery links
	Name              string
	IsPublic          bool
	FaceSearchEnabled bool
	CreatedAt         time.Time
}

// Media is one photo of an event.
type Media struct {
	ID           string
	EventID      string
	AlbumID      string // empty when the photo is not in an album
	R2Key        string
	PreviewR2Key string // empty when no preview rendition exists
	Width        int
	Height       int
	CreatedAt    time.Time
}

// StoredFace is an indexed face embedding.
type StoredFace struct {
	ID         string
	MediaID    string
	EventID    string
	FaceIndex  int
	Embedding  []float32
	Confidence float64
	BBox       []float64 // [x1, y1, x2, y2] in raw pixel coordinates
	CreatedAt  time.Time
}

// FaceSearchProfile is the refined prototype of one subject within one event,
// stored after a search so later visits can recall matches without a selfie.
type FaceSearchProfile struct {
	ID         string
	Subject    string
	EventID    string
	Prototype  []float32
	MatchCount int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
