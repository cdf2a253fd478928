package model

import "time"

// EventMetadata is what a single extraction attempt derives from a web page.
// Empty strings mean the field could not be extracted.
type EventMetadata struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	SourceURL   string `json:"sourceUrl"`
	Date        string `json:"date,omitempty"`
	RawMarkup   string `json:"-"`
}

// ConcertProposal holds the heuristically guessed fields; empty means unset.
type ConcertProposal struct {
	Artist string `json:"artist,omitempty"`
	Venue  string `json:"venue,omitempty"`
	Date   string `json:"date,omitempty"`
}

// Complete reports whether every required concert field was guessed.
func (p ConcertProposal) Complete() bool {
	return p.Artist != "" && p.Venue != "" && p.Date != ""
}

// Concert is the durable event record.
type Concert struct {
	ID            string    `json:"id"`
	ArtistName    string    `json:"artistName"`
	Venue         string    `json:"venue"`
	ConcertDate   time.Time `json:"concertDate"`
	ConcertTime   *string   `json:"concertTime,omitempty"`
	URL           *string   `json:"url,omitempty"`
	Notes         *string   `json:"notes,omitempty"`
	OwnerUserID   int64     `json:"ownerUserId"`
	PollID        *string   `json:"pollId,omitempty"`
	PollMessageID *int64    `json:"pollMessageId,omitempty"`
	CreationTime  time.Time `json:"creationTime"`
}

// ResponseType is one of the three fixed poll answers.
type ResponseType string

const (
	ResponseGoing      ResponseType = "going"
	ResponseInterested ResponseType = "interested"
	ResponseNotGoing   ResponseType = "not_going"
)

// ResponseTypes lists response types in poll option order.
var ResponseTypes = []ResponseType{ResponseGoing, ResponseInterested, ResponseNotGoing}

// ResponseTypeForOption maps a poll option index to its response type.
func ResponseTypeForOption(idx int) (ResponseType, bool) {
	if idx < 0 || idx >= len(ResponseTypes) {
		return "", false
	}
	return ResponseTypes[idx], true
}

// AttendanceResponse is unique per (ConcertID, UserID); the latest write wins.
type AttendanceResponse struct {
	ConcertID    string       `json:"concertId"`
	UserID       int64        `json:"userId"`
	UserName     string       `json:"userName,omitempty"`
	ResponseType ResponseType `json:"responseType"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// UserRef identifies a messaging-platform user.
type UserRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name,omitempty"`
}
