package types

import (
	"time"
)

type Event struct {
	Id              string    `json:"id"`
	Type            string    `json:"type"`
	Source          string    `json:"source"`
	SpecVersion     string    `json:"specversion"`
	Time            time.Time `json:"time"`
	RefID           FileID    `json:"basaltrefid"`
	RefType         string    `json:"basaltreftype"`
	DataContentType string    `json:"datacontenttype"`
	Data            EventData `json:"data"`
}

type EventData struct {
	ID       FileID `json:"id"`
	Kind     Kind   `json:"kind,omitempty"`
	Name     string `json:"name,omitempty"`
	Offset   int64  `json:"offset,omitempty"`
	RefCount int32  `json:"ref_count,omitempty"`
}
