package models

import "time"

type EventType string

const (
	EventWorkshop EventType = "workshop"
	EventPalestra EventType = "palestra"
	EventSocial   EventType = "social"
	EventEstudo   EventType = "estudo"
	EventOutro    EventType = "outro"
)

type Event struct {
	ID              string    `json:"id" bson:"_id"`
	Title           string    `json:"title" bson:"title" validate:"required,max=200"`
	Description     string    `json:"description" bson:"description"`
	Type            EventType `json:"type" bson:"type" validate:"required,oneof=workshop palestra social estudo outro"`
	Date            time.Time `json:"date" bson:"date" validate:"required"`
	Location        string    `json:"location" bson:"location"`
	CreatorID       string    `json:"creatorId" bson:"creatorId" validate:"required"`
	Participants    []string  `json:"participants" bson:"participants"`
	Interested      []string  `json:"interested" bson:"interested"`
	MaxParticipants int       `json:"maxParticipants,omitempty" bson:"maxParticipants,omitempty" validate:"min=0"`
	CreatedAt       time.Time `json:"createdAt" bson:"createdAt"`
}

func (e *Event) HasParticipant(uid string) bool {
	for _, id := range e.Participants {
		if id == uid {
			return true
		}
	}
	return false
}

// Full reports whether the participant cap is reached. Zero means no cap.
func (e *Event) Full() bool {
	return e.MaxParticipants > 0 && len(e.Participants) >= e.MaxParticipants
}

func (e *Event) Clone() *Event {
	c := *e
	c.Participants = cloneStrings(e.Participants)
	c.Interested = cloneStrings(e.Interested)
	return &c
}
