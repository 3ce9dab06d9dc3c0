package models

import "time"

// Author is the display snapshot embedded into a post when it is written.
type Author struct {
	ID       string `json:"id" bson:"id" validate:"required"`
	Name     string `json:"name" bson:"name"`
	Username string `json:"username" bson:"username"`
	Avatar   string `json:"avatar" bson:"avatar"`
	Verified bool   `json:"verified" bson:"verified"`
}

// Identity is the authenticated user on whose behalf a command runs.
type Identity struct {
	UID      string `json:"uid"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	Email    string `json:"email"`
	Verified bool   `json:"verified"`
}

func (id Identity) Author() Author {
	return Author{
		ID:       id.UID,
		Name:     id.Name,
		Username: id.Username,
		Avatar:   id.Avatar,
		Verified: id.Verified,
	}
}

func (id Identity) IsZero() bool {
	return id.UID == ""
}

// Profile is the authoritative user record keyed by user id.
type Profile struct {
	ID           string    `json:"id" bson:"_id"`
	Username     string    `json:"username" bson:"username" validate:"required,min=3,max=32"`
	Name         string    `json:"name" bson:"name" validate:"required"`
	Email        string    `json:"email" bson:"email" validate:"required,email"`
	Avatar       string    `json:"avatar" bson:"avatar"`
	Bio          string    `json:"bio,omitempty" bson:"bio,omitempty"`
	Verified     bool      `json:"verified" bson:"verified"`
	PasswordHash string    `json:"-" bson:"passwordHash"`
	Connections  []string  `json:"connections" bson:"connections"`
	DeviceTokens []string  `json:"-" bson:"deviceTokens"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updatedAt"`
}

func (p *Profile) Identity() Identity {
	return Identity{
		UID:      p.ID,
		Name:     p.Name,
		Username: p.Username,
		Avatar:   p.Avatar,
		Email:    p.Email,
		Verified: p.Verified,
	}
}

// ProfilePatch carries the editable profile fields; nil means unchanged.
type ProfilePatch struct {
	Name   *string `json:"name,omitempty"`
	Avatar *string `json:"avatar,omitempty"`
	Bio    *string `json:"bio,omitempty"`
}
