package models

import "time"

type IntentKind string

const (
	IntentDeletePost IntentKind = "delete_post"
	IntentRepost     IntentKind = "repost"
)

type IntentStatus string

const (
	IntentPending IntentStatus = "pending"
	IntentDone    IntentStatus = "done"
	IntentFailed  IntentStatus = "failed"
)

// Intent is written before a multi-document operation and completed after it,
// so that an interrupted operation can be found and replayed.
type Intent struct {
	ID          string       `json:"id" bson:"_id"`
	Kind        IntentKind   `json:"kind" bson:"kind"`
	PostID      string       `json:"postId" bson:"postId"`
	RootID      string       `json:"rootId,omitempty" bson:"rootId,omitempty"`
	ActorID     string       `json:"actorId" bson:"actorId"`
	ActorName   string       `json:"actorName,omitempty" bson:"actorName,omitempty"`
	Status      IntentStatus `json:"status" bson:"status"`
	Attempts    int          `json:"attempts" bson:"attempts"`
	Error       string       `json:"error,omitempty" bson:"error,omitempty"`
	CreatedAt   time.Time    `json:"createdAt" bson:"createdAt"`
	CompletedAt *time.Time   `json:"completedAt,omitempty" bson:"completedAt,omitempty"`
}
