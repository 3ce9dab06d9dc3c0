package database

import (
	"context"

	"thoth/internal/models"
	"thoth/internal/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

type postChange struct {
	OperationType string       `bson:"operationType"`
	FullDocument  *models.Post `bson:"fullDocument"`
}

// WatchPost follows one post through a change stream. Change streams need a
// replica set or sharded cluster.
func (m *MongoDB) WatchPost(ctx context.Context, id string) (<-chan PostEvent, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{{Key: "documentKey._id", Value: id}}}},
	}
	stream, err := m.Posts.Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, dbError("failed to open change stream", err)
	}

	// Read after the stream is open so no change falls between the two.
	initial := PostEvent{PostID: id}
	post, err := m.GetPost(ctx, id)
	switch {
	case utils.IsErrorCode(err, utils.ErrNotFound):
		initial.Deleted = true
	case err != nil:
		stream.Close(context.Background())
		return nil, err
	default:
		initial.Post = post
	}

	out := make(chan PostEvent, watchBuffer)
	go func() {
		defer close(out)
		defer stream.Close(context.Background())

		send := func(ev PostEvent) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !send(initial) || initial.Deleted {
			return
		}
		for stream.Next(ctx) {
			var change postChange
			if err := stream.Decode(&change); err != nil {
				utils.Logger.Warn("undecodable change event", zap.String("postId", id), zap.Error(err))
				continue
			}
			switch change.OperationType {
			case "delete":
				send(PostEvent{PostID: id, Deleted: true})
				return
			case "insert", "update", "replace":
				if change.FullDocument == nil {
					continue
				}
				if err := checkPost(change.FullDocument, false); err != nil {
					utils.Logger.Warn("malformed post in change stream", zap.String("postId", id), zap.Error(err))
					continue
				}
				if !send(PostEvent{PostID: id, Post: change.FullDocument}) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			utils.Logger.Warn("post change stream ended", zap.String("postId", id), zap.Error(err))
		}
	}()
	return out, nil
}
