// internal/database/post_repository.go
package database

import (
	"context"
	"errors"

	"thoth/internal/models"
	"thoth/internal/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// InsertPost writes a new post document with server timestamps.
func (m *MongoDB) InsertPost(ctx context.Context, post *models.Post) error {
	normalizePost(post)
	now := nowMillis()
	post.CreatedAt, post.UpdatedAt = now, now
	if err := checkPost(post, true); err != nil {
		return err
	}

	if _, err := m.Posts.InsertOne(ctx, post); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return utils.NewAppError(utils.ErrDuplicate, "post already exists: "+post.ID, err)
		}
		return dbError("failed to insert post", err)
	}
	return nil
}

// GetPost retrieves a post by its ID.
func (m *MongoDB) GetPost(ctx context.Context, id string) (*models.Post, error) {
	var post models.Post
	err := m.Posts.FindOne(ctx, bson.M{"_id": id}).Decode(&post)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.NewNotFoundError("post", id)
	}
	if err != nil {
		return nil, dbError("failed to get post", err)
	}
	if err := checkPost(&post, false); err != nil {
		return nil, err
	}
	return &post, nil
}

func (m *MongoDB) UpdatePost(ctx context.Context, id string, patch models.PostPatch) error {
	set := bson.M{"updatedAt": nowMillis()}
	if patch.Content != nil {
		set["content"] = *patch.Content
	}
	if patch.Tags != nil {
		set["tags"] = *patch.Tags
	}
	if patch.Images != nil {
		set["images"] = *patch.Images
	}
	if patch.PostType != nil {
		set["postType"] = *patch.PostType
	}
	if patch.ExternalLink != nil {
		set["externalLink"] = *patch.ExternalLink
	}
	if patch.AttachmentFile != nil {
		set["attachmentFile"] = patch.AttachmentFile
	}

	res, err := m.Posts.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	return updated(res, err, "post", id)
}

func (m *MongoDB) DeletePost(ctx context.Context, id string) error {
	res, err := m.Posts.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return dbError("failed to delete post", err)
	}
	if res.DeletedCount == 0 {
		return utils.NewNotFoundError("post", id)
	}
	return nil
}

// SetLike moves likedBy membership and the likes counter in one guarded
// update, so a repeated like or unlike matches nothing and changes nothing.
func (m *MongoDB) SetLike(ctx context.Context, postID, userID string, liked bool) (bool, error) {
	var filter, update bson.M
	if liked {
		filter = bson.M{"_id": postID, "likedBy": bson.M{"$ne": userID}}
		update = bson.M{"$push": bson.M{"likedBy": userID}, "$inc": bson.M{"likes": 1}}
	} else {
		filter = bson.M{"_id": postID, "likedBy": userID}
		update = bson.M{"$pull": bson.M{"likedBy": userID}, "$inc": bson.M{"likes": -1}}
	}

	res, err := m.Posts.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, dbError("failed to update like", err)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}
	return false, m.postExists(ctx, postID)
}

func (m *MongoDB) AddRepostRef(ctx context.Context, postID string, ref models.RepostRef) (bool, error) {
	filter := bson.M{"_id": postID, "repostedBy.uid": bson.M{"$ne": ref.UID}}
	update := bson.M{"$push": bson.M{"repostedBy": ref}}

	res, err := m.Posts.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, dbError("failed to add repost reference", err)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}
	return false, m.postExists(ctx, postID)
}

func (m *MongoDB) RemoveRepostRef(ctx context.Context, postID, userID string) error {
	res, err := m.Posts.UpdateOne(ctx,
		bson.M{"_id": postID},
		bson.M{"$pull": bson.M{"repostedBy": bson.M{"uid": userID}}},
	)
	return updated(res, err, "post", postID)
}

func (m *MongoDB) FindPostsByAuthors(ctx context.Context, authorIDs []string, limit int) ([]*models.Post, error) {
	if len(authorIDs) > MaxInValues {
		return nil, tooManyAuthors(len(authorIDs))
	}
	if len(authorIDs) == 0 {
		return []*models.Post{}, nil
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return m.findPosts(ctx, bson.M{"author.id": bson.M{"$in": authorIDs}}, opts)
}

func (m *MongoDB) FindReposts(ctx context.Context, originalID string) ([]*models.Post, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	return m.findPosts(ctx, bson.M{"originalPostId": originalID}, opts)
}

func (m *MongoDB) CountPosts(ctx context.Context) (int64, error) {
	n, err := m.Posts.EstimatedDocumentCount(ctx)
	if err != nil {
		return 0, dbError("failed to count posts", err)
	}
	return n, nil
}

func (m *MongoDB) findPosts(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.Post, error) {
	cursor, err := m.Posts.Find(ctx, filter, opts)
	if err != nil {
		return nil, dbError("failed to query posts", err)
	}
	defer cursor.Close(ctx)

	var docs []*models.Post
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, dbError("failed to decode posts", err)
	}

	posts := make([]*models.Post, 0, len(docs))
	for _, post := range docs {
		if err := checkPost(post, false); err != nil {
			utils.Logger.Warn("skipping malformed post document", zap.String("postId", post.ID), zap.Error(err))
			continue
		}
		posts = append(posts, post)
	}
	return posts, nil
}

func (m *MongoDB) postExists(ctx context.Context, id string) error {
	n, err := m.Posts.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return dbError("failed to look up post", err)
	}
	if n == 0 {
		return utils.NewNotFoundError("post", id)
	}
	return nil
}
