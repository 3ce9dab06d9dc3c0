package database

import (
	"context"

	"thoth/internal/models"
	"thoth/internal/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type bookmarkDocument struct {
	Key             string `bson:"_id"`
	models.Bookmark `bson:",inline"`
}

func bookmarkKey(userID, postID string) string {
	return userID + "/" + postID
}

// PutBookmark upserts the user's snapshot of a post.
func (m *MongoDB) PutBookmark(ctx context.Context, bookmark *models.Bookmark) error {
	bookmark.BookmarkedAt = nowMillis()
	doc := bookmarkDocument{Key: bookmarkKey(bookmark.UserID, bookmark.ID), Bookmark: *bookmark}

	_, err := m.Bookmarks.ReplaceOne(ctx, bson.M{"_id": doc.Key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return dbError("failed to save bookmark", err)
	}
	return nil
}

func (m *MongoDB) DeleteBookmark(ctx context.Context, userID, postID string) error {
	res, err := m.Bookmarks.DeleteOne(ctx, bson.M{"_id": bookmarkKey(userID, postID)})
	if err != nil {
		return dbError("failed to delete bookmark", err)
	}
	if res.DeletedCount == 0 {
		return utils.NewNotFoundError("bookmark", postID)
	}
	return nil
}

func (m *MongoDB) ListBookmarks(ctx context.Context, userID string) ([]*models.Bookmark, error) {
	opts := options.Find().SetSort(bson.D{{Key: "bookmarkedAt", Value: -1}})
	cursor, err := m.Bookmarks.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, dbError("failed to query bookmarks", err)
	}
	defer cursor.Close(ctx)

	var docs []bookmarkDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, dbError("failed to decode bookmarks", err)
	}
	out := make([]*models.Bookmark, 0, len(docs))
	for i := range docs {
		out = append(out, &docs[i].Bookmark)
	}
	return out, nil
}
