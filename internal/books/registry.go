// Package books maintains the book registry in MongoDB and the ref-counted
// deletion flow built on top of it. A book record is shared by every user
// who uploaded the same title; uploaded_by tracks the references.
package books

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Book lifecycle states. A book stays in processing until its vectors are
// indexed; queries are only meaningful once it is complete.
const (
	StatusProcessing = "processing"
	StatusComplete   = "complete"
)

// ErrNotFound is returned when no registry record matches the given id.
var ErrNotFound = errors.New("book not found")

// Book is one registry record.
type Book struct {
	ID         string    `bson:"id" json:"id"`
	Title      string    `bson:"title" json:"title"`
	AuthorName string    `bson:"author_name" json:"author_name"`
	Pages      int       `bson:"pages" json:"pages"`
	Status     string    `bson:"status" json:"status"`
	UploadedAt time.Time `bson:"uploaded_at" json:"uploaded_at"`
	UploadedBy []string  `bson:"uploaded_by" json:"uploaded_by"`
}

// Registry stores book records in a single collection.
type Registry struct {
	client *mongo.Client
	books  *mongo.Collection
}

func NewRegistry(ctx context.Context, uri, database string) (*Registry, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Registry{
		client: client,
		books:  client.Database(database).Collection("books"),
	}, nil
}

func (r *Registry) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes the registry relies on. The unique
// title index is what makes concurrent uploads of the same book collapse
// into one record instead of two.
func (r *Registry) EnsureIndexes(ctx context.Context) error {
	_, err := r.books.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "title", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return fmt.Errorf("create book indexes: %w", err)
	}
	return nil
}

func (r *Registry) attachUploader(ctx context.Context, title, userID string) (Book, error) {
	var book Book
	res := r.books.FindOneAndUpdate(ctx,
		bson.M{"title": title},
		bson.M{"$addToSet": bson.M{"uploaded_by": userID}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	if err := res.Decode(&book); err != nil {
		return Book{}, err
	}
	return book, nil
}

// CreateOrAttach registers a book under its title. If a record with the
// same title already exists the user is added to its uploaded_by set and
// existed is true; otherwise a fresh record is inserted in processing
// state. Losing the insert race to a concurrent upload falls back to the
// attach path, so exactly one record survives per title.
func (r *Registry) CreateOrAttach(ctx context.Context, title, author string, pages int, userID string) (book Book, existed bool, err error) {
	book, err = r.attachUploader(ctx, title, userID)
	if err == nil {
		return book, true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return Book{}, false, fmt.Errorf("find book %q: %w", title, err)
	}

	book = Book{
		ID:         uuid.NewString(),
		Title:      title,
		AuthorName: author,
		Pages:      pages,
		Status:     StatusProcessing,
		UploadedAt: time.Now().UTC(),
		UploadedBy: []string{userID},
	}
	if _, err := r.books.InsertOne(ctx, book); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			book, err = r.attachUploader(ctx, title, userID)
			if err != nil {
				return Book{}, false, fmt.Errorf("attach after duplicate insert: %w", err)
			}
			return book, true, nil
		}
		return Book{}, false, fmt.Errorf("insert book %q: %w", title, err)
	}
	return book, false, nil
}

// SetStatus transitions a book to the given lifecycle state.
func (r *Registry) SetStatus(ctx context.Context, bookID, status string) error {
	res, err := r.books.UpdateOne(ctx,
		bson.M{"id": bookID},
		bson.M{"$set": bson.M{"status": status}},
	)
	if err != nil {
		return fmt.Errorf("set status for book %s: %w", bookID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Get looks a book up by id.
func (r *Registry) Get(ctx context.Context, bookID string) (Book, error) {
	var book Book
	err := r.books.FindOne(ctx, bson.M{"id": bookID}).Decode(&book)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Book{}, ErrNotFound
	}
	if err != nil {
		return Book{}, fmt.Errorf("get book %s: %w", bookID, err)
	}
	return book, nil
}

// ListByUploader returns every book the user has uploaded, newest first.
func (r *Registry) ListByUploader(ctx context.Context, userID string) ([]Book, error) {
	cur, err := r.books.Find(ctx,
		bson.M{"uploaded_by": userID},
		options.Find().SetSort(bson.D{{Key: "uploaded_at", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("list books for user %s: %w", userID, err)
	}
	defer cur.Close(ctx)

	var out []Book
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode books for user %s: %w", userID, err)
	}
	return out, nil
}

// PullUploader removes one user from a book's uploaded_by set, leaving the
// record in place.
func (r *Registry) PullUploader(ctx context.Context, bookID, userID string) error {
	res, err := r.books.UpdateOne(ctx,
		bson.M{"id": bookID},
		bson.M{"$pull": bson.M{"uploaded_by": userID}},
	)
	if err != nil {
		return fmt.Errorf("pull uploader from book %s: %w", bookID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Remove deletes the registry record outright.
func (r *Registry) Remove(ctx context.Context, bookID string) error {
	res, err := r.books.DeleteOne(ctx, bson.M{"id": bookID})
	if err != nil {
		return fmt.Errorf("remove book %s: %w", bookID, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
