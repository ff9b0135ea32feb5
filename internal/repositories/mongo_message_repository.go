package repositories

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"waffle-chat/internal/models"
)

const messageCollection = "messages"

// mongoMessage is the stored document. inserted_at keeps backend order
// independent of the client-supplied timestamp.
type mongoMessage struct {
	ID         string    `bson:"_id"`
	RoomName   string    `bson:"room_name"`
	SenderID   string    `bson:"sender_id"`
	Content    string    `bson:"content"`
	AvatarURL  string    `bson:"avatar_url,omitempty"`
	CreatedAt  time.Time `bson:"created_at"`
	InsertedAt time.Time `bson:"inserted_at"`
}

func (m mongoMessage) toModel() models.Message {
	return models.Message{
		ID:        m.ID,
		RoomID:    m.RoomName,
		SenderID:  m.SenderID,
		Content:   m.Content,
		AvatarURL: m.AvatarURL,
		Timestamp: m.CreatedAt,
		Format:    models.FormatStructured,
	}
}

// MongoMessageRepo stores messages in a MongoDB collection.
type MongoMessageRepo struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewMongoMessageRepo constructs a MongoMessageRepo and ensures its index.
func NewMongoMessageRepo(ctx context.Context, db *mongo.Database) (*MongoMessageRepo, error) {
	coll := db.Collection(messageCollection)
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "room_name", Value: 1}, {Key: "inserted_at", Value: 1}},
	})
	if err != nil {
		return nil, err
	}
	return &MongoMessageRepo{coll: coll, now: time.Now}, nil
}

// CreateMessage inserts a message document.
func (r *MongoMessageRepo) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	doc := mongoMessage{
		ID:         msg.ID,
		RoomName:   msg.RoomID,
		SenderID:   msg.SenderID,
		Content:    msg.Content,
		AvatarURL:  msg.AvatarURL,
		CreatedAt:  msg.Timestamp.UTC(),
		InsertedAt: r.now().UTC(),
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.Message{}, ErrDuplicateMessage
		}
		return models.Message{}, err
	}
	return doc.toModel(), nil
}

// GetMessage fetches one message by id.
func (r *MongoMessageRepo) GetMessage(ctx context.Context, id string) (models.Message, error) {
	var doc mongoMessage
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	return doc.toModel(), nil
}

// ListMessages returns the messages of a room in insertion order.
func (r *MongoMessageRepo) ListMessages(ctx context.Context, room string) ([]models.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "inserted_at", Value: 1}})
	cursor, err := r.coll.Find(ctx, bson.M{"room_name": room}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []mongoMessage
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	msgs := make([]models.Message, 0, len(docs))
	for _, d := range docs {
		msgs = append(msgs, d.toModel())
	}
	return msgs, nil
}

// ClearRoom deletes every message of a room.
func (r *MongoMessageRepo) ClearRoom(ctx context.Context, room string) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"room_name": room})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

var (
	_ MessageRepository = (*MessageRepo)(nil)
	_ MessageRepository = (*MongoMessageRepo)(nil)
	_ RoomRepository    = (*RoomRepo)(nil)
)
