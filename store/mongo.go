package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"civicconnect-be/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection      = "users"
	complaintsCollection = "complaints"
)

// Mongo implements Store on top of a MongoDB database.
type Mongo struct {
	users      *mongo.Collection
	complaints *mongo.Collection
}

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{
		users:      db.Collection(usersCollection),
		complaints: db.Collection(complaintsCollection),
	}
}

// empIDIndex names the empId index so duplicate-key errors can be told
// apart from email clashes.
const empIDIndex = "empId_unique"

func userIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		// Sparse: empId is omitted for everyone but employees.
		{
			Keys:    bson.D{{Key: "empId", Value: 1}},
			Options: options.Index().SetName(empIDIndex).SetUnique(true).SetSparse(true),
		},
	}
}

// EnsureIndexes creates the unique email and empId indexes and the lookup
// indexes the listing paths rely on.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := m.users.Indexes().CreateMany(ctx, userIndexes())
	if err != nil {
		return fmt.Errorf("user indexes: %w", err)
	}

	_, err = m.complaints.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "town", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "createdBy", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "assignedTo", Value: 1}, {Key: "status", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("complaint indexes: %w", err)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}

func (m *Mongo) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	u.Email = models.NormalizeEmail(u.Email)
	if _, err := m.users.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return duplicateUser(err)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func duplicateUser(err error) error {
	if strings.Contains(err.Error(), empIDIndex) {
		return ErrDuplicateEmpID
	}
	return ErrDuplicateEmail
}

func (m *Mongo) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	var u models.User
	if err := m.users.FindOne(ctx, filter).Decode(&u); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (m *Mongo) FindUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return m.findUser(ctx, bson.M{"_id": id})
}

func (m *Mongo) FindUsersByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	users := []models.User{}
	if len(ids) == 0 {
		return users, nil
	}
	opts := options.Find().SetProjection(bson.M{"passwordHash": 0})
	cursor, err := m.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	defer cursor.Close(ctx)

	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return users, nil
}

func (m *Mongo) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.findUser(ctx, bson.M{"email": models.NormalizeEmail(email)})
}

func (m *Mongo) FindEmployeeByCode(ctx context.Context, code string) (*models.User, error) {
	return m.findUser(ctx, bson.M{
		"role": models.RoleEmployee,
		"$or": []bson.M{
			{"empId": code},
			{"email": models.NormalizeEmail(code)},
		},
	})
}

func (m *Mongo) ListEmployees(ctx context.Context) ([]models.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	cursor, err := m.users.Find(ctx, bson.M{"role": models.RoleEmployee}, opts)
	if err != nil {
		return nil, fmt.Errorf("find employees: %w", err)
	}
	defer cursor.Close(ctx)

	users := []models.User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode employees: %w", err)
	}
	return users, nil
}

func (m *Mongo) updateUser(ctx context.Context, id primitive.ObjectID, set bson.M) error {
	set["updatedAt"] = time.Now()
	res, err := m.users.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) SetDuty(ctx context.Context, id primitive.ObjectID, onDuty bool) error {
	return m.updateUser(ctx, id, bson.M{"isOnDuty": onDuty})
}

func (m *Mongo) SetLocation(ctx context.Context, id primitive.ObjectID, loc models.GeoPoint) error {
	return m.updateUser(ctx, id, bson.M{"currentLocation": loc})
}

func (m *Mongo) CreateComplaint(ctx context.Context, c *models.Complaint) error {
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	if _, err := m.complaints.InsertOne(ctx, c); err != nil {
		return fmt.Errorf("insert complaint: %w", err)
	}
	return nil
}

func (m *Mongo) FindComplaint(ctx context.Context, id primitive.ObjectID) (*models.Complaint, error) {
	var c models.Complaint
	if err := m.complaints.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (m *Mongo) ListComplaints(ctx context.Context, f ComplaintFilter) ([]models.Complaint, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := m.complaints.Find(ctx, complaintFilterDoc(f), opts)
	if err != nil {
		return nil, fmt.Errorf("find complaints: %w", err)
	}
	defer cursor.Close(ctx)

	complaints := []models.Complaint{}
	if err := cursor.All(ctx, &complaints); err != nil {
		return nil, fmt.Errorf("decode complaints: %w", err)
	}
	return complaints, nil
}

func (m *Mongo) UpdateComplaintFields(ctx context.Context, id primitive.ObjectID, set bson.M) (*models.Complaint, error) {
	if err := CheckComplaintUpdate(set); err != nil {
		return nil, err
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var out models.Complaint
	err := m.complaints.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&out)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update complaint: %w", err)
	}
	return &out, nil
}

func (m *Mongo) DeleteComplaint(ctx context.Context, id primitive.ObjectID) error {
	res, err := m.complaints.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete complaint: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) Upvote(ctx context.Context, id, userID primitive.ObjectID) (int, error) {
	filter := bson.M{"_id": id, "upvotedBy": bson.M{"$ne": userID}}
	update := bson.M{
		"$addToSet": bson.M{"upvotedBy": userID},
		"$inc":      bson.M{"upvotes": 1},
		"$set":      bson.M{"updatedAt": time.Now()},
	}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"upvotes": 1})

	var out struct {
		Upvotes int `bson:"upvotes"`
	}
	err := m.complaints.FindOneAndUpdate(ctx, filter, update, opts).Decode(&out)
	if err == nil {
		return out.Upvotes, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return 0, fmt.Errorf("upvote: %w", err)
	}

	// No match: either the complaint is gone or the user already voted.
	n, err := m.complaints.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, fmt.Errorf("upvote lookup: %w", err)
	}
	if n == 0 {
		return 0, ErrNotFound
	}
	return 0, ErrAlreadyUpvoted
}

func (m *Mongo) aggregate(ctx context.Context, pipeline mongo.Pipeline) ([]Bucket, error) {
	cursor, err := m.complaints.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	defer cursor.Close(ctx)

	buckets := []Bucket{}
	if err := cursor.All(ctx, &buckets); err != nil {
		return nil, fmt.Errorf("decode buckets: %w", err)
	}
	return buckets, nil
}

func (m *Mongo) CountByCategory(ctx context.Context) ([]Bucket, error) {
	return m.aggregate(ctx, GroupCountPipeline("category", ComplaintFilter{}))
}

func (m *Mongo) CountByStatus(ctx context.Context, f ComplaintFilter) ([]Bucket, error) {
	buckets, err := m.aggregate(ctx, GroupCountPipeline("status", f))
	if err != nil {
		return nil, err
	}
	return SortStatusBuckets(buckets), nil
}

func (m *Mongo) Trends(ctx context.Context, q TrendQuery) ([]Bucket, error) {
	return m.aggregate(ctx, TrendsPipeline(q))
}

func (m *Mongo) TopAreas(ctx context.Context, q AreaQuery) ([]Bucket, error) {
	return m.aggregate(ctx, TopAreasPipeline(q))
}
