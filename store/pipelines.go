package store

import (
	"time"

	"civicconnect-be/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// complaintFilterDoc translates a ComplaintFilter into a query document.
func complaintFilterDoc(f ComplaintFilter) bson.M {
	filter := bson.M{}
	if f.Town != "" {
		filter["town"] = f.Town
	}
	if f.CreatedBy != nil {
		filter["createdBy"] = *f.CreatedBy
	}
	if f.AssignedTo != nil {
		filter["assignedTo"] = *f.AssignedTo
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.Category != "" {
		filter["category"] = f.Category
	}
	return filter
}

// createdAtMatch builds the [from, to) window on createdAt.
func createdAtMatch(match bson.M, from, to *time.Time) {
	r := bson.M{}
	if from != nil {
		r["$gte"] = *from
	}
	if to != nil {
		r["$lt"] = *to
	}
	if len(r) > 0 {
		match["createdAt"] = r
	}
}

func dateFormat(g GroupBy) string {
	if g == GroupByMonth {
		return "%Y-%m"
	}
	return "%Y-%m-%d"
}

// TrendsPipeline groups complaints by truncated creation date, ascending.
// Empty buckets are not produced.
func TrendsPipeline(q TrendQuery) mongo.Pipeline {
	match := bson.M{}
	createdAtMatch(match, q.From, q.To)
	if q.Category != "" {
		match["category"] = q.Category
	}
	if q.Town != "" {
		match["town"] = q.Town
	}

	return mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{"$dateToString": bson.M{
				"format":   dateFormat(q.GroupBy),
				"date":     "$createdAt",
				"timezone": "UTC",
			}},
			"count": bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}
}

// TopAreasPipeline ranks towns by complaint count, descending, ties by name.
func TopAreasPipeline(q AreaQuery) mongo.Pipeline {
	match := bson.M{}
	createdAtMatch(match, q.From, q.To)

	return mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{"_id": "$town", "count": bson.M{"$sum": 1}}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: int64(q.Limit)}},
	}
}

// GroupCountPipeline counts documents matching f per distinct value of field.
func GroupCountPipeline(field string, f ComplaintFilter) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: complaintFilterDoc(f)}},
		{{Key: "$group", Value: bson.M{"_id": "$" + field, "count": bson.M{"$sum": 1}}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}
}

// SortStatusBuckets sorts status buckets in lifecycle order instead of by name.
func SortStatusBuckets(buckets []Bucket) []Bucket {
	byID := make(map[string]Bucket, len(buckets))
	for _, b := range buckets {
		byID[b.ID] = b
	}
	out := make([]Bucket, 0, len(buckets))
	for _, s := range models.AllStatuses {
		if b, ok := byID[string(s)]; ok {
			out = append(out, b)
			delete(byID, string(s))
		}
	}
	for _, b := range buckets {
		if _, ok := byID[b.ID]; ok {
			out = append(out, b)
		}
	}
	return out
}
