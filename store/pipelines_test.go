package store

import (
	"testing"
	"time"

	"civicconnect-be/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func stageValue(t *testing.T, stage bson.D, key string) interface{} {
	t.Helper()
	require.Len(t, stage, 1)
	require.Equal(t, key, stage[0].Key)
	return stage[0].Value
}

func TestTrendsPipeline_DayWindow(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)

	p := TrendsPipeline(TrendQuery{From: &from, To: &to, GroupBy: GroupByDay, Category: "Roads"})
	require.Len(t, p, 3)

	match := stageValue(t, p[0], "$match").(bson.M)
	assert.Equal(t, bson.M{"$gte": from, "$lt": to}, match["createdAt"])
	assert.Equal(t, "Roads", match["category"])
	_, hasTown := match["town"]
	assert.False(t, hasTown)

	group := stageValue(t, p[1], "$group").(bson.M)
	id := group["_id"].(bson.M)["$dateToString"].(bson.M)
	assert.Equal(t, "%Y-%m-%d", id["format"])
	assert.Equal(t, "UTC", id["timezone"])

	sort := stageValue(t, p[2], "$sort").(bson.D)
	assert.Equal(t, bson.D{{Key: "_id", Value: 1}}, sort)
}

func TestTrendsPipeline_MonthNoWindow(t *testing.T) {
	p := TrendsPipeline(TrendQuery{GroupBy: GroupByMonth, Town: "Downtown"})
	match := stageValue(t, p[0], "$match").(bson.M)
	assert.Equal(t, bson.M{"town": "Downtown"}, match)

	group := stageValue(t, p[1], "$group").(bson.M)
	id := group["_id"].(bson.M)["$dateToString"].(bson.M)
	assert.Equal(t, "%Y-%m", id["format"])
}

func TestTopAreasPipeline(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := TopAreasPipeline(AreaQuery{From: &from, Limit: 5})
	require.Len(t, p, 4)

	match := stageValue(t, p[0], "$match").(bson.M)
	assert.Equal(t, bson.M{"$gte": from}, match["createdAt"])

	sort := stageValue(t, p[2], "$sort").(bson.D)
	assert.Equal(t, "count", sort[0].Key)
	assert.Equal(t, -1, sort[0].Value)

	assert.Equal(t, int64(5), stageValue(t, p[3], "$limit"))
}

func TestGroupCountPipeline_AppliesFilter(t *testing.T) {
	emp := primitive.NewObjectID()
	p := GroupCountPipeline("status", ComplaintFilter{AssignedTo: &emp})
	match := stageValue(t, p[0], "$match").(bson.M)
	assert.Equal(t, bson.M{"assignedTo": emp}, match)

	group := stageValue(t, p[1], "$group").(bson.M)
	assert.Equal(t, "$status", group["_id"])
}

func TestComplaintFilterDoc(t *testing.T) {
	creator := primitive.NewObjectID()
	doc := complaintFilterDoc(ComplaintFilter{
		Town:      "Downtown",
		CreatedBy: &creator,
		Status:    models.StatusPending,
	})
	assert.Equal(t, bson.M{
		"town":      "Downtown",
		"createdBy": creator,
		"status":    models.StatusPending,
	}, doc)
	assert.Empty(t, complaintFilterDoc(ComplaintFilter{}))
}

func TestSortStatusBuckets(t *testing.T) {
	in := []Bucket{
		{ID: "Resolved", Count: 1},
		{ID: "Legacy", Count: 4},
		{ID: "Assigned", Count: 2},
		{ID: "In Progress", Count: 3},
	}
	out := SortStatusBuckets(in)
	ids := make([]string, 0, len(out))
	for _, b := range out {
		ids = append(ids, b.ID)
	}
	assert.Equal(t, []string{"Assigned", "In Progress", "Resolved", "Legacy"}, ids)
}

func TestParseGroupBy(t *testing.T) {
	assert.Equal(t, GroupByMonth, ParseGroupBy("month"))
	assert.Equal(t, GroupByDay, ParseGroupBy("day"))
	assert.Equal(t, GroupByDay, ParseGroupBy("week"))
	assert.Equal(t, "2006-01", GroupByMonth.Layout())
}
