package store

import "context"

// Collection is the subset of a document store collection the router needs.
// Implementations must be safe for concurrent use.
type Collection interface {
	Name() string

	// HasDocuments reports whether the collection holds at least one document.
	HasDocuments(ctx context.Context) (bool, error)

	// CreateIndex creates the index if absent. An index that already exists
	// is not an error.
	CreateIndex(ctx context.Context, spec IndexSpec) error

	InsertOne(ctx context.Context, doc interface{}) error
}

// Database hands out collection handles by name.
type Database interface {
	Collection(name string) Collection
}

// GeoPoint is a GeoJSON point as understood by 2dsphere indexes.
type GeoPoint struct {
	Type        string    `bson:"type" json:"type"`
	Coordinates []float64 `bson:"coordinates" json:"coordinates"`
}

// NewPoint builds a GeoJSON point from x (longitude) and y (latitude).
func NewPoint(x, y float64) GeoPoint {
	return GeoPoint{Type: "Point", Coordinates: []float64{x, y}}
}
