// Package artist defines the artist table's stream mutation model and the
// mapping from metadata records to search index documents.
package artist

import (
	"time"

	"github.com/aws/aws-lambda-go/events"
)

// EventType identifies the kind of mutation delivered by the stream.
type EventType int

const (
	EventInsert EventType = iota
	EventModify
	EventRemove
)

// ParseEventType maps a stream record's event name to an EventType.
func ParseEventType(name string) (EventType, bool) {
	switch name {
	case "INSERT":
		return EventInsert, true
	case "MODIFY":
		return EventModify, true
	case "REMOVE":
		return EventRemove, true
	default:
		return 0, false
	}
}

// String implements fmt.Stringer.
func (t EventType) String() string {
	switch t {
	case EventInsert:
		return "INSERT"
	case EventModify:
		return "MODIFY"
	case EventRemove:
		return "REMOVE"
	}
	return "UNKNOWN"
}

// Mutation is one change-feed record, decoded from the stream event.
type Mutation struct {
	Type           EventType
	PartitionKey   string
	SortKey        string
	NewImage       map[string]events.DynamoDBAttributeValue
	OldImage       map[string]events.DynamoDBAttributeValue
	ApproxCreation time.Time
}

// MutationFromStreamRecord decodes a DynamoDB stream record. It returns false
// for records with an unknown event name or missing string keys.
func MutationFromStreamRecord(rec events.DynamoDBEventRecord) (Mutation, bool) {
	eventType, ok := ParseEventType(rec.EventName)
	if !ok {
		return Mutation{}, false
	}

	pk := stringAttr(rec.Change.Keys, AttrPK)
	sk := stringAttr(rec.Change.Keys, AttrSK)
	if pk == "" || sk == "" {
		return Mutation{}, false
	}

	return Mutation{
		Type:           eventType,
		PartitionKey:   pk,
		SortKey:        sk,
		NewImage:       rec.Change.NewImage,
		OldImage:       rec.Change.OldImage,
		ApproxCreation: rec.Change.ApproximateCreationDateTime.Time,
	}, true
}

// Image returns the image required by the mutation's event type: the new
// image for inserts and modifies, the old image for removes.
func (m Mutation) Image() map[string]events.DynamoDBAttributeValue {
	switch m.Type {
	case EventInsert, EventModify:
		return m.NewImage
	case EventRemove:
		return m.OldImage
	}
	return nil
}

// GeoPoint is a geo_point-mapped coordinate pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// SourceKeys records the table key the document was projected from.
type SourceKeys struct {
	PartitionKey string `json:"partitionKey"`
	SortKey      string `json:"sortKey"`
}

// Document is the search index projection of an artist metadata record.
type Document struct {
	ID             string     `json:"id"`
	ArtistID       string     `json:"artistId"`
	Name           string     `json:"name"`
	StudioName     string     `json:"studioName"`
	Styles         []string   `json:"styles"`
	City           string     `json:"city"`
	Country        string     `json:"country"`
	Address        string     `json:"address"`
	Location       *GeoPoint  `json:"location,omitempty"`
	SearchKeywords string     `json:"searchKeywords"`
	LastUpdated    time.Time  `json:"lastUpdated"`
	SourceKeys     SourceKeys `json:"sourceKeys"`
}
