package artist

import (
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
)

// Transform projects a mutation's new image onto a search index document.
// It returns false when the record is not an artist's canonical metadata
// record; auxiliary rows under the same partition key are never projected.
// Absent attributes map to explicit zero values (empty string, empty list),
// except the location, which is nil unless both coordinates are present and
// numeric. The function performs no I/O and does not mutate its input.
func Transform(m Mutation, now time.Time) (*Document, bool) {
	if !IsMetadataKey(m.PartitionKey, m.SortKey) {
		return nil, false
	}

	img := m.NewImage
	id := IDFromPartitionKey(m.PartitionKey)

	doc := &Document{
		ID:          id,
		ArtistID:    id,
		Name:        stringAttr(img, AttrName),
		StudioName:  stringAttr(img, AttrStudioName),
		Styles:      stringListAttr(img, AttrStyles),
		City:        stringAttr(img, AttrCity),
		Country:     stringAttr(img, AttrCountry),
		Address:     stringAttr(img, AttrAddress),
		LastUpdated: now,
		SourceKeys: SourceKeys{
			PartitionKey: m.PartitionKey,
			SortKey:      m.SortKey,
		},
	}

	lat, latOK := numberAttr(img, AttrLatitude)
	lon, lonOK := numberAttr(img, AttrLongitude)
	if latOK && lonOK {
		doc.Location = &GeoPoint{Lat: lat, Lon: lon}
	}

	doc.SearchKeywords = buildKeywords(doc.Name, doc.StudioName, doc.Styles, doc.City)
	return doc, true
}

// buildKeywords joins name, studio name, styles, and city into a lowercase
// space-separated string, dropping empty segments.
func buildKeywords(name, studioName string, styles []string, city string) string {
	segments := make([]string, 0, len(styles)+3)
	for _, s := range append([]string{name, studioName}, styles...) {
		if s != "" {
			segments = append(segments, s)
		}
	}
	if city != "" {
		segments = append(segments, city)
	}
	return strings.ToLower(strings.Join(segments, " "))
}

// stringAttr returns the string value of an attribute, or "" when absent or
// not a string.
func stringAttr(img map[string]events.DynamoDBAttributeValue, name string) string {
	v, ok := img[name]
	if !ok || v.DataType() != events.DataTypeString {
		return ""
	}
	return v.String()
}

// stringListAttr returns an attribute's string members. Both list and
// string-set encodings are accepted; non-string list members are dropped.
// The result is never nil.
func stringListAttr(img map[string]events.DynamoDBAttributeValue, name string) []string {
	out := []string{}
	v, ok := img[name]
	if !ok {
		return out
	}
	switch v.DataType() {
	case events.DataTypeList:
		for _, item := range v.List() {
			if item.DataType() == events.DataTypeString {
				out = append(out, item.String())
			}
		}
	case events.DataTypeStringSet:
		out = append(out, v.StringSet()...)
	}
	return out
}

// numberAttr parses an attribute as a float. Number attributes are used
// as-is; string attributes are accepted when they parse as numbers.
func numberAttr(img map[string]events.DynamoDBAttributeValue, name string) (float64, bool) {
	v, ok := img[name]
	if !ok {
		return 0, false
	}
	switch v.DataType() {
	case events.DataTypeNumber:
		f, err := v.Float()
		if err != nil {
			return 0, false
		}
		return f, true
	case events.DataTypeString:
		f, err := strconv.ParseFloat(v.String(), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
