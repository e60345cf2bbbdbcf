package artist

import (
	"reflect"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
)

var testNow = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

func metadataMutation(pk string, img map[string]events.DynamoDBAttributeValue) Mutation {
	return Mutation{
		Type:         EventInsert,
		PartitionKey: pk,
		SortKey:      SKMetadata,
		NewImage:     img,
	}
}

func TestTransform_FullRecord(t *testing.T) {
	img := map[string]events.DynamoDBAttributeValue{
		AttrName:       events.NewStringAttribute("Ana Flores"),
		AttrStudioName: events.NewStringAttribute("Black Lotus"),
		AttrStyles: events.NewListAttribute([]events.DynamoDBAttributeValue{
			events.NewStringAttribute("blackwork"),
			events.NewStringAttribute("fineline"),
		}),
		AttrCity:      events.NewStringAttribute("Lisbon"),
		AttrCountry:   events.NewStringAttribute("Portugal"),
		AttrAddress:   events.NewStringAttribute("Rua Augusta 12"),
		AttrLatitude:  events.NewNumberAttribute("38.7223"),
		AttrLongitude: events.NewNumberAttribute("-9.1393"),
	}

	doc, ok := Transform(metadataMutation("ARTIST#42", img), testNow)
	if !ok {
		t.Fatal("expected record to be projected")
	}

	if doc.ID != "42" {
		t.Errorf("ID = %q, want %q", doc.ID, "42")
	}
	if doc.ArtistID != "42" {
		t.Errorf("ArtistID = %q, want %q", doc.ArtistID, "42")
	}
	if doc.Name != "Ana Flores" {
		t.Errorf("Name = %q, want %q", doc.Name, "Ana Flores")
	}
	if doc.StudioName != "Black Lotus" {
		t.Errorf("StudioName = %q, want %q", doc.StudioName, "Black Lotus")
	}
	if !reflect.DeepEqual(doc.Styles, []string{"blackwork", "fineline"}) {
		t.Errorf("Styles = %v, want [blackwork fineline]", doc.Styles)
	}
	if doc.City != "Lisbon" {
		t.Errorf("City = %q, want %q", doc.City, "Lisbon")
	}
	if doc.Location == nil {
		t.Fatal("expected location to be set")
	}
	if doc.Location.Lat != 38.7223 || doc.Location.Lon != -9.1393 {
		t.Errorf("Location = %+v, want {38.7223 -9.1393}", doc.Location)
	}
	want := "ana flores black lotus blackwork fineline lisbon"
	if doc.SearchKeywords != want {
		t.Errorf("SearchKeywords = %q, want %q", doc.SearchKeywords, want)
	}
	if !doc.LastUpdated.Equal(testNow) {
		t.Errorf("LastUpdated = %v, want %v", doc.LastUpdated, testNow)
	}
	if doc.SourceKeys.PartitionKey != "ARTIST#42" || doc.SourceKeys.SortKey != SKMetadata {
		t.Errorf("SourceKeys = %+v", doc.SourceKeys)
	}
}

func TestTransform_DeterministicID(t *testing.T) {
	img := map[string]events.DynamoDBAttributeValue{
		AttrName: events.NewStringAttribute("Test"),
	}

	first, _ := Transform(metadataMutation("ARTIST#42", img), testNow)
	second, _ := Transform(metadataMutation("ARTIST#42", img), testNow.Add(time.Hour))

	if first.ID != second.ID {
		t.Errorf("id not deterministic: %q vs %q", first.ID, second.ID)
	}
}

func TestTransform_FiltersNonArtistRecords(t *testing.T) {
	tests := []struct {
		name string
		pk   string
		sk   string
	}{
		{"wrong prefix", "OTHER#1", SKMetadata},
		{"image child record", "ARTIST#42", "IMAGE#7"},
		{"style fan-out record", "ARTIST#42", "STYLE#blackwork"},
		{"no prefix at all", "42", SKMetadata},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Mutation{
				Type:         EventInsert,
				PartitionKey: tt.pk,
				SortKey:      tt.sk,
				NewImage: map[string]events.DynamoDBAttributeValue{
					AttrName: events.NewStringAttribute("Test"),
				},
			}
			if doc, ok := Transform(m, testNow); ok {
				t.Errorf("expected skip, got document %+v", doc)
			}
		})
	}
}

func TestTransform_DefaultsForAbsentFields(t *testing.T) {
	doc, ok := Transform(metadataMutation("ARTIST#7", map[string]events.DynamoDBAttributeValue{}), testNow)
	if !ok {
		t.Fatal("expected record to be projected")
	}

	if doc.Name != "" || doc.StudioName != "" || doc.City != "" || doc.Country != "" || doc.Address != "" {
		t.Errorf("expected empty string defaults, got %+v", doc)
	}
	if doc.Styles == nil {
		t.Error("Styles should be an empty list, not nil")
	}
	if len(doc.Styles) != 0 {
		t.Errorf("Styles = %v, want empty", doc.Styles)
	}
	if doc.Location != nil {
		t.Errorf("Location = %+v, want nil", doc.Location)
	}
	if doc.SearchKeywords != "" {
		t.Errorf("SearchKeywords = %q, want empty", doc.SearchKeywords)
	}
}

func TestTransform_LocationRequiresBothCoordinates(t *testing.T) {
	tests := []struct {
		name string
		img  map[string]events.DynamoDBAttributeValue
		want bool
	}{
		{
			"latitude only",
			map[string]events.DynamoDBAttributeValue{
				AttrLatitude: events.NewNumberAttribute("38.7"),
			},
			false,
		},
		{
			"longitude only",
			map[string]events.DynamoDBAttributeValue{
				AttrLongitude: events.NewNumberAttribute("-9.1"),
			},
			false,
		},
		{
			"unparseable latitude",
			map[string]events.DynamoDBAttributeValue{
				AttrLatitude:  events.NewStringAttribute("not-a-number"),
				AttrLongitude: events.NewNumberAttribute("-9.1"),
			},
			false,
		},
		{
			"numeric strings",
			map[string]events.DynamoDBAttributeValue{
				AttrLatitude:  events.NewStringAttribute("38.7"),
				AttrLongitude: events.NewStringAttribute("-9.1"),
			},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, ok := Transform(metadataMutation("ARTIST#1", tt.img), testNow)
			if !ok {
				t.Fatal("expected record to be projected")
			}
			if got := doc.Location != nil; got != tt.want {
				t.Errorf("Location set = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTransform_KeywordsDropEmptySegments(t *testing.T) {
	img := map[string]events.DynamoDBAttributeValue{
		AttrName: events.NewStringAttribute("Kai"),
		AttrCity: events.NewStringAttribute("Berlin"),
	}

	doc, _ := Transform(metadataMutation("ARTIST#9", img), testNow)
	if doc.SearchKeywords != "kai berlin" {
		t.Errorf("SearchKeywords = %q, want %q", doc.SearchKeywords, "kai berlin")
	}
}

func TestTransform_StylesFromStringSet(t *testing.T) {
	img := map[string]events.DynamoDBAttributeValue{
		AttrStyles: events.NewStringSetAttribute([]string{"japanese", "realism"}),
	}

	doc, _ := Transform(metadataMutation("ARTIST#3", img), testNow)
	if len(doc.Styles) != 2 {
		t.Errorf("Styles = %v, want 2 entries", doc.Styles)
	}
}

func TestTransform_DoesNotMutateInput(t *testing.T) {
	img := map[string]events.DynamoDBAttributeValue{
		AttrName: events.NewStringAttribute("Ana"),
	}
	m := metadataMutation("ARTIST#42", img)

	if _, ok := Transform(m, testNow); !ok {
		t.Fatal("expected record to be projected")
	}

	if len(m.NewImage) != 1 {
		t.Errorf("input image was mutated: %v", m.NewImage)
	}
}
