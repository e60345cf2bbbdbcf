package artist

import "strings"

// DynamoDB key attributes and values for the artist table.
const (
	AttrPK = "pk"
	AttrSK = "sk"

	// PrefixArtist is the partition key prefix for artist entities.
	PrefixArtist = "ARTIST#"
	// SKMetadata is the sort key of an artist's canonical metadata record.
	// Auxiliary rows (portfolio images, style fan-out) use other sort keys.
	SKMetadata = "METADATA"
)

// Attribute names on the metadata record.
const (
	AttrName       = "name"
	AttrStudioName = "studioName"
	AttrStyles     = "styles"
	AttrCity       = "city"
	AttrCountry    = "country"
	AttrAddress    = "address"
	AttrLatitude   = "latitude"
	AttrLongitude  = "longitude"
)

// IsMetadataKey reports whether a key pair identifies an artist's canonical
// metadata record.
func IsMetadataKey(pk, sk string) bool {
	return strings.HasPrefix(pk, PrefixArtist) && sk == SKMetadata
}

// IDFromPartitionKey derives the search document id from the partition key.
// The derivation is deterministic: the same partition key always yields the
// same id.
func IDFromPartitionKey(pk string) string {
	return strings.TrimPrefix(pk, PrefixArtist)
}
