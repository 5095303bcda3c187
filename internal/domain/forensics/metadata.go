package forensics

// Metadata maps field names to values. A nil value means unknown or not applicable.
type Metadata map[string]any

// Identity keys, always taken from FileInfo.
const (
	KeyFilename     = "filename"
	KeySize         = "size"
	KeyType         = "type"
	KeyLastModified = "lastModified"
)

// Content keys, always present in a merged result and owned by the extractor.
const (
	KeyAuthor       = "author"
	KeyCreatedDate  = "createdDate"
	KeyModifiedDate = "modifiedDate"
)

// NotAvailableAuthor is the author placeholder for types without an extractor.
const NotAvailableAuthor = "Not available for this file type"

var (
	identityKeys = []string{KeyFilename, KeySize, KeyType, KeyLastModified}
	contentKeys  = []string{KeyAuthor, KeyCreatedDate, KeyModifiedDate}
)

// GenericMetadata is the placeholder produced for unrecognised types.
func GenericMetadata() Metadata {
	return Metadata{
		KeyAuthor:       NotAvailableAuthor,
		KeyCreatedDate:  nil,
		KeyModifiedDate: nil,
	}
}

// MergeMetadata builds the metadata section of a report.
//
// Identity keys (filename, size, type, lastModified) always come from info and
// cannot be overridden by the extractor. Every other key comes from extracted;
// author, createdDate and modifiedDate are guaranteed to exist (nil if the
// extractor did not supply them). extracted is not modified.
func MergeMetadata(info FileInfo, extracted Metadata) Metadata {
	out := make(Metadata, len(extracted)+len(identityKeys))
	for k, v := range extracted {
		out[k] = v
	}
	for _, k := range contentKeys {
		if _, ok := out[k]; !ok {
			out[k] = nil
		}
	}

	out[KeyFilename] = info.Filename
	out[KeySize] = info.Size
	if info.DeclaredType != "" {
		out[KeyType] = info.DeclaredType
	} else {
		out[KeyType] = nil
	}
	out[KeyLastModified] = info.ReceivedAt
	return out
}
