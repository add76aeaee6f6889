package badger

import (
	"encoding/binary"
	"time"
)

// Key prefixes for different data types
const (
	documentPrefix = "doc:"
	parentPrefix   = "par:"
	summaryPrefix  = "sum:"
	vectorPrefix   = "vec:"
	messagePrefix  = "msg:"
)

// makeDocumentKey generates a key for a document record.
func makeDocumentKey(id string) []byte {
	return []byte(documentPrefix + id)
}

// makeParentKey generates the key of a document's parent map.
func makeParentKey(docID string) []byte {
	return []byte(parentPrefix + docID)
}

// makeSummaryKey generates the key of a document's summary set.
func makeSummaryKey(docID string) []byte {
	return []byte(summaryPrefix + docID)
}

// makeVectorKey generates a composite key for a stored vector.
// Format: prefix:docID:childID
func makeVectorKey(docID, childID string) []byte {
	return []byte(vectorPrefix + docID + ":" + childID)
}

// makeVectorDocPrefix generates the partial key covering one document's vectors.
// Format: prefix:docID:
func makeVectorDocPrefix(docID string) []byte {
	return []byte(vectorPrefix + docID + ":")
}

// makeMessageKey generates a composite key for a chat message.
// Format: prefix:sessionID:timestamp:id
func makeMessageKey(sessionID string, createdAt time.Time, id string) []byte {
	prefix := makeSessionPrefix(sessionID)
	buf := make([]byte, len(prefix)+8+1+len(id))
	offset := copy(buf, prefix)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(createdAt.UnixNano()))
	offset += 8
	buf[offset] = ':'
	copy(buf[offset+1:], id)
	return buf
}

// makeSessionPrefix generates the partial key covering one session.
// Format: prefix:sessionID:
func makeSessionPrefix(sessionID string) []byte {
	return []byte(messagePrefix + sessionID + ":")
}
