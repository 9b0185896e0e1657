package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Size units used for chunk sizing
const (
	KB int64 = 1024
	MB int64 = 1024 * KB
	GB int64 = 1024 * MB
)

// ArtifactMetadata describes the chunking scheme of one cached artifact.
// It is written once the total size and chunk size are known and must not
// change while chunks produced under it remain in the store.
type ArtifactMetadata struct {
	ArtifactID     string    `cbor:"1,keyasint" json:"artifact_id"`
	SourceURL      string    `cbor:"2,keyasint" json:"source_url"`
	TotalSizeBytes int64     `cbor:"3,keyasint" json:"total_size_bytes"`
	ChunkSizeBytes int64     `cbor:"4,keyasint" json:"chunk_size_bytes"`
	TotalChunks    int       `cbor:"5,keyasint" json:"total_chunks"`
	CreatedAt      time.Time `cbor:"6,keyasint" json:"created_at"`
}

// NewArtifactMetadata builds metadata for an artifact of totalSize bytes
// split into chunks of chunkSize bytes
func NewArtifactMetadata(artifactID, sourceURL string, totalSize, chunkSize int64) (*ArtifactMetadata, error) {
	if totalSize <= 0 {
		return nil, fmt.Errorf("%w: total size %d", ErrInvalidInput, totalSize)
	}
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size %d", ErrInvalidInput, chunkSize)
	}
	return &ArtifactMetadata{
		ArtifactID:     artifactID,
		SourceURL:      sourceURL,
		TotalSizeBytes: totalSize,
		ChunkSizeBytes: chunkSize,
		TotalChunks:    ChunkCount(totalSize, chunkSize),
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// ChunkCount returns ceil(totalSize / chunkSize)
func ChunkCount(totalSize, chunkSize int64) int {
	if totalSize <= 0 || chunkSize <= 0 {
		return 0
	}
	return int((totalSize + chunkSize - 1) / chunkSize)
}

// ChunkRange is the inclusive byte range covered by one chunk
type ChunkRange struct {
	Index int
	Start int64
	End   int64
}

// Len returns the number of bytes in the range
func (r ChunkRange) Len() int64 {
	return r.End - r.Start + 1
}

// Header returns the value for an HTTP Range request header
func (r ChunkRange) Header() string {
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

// Range returns the byte range of chunk index. The last chunk is truncated
// to the remaining bytes.
func (m *ArtifactMetadata) Range(index int) ChunkRange {
	start := int64(index) * m.ChunkSizeBytes
	end := start + m.ChunkSizeBytes - 1
	if end > m.TotalSizeBytes-1 {
		end = m.TotalSizeBytes - 1
	}
	return ChunkRange{Index: index, Start: start, End: end}
}

// Ranges returns the byte ranges of every chunk in index order
func (m *ArtifactMetadata) Ranges() []ChunkRange {
	ranges := make([]ChunkRange, 0, m.TotalChunks)
	for i := 0; i < m.TotalChunks; i++ {
		ranges = append(ranges, m.Range(i))
	}
	return ranges
}

// Compatible reports whether a resumed download for sourceURL of size
// totalSize can keep using the chunks cached under this metadata
func (m *ArtifactMetadata) Compatible(sourceURL string, totalSize int64) bool {
	return m.SourceURL == sourceURL &&
		m.TotalSizeBytes == totalSize &&
		m.ChunkSizeBytes > 0 &&
		m.TotalChunks == ChunkCount(m.TotalSizeBytes, m.ChunkSizeBytes)
}

// MetadataKey returns the store key of an artifact's metadata record
func MetadataKey(artifactID string) string {
	return artifactID + "_metadata"
}

// ChunkKey returns the store key of one chunk's bytes
func ChunkKey(artifactID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", artifactID, index)
}

// ChunkDigestKey returns the store key of one chunk's BLAKE3 digest
func ChunkDigestKey(artifactID string, index int) string {
	return ChunkKey(artifactID, index) + "_blake3"
}

// ChunkKeyPrefix is the prefix shared by every chunk and digest key of an
// artifact
func ChunkKeyPrefix(artifactID string) string {
	return artifactID + "_chunk_"
}

// ParseChunkKey extracts the chunk index from a chunk or digest key of
// artifactID
func ParseChunkKey(artifactID, key string) (index int, digest bool, ok bool) {
	rest, found := strings.CutPrefix(key, ChunkKeyPrefix(artifactID))
	if !found {
		return 0, false, false
	}
	rest, digest = strings.CutSuffix(rest, "_blake3")
	index, err := strconv.Atoi(rest)
	if err != nil || index < 0 || strconv.Itoa(index) != rest {
		return 0, false, false
	}
	return index, digest, true
}
