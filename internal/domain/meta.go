// Package domain holds the persisted entity types. Every content table
// shares the same bookkeeping columns through the embedded ContentMeta, and
// every revision table shares RevisionMeta with an (id, version) composite
// key. Revision rows are append-only.
package domain

import "time"

// Content class identifiers, the closed set the dispatch registry knows.
const (
	ClassUser        = "User"
	ClassArticle     = "Article"
	ClassSite        = "Site"
	ClassContentType = "ContentType"
)

// ContentMeta is the bookkeeping every live content row carries.
type ContentMeta struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	Version   uint64    `json:"version"`
	NodeID    uint64    `gorm:"index" json:"node_id"`
	Hash      string    `json:"hash"`
	ChainHash string    `json:"chain_hash"`
	Timestamp time.Time `json:"timestamp"`
	Lock      string    `json:"lock"`
}

// Meta is promoted through embedding so generic store code can reach the
// bookkeeping fields of any content struct.
func (m *ContentMeta) Meta() *ContentMeta { return m }

// RevisionMeta mirrors ContentMeta with the version preserved in the key.
type RevisionMeta struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Version   uint64    `gorm:"primaryKey;autoIncrement:false" json:"version"`
	NodeID    uint64    `gorm:"index" json:"node_id"`
	Hash      string    `json:"hash"`
	ChainHash string    `json:"chain_hash"`
	Timestamp time.Time `json:"timestamp"`
	Lock      string    `json:"lock"`
}

func (m *RevisionMeta) Rev() *RevisionMeta { return m }

// Content is implemented by every live content struct (*User, *Article,
// *Site, *ContentType).
type Content interface {
	Meta() *ContentMeta
	Class() string
}

func revisionMetaFrom(m ContentMeta) RevisionMeta {
	return RevisionMeta{
		ID:        m.ID,
		Version:   m.Version,
		NodeID:    m.NodeID,
		Hash:      m.Hash,
		ChainHash: m.ChainHash,
		Timestamp: m.Timestamp,
		Lock:      m.Lock,
	}
}
