package domain

import (
	"encoding/json"
	"time"
)

// Node is the anchor giving every content item a stable identity. A node
// version points at exactly one content version through FirstChild; edits
// supersede the node row rather than mutating it in place.
type Node struct {
	ID         uint64    `gorm:"primaryKey" json:"id"`
	Version    uint64    `json:"version"`
	UserID     uint64    `json:"user_id"` // 0 = anonymous
	Timestamp  time.Time `json:"timestamp"`
	FirstChild string    `json:"first_child"`
	Lock       string    `json:"lock"`
	Hash       string    `json:"hash"`
	ChainHash  string    `json:"chain_hash"`
}

// NodeRevision preserves a node row as it existed before an edit.
type NodeRevision struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Version    uint64    `gorm:"primaryKey;autoIncrement:false" json:"version"`
	UserID     uint64    `json:"user_id"`
	Timestamp  time.Time `json:"timestamp"`
	FirstChild string    `json:"first_child"`
	Lock       string    `json:"lock"`
	Hash       string    `json:"hash"`
	ChainHash  string    `json:"chain_hash"`
}

func NewNodeRevision(n *Node) *NodeRevision {
	return &NodeRevision{
		ID:         n.ID,
		Version:    n.Version,
		UserID:     n.UserID,
		Timestamp:  n.Timestamp,
		FirstChild: n.FirstChild,
		Lock:       n.Lock,
		Hash:       n.Hash,
		ChainHash:  n.ChainHash,
	}
}

// ChildRef is the decoded form of Node.FirstChild. ContentTypeID is the
// node id anchoring the content type definition; when it equals the
// referring node's own id, the node anchors a type-definition row.
type ChildRef struct {
	ContentID       uint64 `json:"content_id"`
	ContentRevision uint64 `json:"content_revision"`
	ContentTypeID   uint64 `json:"content_type_id"`
}

func (r ChildRef) Encode() string {
	buf, _ := json.Marshal(r)
	return string(buf)
}

func ParseChildRef(raw string) (ChildRef, error) {
	var ref ChildRef
	err := json.Unmarshal([]byte(raw), &ref)
	return ref, err
}
