package domain

import "time"

// User represents a user in the system. The password itself never touches
// the table, only the bcrypt hash does.
type User struct {
	ContentMeta
	Username     string    `gorm:"uniqueIndex" json:"username"`
	Email        string    `gorm:"index" json:"email"`
	PasswordHash string    `json:"password_hash"`
	Roles        string    `json:"roles"`
	LastLogin    time.Time `json:"last_login"`
}

func (u *User) Class() string { return ClassUser }

type UserRevision struct {
	RevisionMeta
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	Roles        string    `json:"roles"`
	LastLogin    time.Time `json:"last_login"`
}

func NewUserRevision(u *User) *UserRevision {
	return &UserRevision{
		RevisionMeta: revisionMetaFrom(u.ContentMeta),
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Roles:        u.Roles,
		LastLogin:    u.LastLogin,
	}
}

// SafeUser represents a user without sensitive information
type SafeUser struct {
	ID        uint64    `json:"id"`
	Version   uint64    `json:"version"`
	NodeID    uint64    `json:"node_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Roles     string    `json:"roles"`
	LastLogin time.Time `json:"last_login"`
}

// ToSafeUser converts a User to a SafeUser
func (u *User) ToSafeUser() SafeUser {
	return SafeUser{
		ID:        u.ID,
		Version:   u.Version,
		NodeID:    u.NodeID,
		Username:  u.Username,
		Email:     u.Email,
		Roles:     u.Roles,
		LastLogin: u.LastLogin,
	}
}
