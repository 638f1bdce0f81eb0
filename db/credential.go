package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// credentialRowID pins the single stored session to one row.
const credentialRowID = 1

// Credential is the logged-in user together with the current access token.
// SessionCookie holds the refresh cookie issued at login so a later process can renew the session.
type Credential struct {
	ID              uint      `gorm:"primaryKey" json:"-"`
	AccessToken     string    `json:"access_token,omitempty"`
	SessionCookie   string    `json:"session_cookie,omitempty"`
	UserID          int64     `json:"user_id,omitempty"`
	Email           string    `json:"email,omitempty"`
	NickName        string    `json:"nick_name,omitempty"`
	Role            string    `json:"role,omitempty"`
	ProfileImageURL string    `json:"profile_image_url,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// HasToken reports whether the credential carries an access token.
func (c *Credential) HasToken() bool {
	return c != nil && c.AccessToken != ""
}

// CredentialRepository persists the current session.
// Get returns nil, nil when nobody is logged in.
type CredentialRepository interface {
	Get(ctx context.Context) (*Credential, error)
	Upsert(ctx context.Context, cred *Credential) error
	Clear(ctx context.Context) error
}

// gormCredentialRepo is a GORM-backed implementation of CredentialRepository.
// Use constructor NewCredentialRepository to obtain an instance.
type gormCredentialRepo struct{ db *gorm.DB }

// NewCredentialRepository creates a CredentialRepository. Accepts *gorm.DB to avoid global access.
func NewCredentialRepository(db *gorm.DB) CredentialRepository {
	return &gormCredentialRepo{db: db}
}

// Migrate creates the credential table on the given connection.
func Migrate(gdb *gorm.DB) error {
	return migrateTables(gdb)
}

func (r *gormCredentialRepo) Get(ctx context.Context) (*Credential, error) {
	if r.db == nil {
		return nil, fmt.Errorf("repository not initialized")
	}
	var cred Credential
	err := r.db.WithContext(ctx).First(&cred, "id = ?", credentialRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (r *gormCredentialRepo) Upsert(ctx context.Context, cred *Credential) error {
	if r.db == nil {
		return fmt.Errorf("repository not initialized")
	}
	if cred == nil {
		return fmt.Errorf("credential is nil")
	}
	row := *cred
	row.ID = credentialRowID
	row.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"access_token", "session_cookie", "user_id", "email",
			"nick_name", "role", "profile_image_url", "updated_at",
		}),
	}).Create(&row).Error
}

func (r *gormCredentialRepo) Clear(ctx context.Context) error {
	if r.db == nil {
		return fmt.Errorf("repository not initialized")
	}
	return r.db.WithContext(ctx).Where("id = ?", credentialRowID).Delete(&Credential{}).Error
}
