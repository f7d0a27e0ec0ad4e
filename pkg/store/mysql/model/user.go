package model

import "time"

// User carries the fields the task subsystem reads: identity plus the
// OAuth token blobs the sync and tool collaborators need. Account
// management lives elsewhere.
type User struct {
	ID                 int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Email              string    `gorm:"column:email;type:varchar(255);not null;uniqueIndex:idx_user_email" json:"email"`
	GoogleOAuthTokens  JSONMap   `gorm:"column:google_oauth_tokens;type:json" json:"-"`
	HubspotOAuthTokens JSONMap   `gorm:"column:hubspot_oauth_tokens;type:json" json:"-"`
	HubspotPortalID    string    `gorm:"column:hubspot_portal_id;type:varchar(100);index:idx_user_hubspot_portal" json:"hubspot_portal_id,omitempty"`
	GmailWatchExpiry   *time.Time `gorm:"column:gmail_watch_expiry;type:datetime(3)" json:"-"`
	CreatedAt          time.Time `gorm:"column:created_at;type:datetime(3);not null" json:"created_at"`
	UpdatedAt          time.Time `gorm:"column:updated_at;type:datetime(3);not null" json:"updated_at"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}

// GoogleAccessToken returns the stored Google access/refresh token pair.
func (u *User) GoogleAccessToken() (access, refresh string) {
	if u.GoogleOAuthTokens == nil {
		return "", ""
	}
	access, _ = u.GoogleOAuthTokens["access_token"].(string)
	refresh, _ = u.GoogleOAuthTokens["refresh_token"].(string)
	return access, refresh
}

// HubspotAccessToken returns the stored HubSpot access token.
func (u *User) HubspotAccessToken() string {
	if u.HubspotOAuthTokens == nil {
		return ""
	}
	token, _ := u.HubspotOAuthTokens["access_token"].(string)
	return token
}
