package models

import (
	"time"

	"gorm.io/datatypes"
)

// BusinessConnection is the linked ad account / page for an operator identity.
type BusinessConnection struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	Identity         string          `gorm:"type:varchar(255);not null;uniqueIndex" json:"identity"`
	BusinessKey      string          `gorm:"type:varchar(255);not null" json:"business_key"`
	AdAccountID      string          `gorm:"type:varchar(64)" json:"ad_account_id"`
	PageID           string          `gorm:"type:varchar(64)" json:"page_id"`
	InstagramActorID string          `gorm:"type:varchar(64)" json:"instagram_actor_id"`
	PixelID          string          `gorm:"type:varchar(64)" json:"pixel_id"`
	AppID            string          `gorm:"type:varchar(64)" json:"app_id"`
	AppStoreURL      string          `gorm:"type:text" json:"app_store_url"`
	AccessToken      string          `gorm:"type:text" json:"-"`
	OperatorPhone    string          `gorm:"type:varchar(50);index" json:"operator_phone"`
	WebsiteURL       string          `gorm:"type:text" json:"website_url"`
	Phone            string          `gorm:"type:varchar(50)" json:"phone"`
	Assets           []BusinessAsset `gorm:"foreignKey:ConnectionID;constraint:OnDelete:CASCADE;" json:"assets"`
	SyncedAt         *time.Time      `json:"synced_at"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (BusinessConnection) TableName() string {
	return "business_connections"
}

// BusinessAsset is a verified page (and its linked Instagram account) cached from the platform.
type BusinessAsset struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ConnectionID uint      `gorm:"index;not null" json:"connection_id"`
	PageID       string    `gorm:"type:varchar(64);not null" json:"page_id"`
	Name         string    `gorm:"type:varchar(255)" json:"name"`
	InstagramID  string    `gorm:"type:varchar(64)" json:"instagram_id"`
	Username     string    `gorm:"type:varchar(255)" json:"username"`
	LogoURL      string    `gorm:"type:text" json:"logo_url"`
	Phone        string    `gorm:"type:varchar(50)" json:"phone"`
	Website      string    `gorm:"type:text" json:"website"`
	PageToken    string    `gorm:"type:text" json:"-"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (BusinessAsset) TableName() string {
	return "business_assets"
}

// IntakeSession holds the opaque state document for one (identity, business) pair.
type IntakeSession struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Identity    string         `gorm:"type:varchar(255);not null;uniqueIndex:idx_session_key" json:"identity"`
	BusinessKey string         `gorm:"type:varchar(255);not null;uniqueIndex:idx_session_key" json:"business_key"`
	Document    datatypes.JSON `json:"document"`
	StartedAt   time.Time      `gorm:"autoCreateTime" json:"started_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (IntakeSession) TableName() string {
	return "intake_sessions"
}

// CampaignRun records one provisioning or publishing execution for reporting.
type CampaignRun struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	RunID              string         `gorm:"type:varchar(64);uniqueIndex" json:"run_id"`
	Identity           string         `gorm:"type:varchar(255);index" json:"identity"`
	BusinessKey        string         `gorm:"type:varchar(255)" json:"business_key"`
	Kind               string         `gorm:"type:varchar(20)" json:"kind"` // campaign, organic
	RequestedObjective string         `gorm:"type:varchar(50)" json:"requested_objective"`
	EffectiveObjective string         `gorm:"type:varchar(50)" json:"effective_objective"`
	CreatedIDs         datatypes.JSON `json:"created_ids"`
	Success            bool           `json:"success"`
	ErrorMessage       string         `gorm:"type:text" json:"error_message"`
	CreatedAt          time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (CampaignRun) TableName() string {
	return "campaign_runs"
}

// SystemSetting mirrors secrets from the environment so they can be rotated at runtime.
type SystemSetting struct {
	Key       string    `gorm:"primaryKey;type:varchar(100)" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SystemSetting) TableName() string {
	return "system_settings"
}
