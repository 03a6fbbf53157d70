// Package business resolves an operator identity to its connected ad account,
// page and Instagram assets.
package business

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"adpilot/internal/apperrors"
	"adpilot/internal/meta"
	"adpilot/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PageLister is the account/asset resolution backend.
type PageLister interface {
	ListPages(ctx context.Context, token string) ([]meta.Page, error)
}

type Directory struct {
	db     *gorm.DB
	pages  PageLister
	logger *zap.Logger
}

func NewDirectory(db *gorm.DB, pages PageLister, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{db: db, pages: pages, logger: logger}
}

// LinkRequest carries the result of an external account-linking flow.
type LinkRequest struct {
	Identity         string `json:"identity" binding:"required"`
	AccessToken      string `json:"access_token" binding:"required"`
	AdAccountID      string `json:"ad_account_id"`
	BusinessKey      string `json:"business_key"`
	PageID           string `json:"page_id"`
	InstagramActorID string `json:"instagram_actor_id"`
	PixelID          string `json:"pixel_id"`
	AppID            string `json:"app_id"`
	AppStoreURL      string `json:"app_store_url"`
	OperatorPhone    string `json:"operator_phone"`
	WebsiteURL       string `json:"website_url"`
	Phone            string `json:"phone"`
}

// Connection returns the identity's connection with its assets, or a
// ConfigurationError when none is linked.
func (d *Directory) Connection(ctx context.Context, identity string) (*models.BusinessConnection, error) {
	var conn models.BusinessConnection
	err := d.db.WithContext(ctx).Preload("Assets").
		Where("identity = ?", strings.TrimSpace(identity)).
		First(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Configuration("business.connection", "no connected business for %s; link an ad account first", identity)
		}
		return nil, err
	}
	return &conn, nil
}

// ByOperatorPhone resolves the identity bound to a chat-channel phone number.
func (d *Directory) ByOperatorPhone(ctx context.Context, phone string) (*models.BusinessConnection, error) {
	var conn models.BusinessConnection
	err := d.db.WithContext(ctx).Preload("Assets").
		Where("operator_phone = ?", strings.TrimPrefix(strings.TrimSpace(phone), "+")).
		First(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Configuration("business.operator", "phone %s is not linked to any operator", phone)
		}
		return nil, err
	}
	return &conn, nil
}

// Link creates or updates the identity's single connection. Empty fields in the
// request keep the stored value.
func (d *Directory) Link(ctx context.Context, req LinkRequest) (*models.BusinessConnection, error) {
	var conn models.BusinessConnection
	err := d.db.WithContext(ctx).Where("identity = ?", req.Identity).First(&conn).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	conn.Identity = req.Identity
	setIf(&conn.AccessToken, req.AccessToken)
	setIf(&conn.AdAccountID, strings.TrimPrefix(req.AdAccountID, "act_"))
	setIf(&conn.BusinessKey, req.BusinessKey)
	setIf(&conn.PageID, req.PageID)
	setIf(&conn.InstagramActorID, req.InstagramActorID)
	setIf(&conn.PixelID, req.PixelID)
	setIf(&conn.AppID, req.AppID)
	setIf(&conn.AppStoreURL, req.AppStoreURL)
	setIf(&conn.OperatorPhone, strings.TrimPrefix(req.OperatorPhone, "+"))
	setIf(&conn.WebsiteURL, req.WebsiteURL)
	setIf(&conn.Phone, req.Phone)
	if conn.BusinessKey == "" {
		conn.BusinessKey = defaultKey(&conn)
	}

	if err := d.db.WithContext(ctx).Save(&conn).Error; err != nil {
		return nil, fmt.Errorf("save connection: %w", err)
	}
	d.logger.Info("business connection linked",
		zap.String("identity", conn.Identity),
		zap.String("business_key", conn.BusinessKey))
	return &conn, nil
}

// Sync refreshes the verified-asset cache from the platform.
func (d *Directory) Sync(ctx context.Context, identity string) (*models.BusinessConnection, error) {
	conn, err := d.Connection(ctx, identity)
	if err != nil {
		return nil, err
	}
	if conn.AccessToken == "" {
		return nil, apperrors.Configuration("business.sync", "connection for %s has no access credential", identity)
	}

	pages, err := d.pages.ListPages(ctx, conn.AccessToken)
	if err != nil {
		return nil, apperrors.RemoteFatal("business.sync", err)
	}

	err = d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		keep := make([]string, 0, len(pages))
		for _, p := range pages {
			asset := models.BusinessAsset{
				ConnectionID: conn.ID,
				PageID:       p.ID,
				Name:         p.Name,
				LogoURL:      p.PictureURL(),
				Phone:        p.Phone,
				Website:      p.Website,
				PageToken:    p.AccessToken,
			}
			if p.Instagram != nil {
				asset.InstagramID = p.Instagram.ID
				asset.Username = p.Instagram.Username
			}
			var existing models.BusinessAsset
			err := tx.Where("connection_id = ? AND page_id = ?", conn.ID, p.ID).First(&existing).Error
			if err == nil {
				asset.ID = existing.ID
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			if err := tx.Save(&asset).Error; err != nil {
				return err
			}
			keep = append(keep, p.ID)
		}

		stale := tx.Where("connection_id = ?", conn.ID)
		if len(keep) > 0 {
			stale = stale.Where("page_id NOT IN ?", keep)
		}
		if err := stale.Delete(&models.BusinessAsset{}).Error; err != nil {
			return err
		}

		now := time.Now().UTC()
		updates := map[string]any{"synced_at": now}
		if conn.PageID == "" && len(pages) == 1 {
			updates["page_id"] = pages[0].ID
			if pages[0].Instagram != nil && conn.InstagramActorID == "" {
				updates["instagram_actor_id"] = pages[0].Instagram.ID
			}
		}
		return tx.Model(&models.BusinessConnection{}).Where("id = ?", conn.ID).Updates(updates).Error
	})
	if err != nil {
		return nil, fmt.Errorf("sync assets: %w", err)
	}

	d.logger.Info("business assets synced", zap.String("identity", identity), zap.Int("pages", len(pages)))
	return d.Connection(ctx, identity)
}

// Eligible returns the assets that can receive Instagram posts.
func Eligible(conn *models.BusinessConnection) []models.BusinessAsset {
	var out []models.BusinessAsset
	for _, a := range conn.Assets {
		if a.InstagramID != "" {
			out = append(out, a)
		}
	}
	return out
}

// Asset finds a cached asset by page id.
func Asset(conn *models.BusinessConnection, pageID string) (models.BusinessAsset, bool) {
	for _, a := range conn.Assets {
		if a.PageID == pageID {
			return a, true
		}
	}
	return models.BusinessAsset{}, false
}

func defaultKey(conn *models.BusinessConnection) string {
	if conn.AdAccountID != "" {
		return "act_" + conn.AdAccountID
	}
	if conn.PageID != "" {
		return "page_" + conn.PageID
	}
	return "default"
}

func setIf(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}
