// Package runs keeps the history of campaign and organic post executions.
package runs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"adpilot/internal/models"
)

const (
	KindCampaign = "campaign"
	KindOrganic  = "organic"
)

type Recorder struct {
	db *gorm.DB
}

func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db}
}

// Entry is one execution to record. Created is any JSON-encodable summary of
// the remote ids.
type Entry struct {
	Identity           string
	BusinessKey        string
	Kind               string
	RequestedObjective string
	EffectiveObjective string
	Created            any
	Err                error
}

// Record stores e under a fresh run id and returns it.
func (r *Recorder) Record(ctx context.Context, e Entry) (*models.CampaignRun, error) {
	created, err := json.Marshal(e.Created)
	if err != nil {
		return nil, fmt.Errorf("encode created ids: %w", err)
	}
	run := &models.CampaignRun{
		RunID:              uuid.NewString(),
		Identity:           e.Identity,
		BusinessKey:        e.BusinessKey,
		Kind:               e.Kind,
		RequestedObjective: e.RequestedObjective,
		EffectiveObjective: e.EffectiveObjective,
		CreatedIDs:         datatypes.JSON(created),
		Success:            e.Err == nil,
	}
	if e.Err != nil {
		run.ErrorMessage = e.Err.Error()
	}
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, fmt.Errorf("record run: %w", err)
	}
	return run, nil
}

// List returns the newest runs for identity, all identities when empty.
func (r *Recorder) List(ctx context.Context, identity string, limit int) ([]models.CampaignRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := r.db.WithContext(ctx).Order("id DESC").Limit(limit)
	if identity != "" {
		q = q.Where("identity = ?", identity)
	}
	var out []models.CampaignRun
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}
