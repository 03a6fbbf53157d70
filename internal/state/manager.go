package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Manager applies the read-modify-write policy on top of a Store. There is no
// concurrency token: the last writer wins for everything except the campaign
// state, which is merged field by field so a concurrent or reordered turn can
// never blank out what another turn supplied.
type Manager struct {
	store Store
	now   func() time.Time
}

func NewManager(store Store) *Manager {
	return &Manager{store: store, now: time.Now}
}

func (m *Manager) Load(ctx context.Context, identity, business string) (*IntakeState, error) {
	raw, err := m.store.Get(ctx, identity, business)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var st IntakeState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &st, nil
}

// Save writes st, merging its campaign state over the stored one.
func (m *Manager) Save(ctx context.Context, identity, business string, st *IntakeState) error {
	existing, err := m.Load(ctx, identity, business)
	if err != nil {
		return err
	}
	if existing != nil && existing.CampaignState != nil {
		merged, err := MergeCampaign(existing.CampaignState, st.CampaignState)
		if err != nil {
			return fmt.Errorf("merge campaign state: %w", err)
		}
		st.CampaignState = merged
	}
	st.UpdatedAt = m.now().UTC()

	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := m.store.Put(ctx, identity, business, raw); err != nil {
		return fmt.Errorf("put state: %w", err)
	}
	return nil
}

func (m *Manager) Clear(ctx context.Context, identity, business string) error {
	if err := m.store.Clear(ctx, identity, business); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	return nil
}

// UpdateCampaign merges update into the campaign state stored under the key,
// creating the document if needed, and returns the merged campaign state.
func (m *Manager) UpdateCampaign(ctx context.Context, identity, business string, update *CampaignState) (*CampaignState, error) {
	st, err := m.Load(ctx, identity, business)
	if err != nil {
		return nil, err
	}
	if st == nil {
		st = &IntakeState{}
	}
	merged, err := MergeCampaign(st.CampaignState, update)
	if err != nil {
		return nil, fmt.Errorf("merge campaign state: %w", err)
	}
	st.CampaignState = merged
	if err := m.Save(ctx, identity, business, st); err != nil {
		return nil, err
	}
	return merged, nil
}

// ResetCreative drops the stored campaign creative so that a regenerated one
// replaces it on the next Save instead of merging over it.
func (m *Manager) ResetCreative(ctx context.Context, identity, business string) error {
	st, err := m.Load(ctx, identity, business)
	if err != nil || st == nil || st.CampaignState == nil || st.CampaignState.Creative == nil {
		return err
	}
	st.CampaignState.Creative = nil
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := m.store.Put(ctx, identity, business, raw); err != nil {
		return fmt.Errorf("put state: %w", err)
	}
	return nil
}

// LoadAll returns every stored state of identity keyed by business.
func (m *Manager) LoadAll(ctx context.Context, identity string) (map[string]*IntakeState, error) {
	keys, err := m.store.Keys(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("list state keys: %w", err)
	}
	out := make(map[string]*IntakeState, len(keys))
	for _, key := range keys {
		st, err := m.Load(ctx, identity, key)
		if err != nil {
			return nil, err
		}
		if st != nil {
			out[key] = st
		}
	}
	return out, nil
}

// ClearCampaign drops only the campaign state, leaving any intake progress.
func (m *Manager) ClearCampaign(ctx context.Context, identity, business string) error {
	st, err := m.Load(ctx, identity, business)
	if err != nil || st == nil {
		return err
	}
	if st.Stage == "" {
		return m.Clear(ctx, identity, business)
	}
	st.CampaignState = nil
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return m.store.Put(ctx, identity, business, raw)
}

// Found is a campaign state located by FindCampaign together with its key.
type Found struct {
	BusinessKey string
	Campaign    *CampaignState
}

// FindCampaign scans every business key of identity. Preference order: a state
// whose objective equals pursuing, then one with a non-empty plan, then the
// first one found (keys are scanned in sorted order).
func (m *Manager) FindCampaign(ctx context.Context, identity, pursuing string) (*Found, error) {
	keys, err := m.store.Keys(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("list state keys: %w", err)
	}

	var withPlan, first *Found
	for _, key := range keys {
		st, err := m.Load(ctx, identity, key)
		if err != nil {
			return nil, err
		}
		if st == nil || st.CampaignState == nil {
			continue
		}
		f := &Found{BusinessKey: key, Campaign: st.CampaignState}
		if pursuing != "" && strings.EqualFold(st.CampaignState.Objective, pursuing) {
			return f, nil
		}
		if withPlan == nil && len(st.CampaignState.Plan) > 0 {
			withPlan = f
		}
		if first == nil {
			first = f
		}
	}
	if withPlan != nil {
		return withPlan, nil
	}
	return first, nil
}
