package host

import (
	"context"
	"fmt"
	"sort"

	"github.com/tempest-bridge/tempest-go/pkg/entry"
)

type registeredEntity struct {
	platform Platform
	entryID  string
	deviceID string
	entity   Entity
}

func (r *registeredEntity) record() EntityRecord {
	return EntityRecord{
		Platform: r.platform,
		EntryID:  r.entryID,
		UniqueID: r.entity.UniqueID(),
		Name:     r.entity.Name(),
		DeviceID: r.deviceID,
		Device:   r.entity.Device(),
		State:    r.entity.State(),
	}
}

// ForwardEntrySetups sets the entry up on each platform in order. It stops
// at the first failing platform.
func (h *Host) ForwardEntrySetups(ctx context.Context, e *entry.Entry, platforms []Platform) error {
	for _, p := range platforms {
		h.mu.Lock()
		handler, ok := h.platforms[p]
		h.mu.Unlock()
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPlatform, p)
		}

		if err := handler.SetupEntry(ctx, e, h.entityAdder(e, p)); err != nil {
			return fmt.Errorf("platform %s: %w", p, err)
		}

		h.mu.Lock()
		if h.loaded[e.ID] == nil {
			h.loaded[e.ID] = make(map[Platform]bool)
		}
		h.loaded[e.ID][p] = true
		h.mu.Unlock()

		h.logger.Debug("host: platform loaded", "entry", e.ID, "platform", p)
	}
	return nil
}

// UnloadPlatforms unloads the entry from each platform and retracts the
// entities they created. Platforms the entry was never loaded on count as
// unloaded. It returns true only if every platform unloaded.
func (h *Host) UnloadPlatforms(ctx context.Context, e *entry.Entry, platforms []Platform) (bool, error) {
	all := true
	for _, p := range platforms {
		h.mu.Lock()
		handler, ok := h.platforms[p]
		isLoaded := h.loaded[e.ID][p]
		h.mu.Unlock()

		if !ok {
			return false, fmt.Errorf("%w: %s", ErrUnknownPlatform, p)
		}
		if !isLoaded {
			continue
		}

		unloaded, err := handler.UnloadEntry(ctx, e)
		if err != nil {
			return false, fmt.Errorf("platform %s: %w", p, err)
		}
		if !unloaded {
			all = false
			continue
		}

		h.mu.Lock()
		delete(h.loaded[e.ID], p)
		if len(h.loaded[e.ID]) == 0 {
			delete(h.loaded, e.ID)
		}
		h.mu.Unlock()

		h.retractEntities(func(r *registeredEntity) bool {
			return r.entryID == e.ID && r.platform == p
		})
	}
	return all, nil
}

// LoadedPlatforms returns the platforms the entry is loaded on.
func (h *Host) LoadedPlatforms(entryID string) []Platform {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []Platform
	for p := range h.loaded[entryID] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (h *Host) entityAdder(e *entry.Entry, p Platform) AddEntitiesFunc {
	return func(entities ...Entity) {
		h.AddEntities(e, p, entities...)
	}
}

// AddEntities registers entities for an entry on a platform, creating or
// linking their devices. Entities whose unique ID is taken are skipped.
func (h *Host) AddEntities(e *entry.Entry, p Platform, entities ...Entity) {
	var added []*registeredEntity

	h.mu.Lock()
	for _, ent := range entities {
		uid := ent.UniqueID()
		if _, exists := h.entities[uid]; exists {
			h.logger.Warn("host: skipping entity", "entity", uid, "error", ErrDuplicateEntity)
			continue
		}
		rec := &registeredEntity{
			platform: p,
			entryID:  e.ID,
			entity:   ent,
		}
		if dev := h.deviceForLocked(e.ID, ent.Device()); dev != nil {
			rec.deviceID = dev.ID
		}
		h.entities[uid] = rec
		added = append(added, rec)
	}
	h.mu.Unlock()

	for _, rec := range added {
		if err := h.sink.Announce(rec.record()); err != nil {
			h.logger.Warn("host: entity announce failed", "entity", rec.entity.UniqueID(), "error", err)
		}
	}
	if len(added) > 0 {
		h.logger.Debug("host: entities added", "entry", e.ID, "platform", p, "count", len(added))
	}
}

// UpdateEntity publishes the current state of a registered entity.
func (h *Host) UpdateEntity(uniqueID string) {
	h.mu.Lock()
	rec, ok := h.entities[uniqueID]
	h.mu.Unlock()
	if !ok {
		return
	}

	if err := h.sink.Update(rec.record()); err != nil {
		h.logger.Warn("host: entity update failed", "entity", uniqueID, "error", err)
	}
}

// Entities returns every registered entity ordered by unique ID.
func (h *Host) Entities() []EntityRecord {
	h.mu.Lock()
	recs := make([]*registeredEntity, 0, len(h.entities))
	for _, r := range h.entities {
		recs = append(recs, r)
	}
	h.mu.Unlock()

	out := make([]EntityRecord, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.record())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UniqueID < out[j].UniqueID })
	return out
}

// Entity returns one registered entity.
func (h *Host) Entity(uniqueID string) (EntityRecord, bool) {
	h.mu.Lock()
	r, ok := h.entities[uniqueID]
	h.mu.Unlock()
	if !ok {
		return EntityRecord{}, false
	}
	return r.record(), true
}

func (h *Host) retractEntities(match func(*registeredEntity) bool) {
	var removed []*registeredEntity

	h.mu.Lock()
	for uid, r := range h.entities {
		if match(r) {
			removed = append(removed, r)
			delete(h.entities, uid)
		}
	}
	h.mu.Unlock()

	for _, r := range removed {
		if err := h.sink.Retract(r.record()); err != nil {
			h.logger.Warn("host: entity retract failed", "entity", r.entity.UniqueID(), "error", err)
		}
	}
}
