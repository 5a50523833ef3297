package store

import (
	"context"
	"encoding/json"

	"github.com/go-playground/validator"

	"github.com/gleanhub/go-claimsync/models"
)

const claimsKeyPrefix = "claims:"

// Pre-multi-viewer builds persisted a single unscoped record under this key.
const legacyClaimsKey = "claims"

// ClaimCache is the durable per-viewer claim cache. It is deliberately
// forgiving: any persistence or decode failure degrades to an empty result
// because the server, not this cache, is the source of truth.
type ClaimCache struct {
	logger        models.Logger
	metricService models.MetricService
	repository    models.KeyValueRepository
	validator     *validator.Validate
}

var _ models.ClaimStore = &ClaimCache{}

func NewClaimCache(logger models.Logger, metricService models.MetricService, repository models.KeyValueRepository) *ClaimCache {
	return &ClaimCache{
		logger:        logger,
		metricService: metricService,
		repository:    repository,
		validator:     validator.New(),
	}
}

func claimsKey(viewerId string) string {
	return claimsKeyPrefix + viewerId
}

func (c *ClaimCache) Load(ctx context.Context, viewerId string) []models.Claim {
	data, found, err := c.repository.Get(ctx, claimsKey(viewerId))
	if err != nil {
		c.logger.Errorf("store: error loading claims for viewer %s: %v", viewerId, err)
		c.metricService.Count(ctx, models.MetricName_PersistenceError, 1)
		return nil
	}
	if !found {
		if data = c.migrateLegacy(ctx, viewerId); data == nil {
			return nil
		}
	}
	return c.decode(ctx, viewerId, data)
}

func (c *ClaimCache) Save(ctx context.Context, claims []models.Claim, viewerId string) {
	if claims == nil {
		claims = []models.Claim{}
	}
	data, err := json.Marshal(claims)
	if err != nil {
		c.logger.Errorf("store: error encoding %d claims for viewer %s: %v", len(claims), viewerId, err)
		return
	}
	if err = c.repository.Put(ctx, claimsKey(viewerId), data); err != nil {
		c.logger.Errorf("store: error saving claims for viewer %s: %v", viewerId, err)
		c.metricService.Count(ctx, models.MetricName_PersistenceError, 1)
	}
}

// Upsert replaces the claim with a matching ID in place, else prepends it
// (newest first, matching the server's claimedAt-descending listings). The
// input slice is never modified.
func (c *ClaimCache) Upsert(existing []models.Claim, claim models.Claim) []models.Claim {
	for i := range existing {
		if existing[i].Id == claim.Id {
			updated := make([]models.Claim, len(existing))
			copy(updated, existing)
			updated[i] = claim
			return updated
		}
	}
	return append([]models.Claim{claim}, existing...)
}

// Replace swaps the entry stored under staleId for the reconciled claim,
// keeping its position, and drops any duplicate already carrying the server
// ID. Used when replay maps a local placeholder to its server identity.
func (c *ClaimCache) Replace(existing []models.Claim, staleId string, claim models.Claim) []models.Claim {
	updated := make([]models.Claim, 0, len(existing))
	replaced := false
	for _, current := range existing {
		if current.Id == staleId {
			updated = append(updated, claim)
			replaced = true
		} else if current.Id == claim.Id {
			continue
		} else {
			updated = append(updated, current)
		}
	}
	if !replaced {
		return c.Upsert(updated, claim)
	}
	return updated
}

// decode trusts nothing read back from storage: each record is unmarshaled
// and validated on its own so one malformed entry cannot poison the rest.
func (c *ClaimCache) decode(ctx context.Context, viewerId string, data []byte) []models.Claim {
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		c.logger.Errorf("store: error decoding claim cache for viewer %s: %v", viewerId, err)
		c.metricService.Count(ctx, models.MetricName_RecordDiscarded, 1)
		return nil
	}
	claims := make([]models.Claim, 0, len(records))
	for _, record := range records {
		claim := models.Claim{}
		if err := json.Unmarshal(record, &claim); err != nil {
			c.logger.Warnf("store: discarding malformed claim record for viewer %s: %v", viewerId, err)
			c.metricService.Count(ctx, models.MetricName_RecordDiscarded, 1)
			continue
		}
		if err := c.validator.Struct(claim); err != nil {
			c.logger.Warnf("store: discarding invalid claim %s for viewer %s: %v", claim.Id, viewerId, err)
			c.metricService.Count(ctx, models.MetricName_RecordDiscarded, 1)
			continue
		}
		claims = append(claims, claim)
	}
	if len(claims) == 0 {
		return nil
	}
	return claims
}

// migrateLegacy adopts the unscoped pre-multi-viewer record for this viewer.
// The first viewer to load on an upgraded device takes it over; deleting the
// legacy key afterwards keeps it from being honored twice. Best effort: if the
// scoped write fails the legacy record is served but left in place, so a later
// load can retry the migration.
func (c *ClaimCache) migrateLegacy(ctx context.Context, viewerId string) []byte {
	data, found, err := c.repository.Get(ctx, legacyClaimsKey)
	if err != nil || !found {
		return nil
	}
	if err = c.repository.Put(ctx, claimsKey(viewerId), data); err != nil {
		c.logger.Errorf("store: error adopting legacy claim cache for viewer %s: %v", viewerId, err)
		return data
	}
	if err = c.repository.Delete(ctx, legacyClaimsKey); err != nil {
		c.logger.Errorf("store: error deleting legacy claim cache: %v", err)
	}
	c.metricService.Count(ctx, models.MetricName_StoreMigrated, 1)
	c.logger.Infof("store: migrated legacy claim cache to viewer %s", viewerId)
	return data
}
