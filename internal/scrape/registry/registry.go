package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/distill/internal/common/redis"
)

const (
	serviceKeyPrefix = "service:scrape:"
	serviceListKey   = "services:scrape:list"

	// TTLMultiplier sets the registration TTL relative to the heartbeat interval (allows 2 missed beats)
	TTLMultiplier = 3
)

type ServiceInfo struct {
	ID       string            `json:"id"`
	Address  string            `json:"address"`
	Port     int               `json:"port"`
	Capacity int               `json:"capacity"`
	Load     int               `json:"load"`
	LastSeen time.Time         `json:"last_seen"`
	Version  string            `json:"version,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (si *ServiceInfo) URL() string {
	return fmt.Sprintf("http://%s:%d", si.Address, si.Port)
}

func (si *ServiceInfo) LoadPercentage() float64 {
	if si.Capacity <= 0 {
		return 100.0
	}
	return float64(si.Load) / float64(si.Capacity) * 100.0
}

// SetMetadata populates the metadata map with pool counters and hostname
func (si *ServiceInfo) SetMetadata(available, idle int, restarts int64, browserVersion, hostname string) {
	if si.Metadata == nil {
		si.Metadata = make(map[string]string)
	}
	si.Metadata["available"] = strconv.Itoa(available)
	si.Metadata["idle"] = strconv.Itoa(idle)
	si.Metadata["restarts"] = strconv.FormatInt(restarts, 10)
	si.Metadata["hostname"] = hostname
	if browserVersion != "" {
		si.Metadata["browser"] = browserVersion
	}
}

// Registry advertises scrape service instances in Redis
type Registry struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRegistry creates a registry whose entries expire after ttl without a heartbeat
func NewRegistry(redisClient *redis.Client, ttl time.Duration, logger *zap.Logger) *Registry {
	return &Registry{
		redis:  redisClient,
		ttl:    ttl,
		logger: logger,
	}
}

// TTL returns the lifetime of a registration
func (r *Registry) TTL() time.Duration {
	return r.ttl
}

// IsHealthy reports whether info was refreshed within the registration TTL
func (r *Registry) IsHealthy(info *ServiceInfo) bool {
	return time.Now().UTC().Sub(info.LastSeen) < r.ttl
}

// Register writes info with a fresh LastSeen and the registry TTL
func (r *Registry) Register(ctx context.Context, info *ServiceInfo) error {
	if info.ID == "" {
		return fmt.Errorf("service ID is required")
	}
	if info.Address == "" {
		return fmt.Errorf("service address is required")
	}
	if info.Port <= 0 {
		return fmt.Errorf("service port must be positive")
	}

	info.LastSeen = time.Now().UTC()

	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal service info: %w", err)
	}

	if err := r.redis.PutIndexed(ctx, serviceListKey, info.ID, serviceKeyPrefix+info.ID, data, r.ttl); err != nil {
		r.logger.Error("Failed to register service",
			zap.String("service_id", info.ID),
			zap.Error(err))
		return fmt.Errorf("failed to register service: %w", err)
	}

	return nil
}

// Unregister removes the registration and its list entry. Unknown IDs are not an error.
func (r *Registry) Unregister(ctx context.Context, serviceID string) error {
	if serviceID == "" {
		return fmt.Errorf("service ID is required")
	}

	existed, err := r.redis.DeleteIndexed(ctx, serviceListKey, serviceID, serviceKeyPrefix+serviceID)
	if err != nil {
		return fmt.Errorf("failed to unregister service: %w", err)
	}
	if !existed {
		r.logger.Warn("Attempted to unregister non-existent service",
			zap.String("service_id", serviceID))
		return nil
	}

	r.logger.Info("Service unregistered",
		zap.String("service_id", serviceID))

	return nil
}

// Get returns the registration of serviceID, or nil if it expired or never existed
func (r *Registry) Get(ctx context.Context, serviceID string) (*ServiceInfo, error) {
	if serviceID == "" {
		return nil, fmt.Errorf("service ID is required")
	}

	data, err := r.redis.Get(ctx, serviceKeyPrefix+serviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get service: %w", err)
	}

	if data == nil {
		return nil, nil
	}

	return r.decode(serviceID, data)
}

func (r *Registry) decode(serviceID string, data []byte) (*ServiceInfo, error) {
	var info ServiceInfo
	if err := json.Unmarshal(data, &info); err != nil {
		r.logger.Error("Failed to unmarshal service info",
			zap.String("service_id", serviceID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to unmarshal service info: %w", err)
	}

	return &info, nil
}

// List returns every live registration sorted by ID. List entries whose key
// already expired are skipped, as are entries that fail to decode.
func (r *Registry) List(ctx context.Context) ([]*ServiceInfo, error) {
	entries, err := r.redis.ListIndexed(ctx, serviceListKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}

	services := make([]*ServiceInfo, 0, len(entries))
	for id, data := range entries {
		info, err := r.decode(id, data)
		if err != nil {
			continue
		}
		services = append(services, info)
	}

	sort.Slice(services, func(i, j int) bool {
		return services[i].ID < services[j].ID
	})

	return services, nil
}

// Prune drops list entries whose registration expired without an Unregister
func (r *Registry) Prune(ctx context.Context) (int, error) {
	removed, err := r.redis.PruneIndex(ctx, serviceListKey)
	if err != nil {
		return 0, fmt.Errorf("failed to prune services: %w", err)
	}
	if removed > 0 {
		r.logger.Debug("Pruned expired service entries", zap.Int("removed", removed))
	}
	return removed, nil
}
