package pricing

import (
	"context"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/blackjuly/ultra-mcp/common/logger"
	relaymodel "github.com/blackjuly/ultra-mcp/relay/model"
)

// DefaultSourceURL is the upstream LiteLLM model-price document.
const DefaultSourceURL = "https://raw.githubusercontent.com/BerriAI/litellm/main/model_prices_and_context_window.json"

// MemoryCacheTTL bounds how long an in-memory catalog snapshot is served
// without consulting the disk layer.
const MemoryCacheTTL = 5 * time.Minute

const memoryCacheKey = "catalog"

// Cost is a resolved price for one request.
type Cost struct {
	InputCost     float64 `json:"inputCost"`
	OutputCost    float64 `json:"outputCost"`
	TotalCost     float64 `json:"totalCost"`
	TieredApplied bool    `json:"tieredApplied"`
}

// Service resolves model costs against a periodically refreshed catalog.
// Construct once at startup and share; all refreshes serialize through
// GetLatestPricing.
type Service struct {
	sourceURL string
	cachePath string
	client    *http.Client

	memory *gocache.Cache
	fetch  singleflight.Group

	mu            sync.RWMutex
	lastFetchTime time.Time

	// now is swappable in tests.
	now func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithSourceURL overrides the remote catalog URL.
func WithSourceURL(url string) Option {
	return func(s *Service) { s.sourceURL = url }
}

// WithHTTPClient overrides the fetch client (its timeout bounds fetches).
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) { s.client = client }
}

// WithClock overrides time for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService builds the pricing service around the given disk cache path.
func NewService(cachePath string, opts ...Option) *Service {
	s := &Service{
		sourceURL: DefaultSourceURL,
		cachePath: cachePath,
		client:    &http.Client{Timeout: 30 * time.Second},
		memory:    gocache.New(MemoryCacheTTL, 10*time.Minute),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetLatestPricing returns the current catalog. Unless forceRefresh is set, a
// fresh disk cache short-circuits the remote fetch; a failed fetch falls back
// to stale disk data with a warning; with neither, ErrPricingUnavailable.
func (s *Service) GetLatestPricing(ctx context.Context, forceRefresh bool) (Catalog, error) {
	if !forceRefresh {
		if cached, ok := s.memory.Get(memoryCacheKey); ok {
			return cached.(Catalog), nil
		}

		disk, err := loadCacheFile(s.cachePath)
		if err != nil {
			logger.Logger.Warn("unreadable pricing cache file, refetching",
				zap.String("path", s.cachePath), zap.Error(err))
		} else if disk.Fresh(s.now()) {
			s.memory.Set(memoryCacheKey, disk.Data, gocache.DefaultExpiration)
			return disk.Data, nil
		}
	}

	catalog, err, _ := s.fetch.Do(memoryCacheKey, func() (any, error) {
		return s.refresh(ctx)
	})
	if err == nil {
		return catalog.(Catalog), nil
	}

	// Graceful degradation: serve stale disk data when the remote is down.
	if disk, loadErr := loadCacheFile(s.cachePath); loadErr == nil && disk != nil {
		logger.Logger.Warn("pricing fetch failed, serving stale disk cache",
			zap.Duration("age", disk.Age(s.now())), zap.Error(err))
		s.memory.Set(memoryCacheKey, disk.Data, gocache.DefaultExpiration)
		return disk.Data, nil
	}

	return nil, errors.Wrap(relaymodel.ErrPricingUnavailable, err.Error())
}

// refresh performs the remote fetch and persists both cache layers.
func (s *Service) refresh(ctx context.Context) (Catalog, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.sourceURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build pricing request")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch pricing catalog")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("pricing source returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read pricing response")
	}

	catalog, err := ParseCatalog(raw)
	if err != nil {
		return nil, err
	}
	if len(catalog) == 0 {
		return nil, errors.New("pricing catalog is empty after ingest")
	}

	now := s.now()
	file := &CacheFile{
		Metadata: CacheMetadata{
			Timestamp: now.UnixMilli(),
			SourceURL: s.sourceURL,
			TTLMs:     DiskCacheTTL.Milliseconds(),
		},
		Data: catalog,
	}
	if err := saveCacheFile(s.cachePath, file); err != nil {
		// A read-only disk must not fail the call; memory still works.
		logger.Logger.Warn("failed to persist pricing cache", zap.Error(err))
	}

	s.memory.Set(memoryCacheKey, catalog, gocache.DefaultExpiration)
	s.mu.Lock()
	s.lastFetchTime = now
	s.mu.Unlock()

	logger.Logger.Info("pricing catalog refreshed",
		zap.Int("models", len(catalog)), zap.String("source", s.sourceURL))
	return catalog, nil
}

// CalculateCost resolves the price of one request. Returns (nil, nil) when
// the model is unknown to the catalog.
func (s *Service) CalculateCost(ctx context.Context, model string, inputTokens, outputTokens int) (*Cost, error) {
	catalog, err := s.GetLatestPricing(ctx, false)
	if err != nil {
		return nil, err
	}

	entry, ok := catalog.Lookup(model)
	if !ok {
		return nil, nil
	}

	inputCost, inputTiered := tieredCost(inputTokens, entry.InputCostPerToken, entry.InputCostPerTokenAbove200k)
	outputCost, outputTiered := tieredCost(outputTokens, entry.OutputCostPerToken, entry.OutputCostPerTokenAbove200k)

	return &Cost{
		InputCost:     inputCost,
		OutputCost:    outputCost,
		TotalCost:     inputCost + outputCost,
		TieredApplied: inputTiered || outputTiered,
	}, nil
}

// tieredCost applies the 200k threshold: exactly at the threshold the base
// rate still covers everything.
func tieredCost(tokens int, baseRate float64, aboveRate *float64) (float64, bool) {
	if tokens > TierThreshold && aboveRate != nil {
		return float64(TierThreshold)*baseRate + float64(tokens-TierThreshold)*(*aboveRate), true
	}
	return float64(tokens) * baseRate, false
}

// ModelLimits returns max input/output token limits when the catalog knows
// them.
func (s *Service) ModelLimits(ctx context.Context, model string) (maxInput, maxOutput *int, err error) {
	catalog, err := s.GetLatestPricing(ctx, false)
	if err != nil {
		return nil, nil, err
	}
	entry, ok := catalog.Lookup(model)
	if !ok {
		return nil, nil, nil
	}
	return entry.MaxInputTokens, entry.MaxOutputTokens, nil
}

// CacheInfo describes the state of the disk cache for the pricing CLI.
type CacheInfo struct {
	Path      string        `json:"path"`
	Exists    bool          `json:"exists"`
	Fresh     bool          `json:"fresh"`
	Age       time.Duration `json:"age"`
	Models    int           `json:"models"`
	SourceURL string        `json:"sourceUrl"`
}

// Info reports the disk-cache state without triggering a fetch.
func (s *Service) Info() (*CacheInfo, error) {
	info := &CacheInfo{Path: s.cachePath, SourceURL: s.sourceURL}
	disk, err := loadCacheFile(s.cachePath)
	if err != nil {
		return nil, err
	}
	if disk == nil {
		return info, nil
	}
	info.Exists = true
	info.Fresh = disk.Fresh(s.now())
	info.Age = disk.Age(s.now())
	info.Models = len(disk.Data)
	return info, nil
}

// ClearCache removes both cache layers.
func (s *Service) ClearCache() error {
	s.memory.Flush()
	if err := os.Remove(s.cachePath); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove pricing cache file")
	}
	return nil
}

// LastFetchTime reports when the catalog was last fetched remotely.
func (s *Service) LastFetchTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastFetchTime
}
