package manager

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	herrors "proxyharvest/internal/shared/errors"
	"proxyharvest/internal/shared/logger"
	"proxyharvest/internal/shared/types"
	"proxyharvest/proxypool/cache"
	"proxyharvest/proxypool/fetcher"
	"proxyharvest/proxypool/model"
	"proxyharvest/proxypool/scraper"
	"proxyharvest/proxypool/storage"
	"proxyharvest/proxypool/validator"
	"proxyharvest/proxypool/workerpool"
)

// Report summarises one harvesting run.
type Report struct {
	RunID       string
	Pages       int // listing pages dispatched
	PagesFailed int // pages whose fetch or parse failed, as opposed to pages with no rows
	Candidates  int // records sent to the liveness check
	Live        int
	Duration    time.Duration
	Proxies     []model.ProxyRecord
}

// pageResult 区分 "页面失败" 与 "页面没有代理"。
type pageResult struct {
	url     string
	records []model.ProxyRecord
	err     error
}

type probeResult struct {
	record model.ProxyRecord
	live   bool
}

// Harvester 是抓取流程的总控制器: 分页 -> 抽取 -> 存活检测。
type Harvester struct {
	cfg       *types.Config
	paginator *scraper.Paginator
	scraper   scraper.Scraper
	validator *validator.Validator
	cache     *cache.Cache

	// OnProbeStart, if set, receives the number of candidates before probing begins.
	OnProbeStart func(total int)
	// OnProbe, if set, is called after every liveness check. It is called from
	// worker goroutines and must be safe for concurrent use.
	OnProbe func(rec model.ProxyRecord, res validator.Result)
}

// NewHarvester wires a Harvester reading listing pages from pages and probing
// candidates with prober.
func NewHarvester(cfg *types.Config, pages scraper.PageSource, prober validator.Prober) *Harvester {
	return &Harvester{
		cfg:       cfg,
		paginator: scraper.NewPaginator(pages, cfg.HarvestConf.MaxPages),
		scraper:   scraper.NewFreeProxyScraper(pages),
		validator: validator.NewValidator(prober, cfg.ProbeConf.URL),
	}
}

// NewFromConfig builds the production pipeline: a Fetcher for direct and
// proxy-routed requests, and a TTL cache in front of the direct page fetches.
func NewFromConfig(cfg *types.Config) (*Harvester, error) {
	f := fetcher.New(fetcher.Options{
		ConnectTimeout:    time.Duration(cfg.ProbeConf.ConnectTimeoutSeconds) * time.Second,
		Timeout:           time.Duration(cfg.ProbeConf.TimeoutSeconds) * time.Second,
		RequestsPerSecond: cfg.HarvestConf.RequestsPerSecond,
	})

	backend, err := newBackend(cfg.CacheConf)
	if err != nil {
		return nil, err
	}
	pages := cache.New(backend, time.Duration(cfg.CacheConf.TTLSeconds)*time.Second, f.Fetch)

	h := NewHarvester(cfg, pages, f)
	h.cache = pages
	return h, nil
}

func newBackend(conf types.CacheConf) (storage.Backend, error) {
	switch conf.Backend {
	case types.CacheBackendMemory:
		return storage.NewMemoryBackend(), nil
	case types.CacheBackendFile, "":
		return storage.NewFileBackend(conf.Dir)
	default:
		return nil, herrors.CacheStorage("unknown cache backend ", conf.Backend)
	}
}

// Cache returns the page cache, or nil when the Harvester was built without one.
func (h *Harvester) Cache() *cache.Cache {
	return h.cache
}

// Run executes one full harvest. Pages that fail are counted in the report and
// skipped; the run fails if pagination cannot be resolved, if every page
// failed, or if any worker fails.
func (h *Harvester) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	runID := uuid.NewString()
	l := logger.WithComponent("ProxyPool/Manager").With().Str("run_id", runID).Logger()
	report := &Report{RunID: runID}

	baseURL := h.cfg.HarvestConf.BaseURL
	l.Info().Str("url", baseURL).Msg("Starting harvest run...")

	maxPage, err := h.paginator.ResolveMaxPage(ctx, baseURL)
	if err != nil {
		l.Error().Err(err).Msg("Failed to resolve pagination.")
		return nil, err
	}
	pageURLs := scraper.PageURLs(baseURL, maxPage)
	report.Pages = len(pageURLs)
	l.Info().Int("pages", len(pageURLs)).Msg("Pagination resolved.")

	candidates, err := h.extractAll(ctx, pageURLs, report, l)
	if err != nil {
		return nil, err
	}
	report.Candidates = len(candidates)
	l.Info().Int("count", len(candidates)).Int("pages_failed", report.PagesFailed).Msg("Extraction finished. Starting liveness checks...")

	live, err := h.probeAll(ctx, candidates)
	if err != nil {
		l.Error().Err(err).Msg("Liveness batch failed.")
		return nil, err
	}
	report.Proxies = live
	report.Live = len(live)
	report.Duration = time.Since(start)

	l.Info().
		Int("candidates", report.Candidates).
		Int("live", report.Live).
		Dur("duration", report.Duration).
		Msg("Harvest run finished.")
	return report, nil
}

func (h *Harvester) extractAll(ctx context.Context, pageURLs []string, report *Report, l zerolog.Logger) ([]model.ProxyRecord, error) {
	results, err := workerpool.MapChunked(ctx, pageURLs, h.cfg.HarvestConf.ChunkSize,
		func(ctx context.Context, pageURL string) (pageResult, error) {
			records, err := h.scraper.Extract(ctx, pageURL)
			if err != nil {
				if herrors.Is(err, herrors.ErrCacheStorage) {
					return pageResult{}, err
				}
				return pageResult{url: pageURL, err: err}, nil
			}
			return pageResult{url: pageURL, records: records}, nil
		})
	if err != nil {
		l.Error().Err(err).Msg("Extraction batch failed.")
		return nil, err
	}

	var lastErr error
	var extracted []model.ProxyRecord
	for _, r := range results {
		if r.err != nil {
			report.PagesFailed++
			lastErr = r.err
			l.Warn().Err(r.err).Str("url", r.url).Msg("Page failed; skipping.")
			continue
		}
		extracted = append(extracted, r.records...)
	}
	if len(results) > 0 && report.PagesFailed == len(results) {
		return nil, herrors.Network("all ", len(results), " listing pages failed").Base(lastErr)
	}

	return h.filterCandidates(extracted), nil
}

// filterCandidates drops records that cannot be probed and, if enabled,
// repeated (ip, port) endpoints.
func (h *Harvester) filterCandidates(records []model.ProxyRecord) []model.ProxyRecord {
	seen := make(map[string]struct{}, len(records))
	candidates := make([]model.ProxyRecord, 0, len(records))
	for _, rec := range records {
		if rec.IsZero() || !rec.IsCandidate() {
			continue
		}
		if h.cfg.HarvestConf.DedupCandidates {
			key := rec.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		candidates = append(candidates, rec)
	}
	return candidates
}

func (h *Harvester) probeAll(ctx context.Context, candidates []model.ProxyRecord) ([]model.ProxyRecord, error) {
	if h.OnProbeStart != nil {
		h.OnProbeStart(len(candidates))
	}
	results, err := workerpool.MapChunked(ctx, candidates, h.cfg.HarvestConf.ChunkSize,
		func(ctx context.Context, rec model.ProxyRecord) (probeResult, error) {
			res := h.validator.Check(ctx, rec)
			if h.OnProbe != nil {
				h.OnProbe(rec, res)
			}
			return probeResult{record: rec, live: res.Live}, nil
		})
	if err != nil {
		return nil, err
	}

	live := make([]model.ProxyRecord, 0)
	for _, r := range results {
		if r.live {
			live = append(live, r.record)
		}
	}
	return live, nil
}
