package types

// HarvestConf 包含抓取流程的配置
type HarvestConf struct {
	BaseURL           string  `ini:"base_url"`            // 列表站点首页, 第 n 页为 base_url + "proxylist/main/" + n
	MaxPages          int     `ini:"max_pages"`           // 分页上限
	ChunkSize         int     `ini:"chunk_size"`          // 每批并发 worker 数量
	RequestsPerSecond float64 `ini:"requests_per_second"` // 对来源站点的请求速率, 0 表示不限制
	DedupCandidates   bool    `ini:"dedup_candidates"`    // 验证前按 ip+port 去重, 默认关闭
}

// CacheConf 包含页面缓存的配置
type CacheConf struct {
	Dir        string `ini:"dir"`
	TTLSeconds int    `ini:"ttl_seconds"`
	Backend    string `ini:"backend"` // "file" or "memory"
}

// ProbeConf 包含存活检测的配置
type ProbeConf struct {
	URL                   string `ini:"url"`
	ConnectTimeoutSeconds int    `ini:"connect_timeout_seconds"`
	TimeoutSeconds        int    `ini:"timeout_seconds"`
}

// LogConf contains logging specific configuration
type LogConf struct {
	Level string `ini:"level"`
}

// Config 是 harvester 的统一配置结构体
type Config struct {
	HarvestConf `ini:"harvest"`
	CacheConf   `ini:"cache"`
	ProbeConf   `ini:"probe"`
	LogConf     `ini:"log"`
}

const (
	CacheBackendFile   = "file"
	CacheBackendMemory = "memory"
)

// DefaultConfig returns the configuration used when no ini file is present.
func DefaultConfig() *Config {
	return &Config{
		HarvestConf: HarvestConf{
			BaseURL:         "http://free-proxy.cz/en/",
			MaxPages:  5,
			ChunkSize: 10,
		},
		CacheConf: CacheConf{
			Dir:        "cache",
			TTLSeconds: 300,
			Backend:    CacheBackendFile,
		},
		ProbeConf: ProbeConf{
			URL:                   "http://www.google.com/generate_204",
			ConnectTimeoutSeconds: 6,
			TimeoutSeconds:        9,
		},
		LogConf: LogConf{
			Level: "info",
		},
	}
}
