package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"

	"proxyharvest/internal/shared/types"
	"proxyharvest/proxypool/model"
)

// Load 返回默认配置, 然后叠加 ini 文件 (如果存在) 和环境变量。
func Load(fileName string) (*types.Config, error) {
	cfg := types.DefaultConfig()
	if err := LoadIni(cfg, fileName); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadIni 把 harvest.ini 映射到 cfg 上。文件不存在时保留 cfg 原值。
func LoadIni(cfg *types.Config, fileName string) error {
	// .env is optional
	_ = godotenv.Load()

	if fileName != "" {
		if _, err := os.Stat(fileName); err == nil {
			iniFile, err := ini.Load(fileName)
			if err != nil {
				return fmt.Errorf("failed to parse config file '%s': %w", fileName, err)
			}
			if err := iniFile.MapTo(cfg); err != nil {
				return fmt.Errorf("failed to map config file '%s': %w", fileName, err)
			}
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config file '%s': %w", fileName, err)
		}
	}

	overrideFromEnv(&cfg.HarvestConf.BaseURL, "HARVEST_BASE_URL")
	overrideFromEnvInt(&cfg.HarvestConf.MaxPages, "HARVEST_MAX_PAGES")
	overrideFromEnv(&cfg.CacheConf.Dir, "HARVEST_CACHE_DIR")
	overrideFromEnv(&cfg.ProbeConf.URL, "HARVEST_PROBE_URL")
	overrideFromEnv(&cfg.LogConf.Level, "HARVEST_LOG_LEVEL")
	return nil
}

// Validate rejects configurations the pipeline cannot run with.
func Validate(cfg *types.Config) error {
	switch {
	case cfg.HarvestConf.BaseURL == "":
		return fmt.Errorf("harvest.base_url must not be empty")
	case cfg.HarvestConf.MaxPages < 1:
		return fmt.Errorf("harvest.max_pages must be >= 1, got %d", cfg.HarvestConf.MaxPages)
	case cfg.HarvestConf.ChunkSize < 1:
		return fmt.Errorf("harvest.chunk_size must be >= 1, got %d", cfg.HarvestConf.ChunkSize)
	case cfg.HarvestConf.RequestsPerSecond < 0:
		return fmt.Errorf("harvest.requests_per_second must not be negative")
	case cfg.CacheConf.TTLSeconds < 0:
		return fmt.Errorf("cache.ttl_seconds must not be negative")
	case cfg.CacheConf.Backend != types.CacheBackendFile && cfg.CacheConf.Backend != types.CacheBackendMemory:
		return fmt.Errorf("cache.backend must be %q or %q, got %q", types.CacheBackendFile, types.CacheBackendMemory, cfg.CacheConf.Backend)
	case cfg.CacheConf.Backend == types.CacheBackendFile && cfg.CacheConf.Dir == "":
		return fmt.Errorf("cache.dir must not be empty for the file backend")
	case cfg.ProbeConf.URL == "":
		return fmt.Errorf("probe.url must not be empty")
	case cfg.ProbeConf.ConnectTimeoutSeconds < 1 || cfg.ProbeConf.TimeoutSeconds < 1:
		return fmt.Errorf("probe timeouts must be >= 1 second")
	}
	return nil
}

// SaveProxies 将验证通过的代理列表保存为 JSON。
func SaveProxies(fileName string, proxies []model.ProxyRecord) error {
	if proxies == nil {
		proxies = []model.ProxyRecord{}
	}
	data, err := json.MarshalIndent(proxies, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal proxies: %w", err)
	}
	return os.WriteFile(fileName, data, 0644)
}

func overrideFromEnv(target *string, envName string) {
	if envValue := os.Getenv(envName); envValue != "" {
		*target = envValue
	}
}

func overrideFromEnvInt(target *int, envName string) {
	envValue := os.Getenv(envName)
	if envValue != "" {
		if intValue, err := strconv.Atoi(envValue); err == nil {
			*target = intValue
		}
	}
}
