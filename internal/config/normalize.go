package config

import "strings"

func normalizeDatabaseConfig(cfg DatabaseRuntimeConfig) DatabaseRuntimeConfig {
	cfg.DSN = strings.TrimSpace(cfg.DSN)
	cfg.Host = orDefault(cfg.Host, defaultDBHost)
	cfg.User = orDefault(cfg.User, defaultDBUser)
	cfg.Password = orDefault(cfg.Password, defaultDBPassword)
	cfg.Name = orDefault(cfg.Name, defaultDBName)
	cfg.Charset = orDefault(cfg.Charset, defaultDBCharset)
	cfg.Loc = orDefault(cfg.Loc, defaultDBLoc)
	if cfg.Port == 0 {
		cfg.Port = defaultDBPort
	}
	cfg.Params = copyStringMap(cfg.Params)
	return cfg
}

// normalizeRedisConfig fills endpoint defaults. A URL, when present, takes precedence over the
// discrete fields in URLValue, so the host default only applies without one.
func normalizeRedisConfig(cfg RedisRuntimeConfig) RedisRuntimeConfig {
	cfg.URL = normalizeRedisRawURL(cfg.URL)
	cfg.Host = strings.TrimSpace(cfg.Host)
	if cfg.Host == "" && cfg.URL == "" {
		cfg.Host = defaultRedisHost
	}
	cfg.Username = strings.TrimSpace(cfg.Username)
	cfg.Password = strings.TrimSpace(cfg.Password)
	cfg.Scheme = strings.ToLower(strings.TrimSpace(cfg.Scheme))
	switch {
	case cfg.Scheme != "":
	case cfg.TLS:
		cfg.Scheme = "rediss"
	default:
		cfg.Scheme = "redis"
	}
	if cfg.Port == 0 {
		cfg.Port = defaultRedisPort
	}
	cfg.Params = copyStringMap(cfg.Params)
	return cfg
}

// normalizeRedisRawURL accepts "host:port/db" shorthand.
func normalizeRedisRawURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.Contains(trimmed, "://") {
		return trimmed
	}
	return "redis://" + trimmed
}

func normalizeArchiveTargets(targets []ArchiveTarget) []ArchiveTarget {
	out := make([]ArchiveTarget, 0, len(targets))
	for _, target := range targets {
		if group := strings.TrimSpace(target.Group); group != "" {
			out = append(out, ArchiveTarget{Group: group, Rooms: compactStrings(target.Rooms)})
		}
	}
	return out
}

func normalizeEnv(env string) string {
	return strings.ToLower(orDefault(env, defaultEnv))
}

func normalizeRuntimePaths(paths RuntimePathsConfig) RuntimePathsConfig {
	paths.Logs = strings.TrimSpace(paths.Logs)
	return paths
}

// compactStrings trims every value and drops the empty ones.
func compactStrings(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func copyStringMap(input map[string]string) map[string]string {
	if input == nil {
		return nil
	}
	return cleanParams(input)
}
