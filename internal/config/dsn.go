package config

import (
	"net"
	neturl "net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// DSNValue returns the explicit DSN when set, otherwise one assembled from
// the discrete fields. Unknown loc names fall back to the local zone.
func (c DatabaseRuntimeConfig) DSNValue() string {
	if v := strings.TrimSpace(c.DSN); v != "" {
		return v
	}

	port := c.Port
	if port == 0 {
		port = defaultDBPort
	}

	dsn := mysql.NewConfig()
	dsn.Net = "tcp"
	dsn.Addr = net.JoinHostPort(orDefault(c.Host, defaultDBHost), strconv.Itoa(port))
	dsn.User = orDefault(c.User, defaultDBUser)
	dsn.Passwd = orDefault(c.Password, defaultDBPassword)
	dsn.DBName = orDefault(c.Name, defaultDBName)
	dsn.ParseTime = c.ParseTime
	dsn.Loc = time.Local
	if loc, err := time.LoadLocation(orDefault(c.Loc, defaultDBLoc)); err == nil {
		dsn.Loc = loc
	}

	dsn.Params = cleanParams(c.Params)
	if _, ok := dsn.Params["charset"]; !ok {
		dsn.Params["charset"] = orDefault(c.Charset, defaultDBCharset)
	}
	return dsn.FormatDSN()
}

// URLValue renders the endpoint as a redis:// or rediss:// URL.
func (c RedisRuntimeConfig) URLValue() string {
	if u := normalizeRedisRawURL(c.URL); u != "" {
		return u
	}

	port := c.Port
	if port == 0 {
		port = defaultRedisPort
	}
	db := c.DB
	if db < 0 {
		db = defaultRedisDB
	}

	scheme := strings.ToLower(strings.TrimSpace(c.Scheme))
	switch {
	case scheme == "redis" || scheme == "rediss":
	case c.TLS:
		scheme = "rediss"
	default:
		scheme = "redis"
	}

	u := &neturl.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(orDefault(c.Host, defaultRedisHost), strconv.Itoa(port)),
		Path:   "/" + strconv.Itoa(db),
	}
	username := strings.TrimSpace(c.Username)
	if password := strings.TrimSpace(c.Password); password != "" {
		u.User = neturl.UserPassword(username, password)
	} else if username != "" {
		u.User = neturl.User(username)
	}

	if params := cleanParams(c.Params); len(params) > 0 {
		query := neturl.Values{}
		for k, v := range params {
			query.Set(k, v)
		}
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func cleanParams(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for key, value := range in {
		k := strings.TrimSpace(key)
		v := strings.TrimSpace(value)
		if k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}

func orDefault(v, fallback string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fallback
}
