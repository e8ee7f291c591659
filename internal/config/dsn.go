package config

import (
	"fmt"
	"net"
	neturl "net/url"
	"strconv"
	"strings"
)

// DSNValue builds the driver DSN. An explicit DSN wins; sqlite falls back to
// the file path, mysql to the host/user/name parts.
func (c DatabaseRuntimeConfig) DSNValue() string {
	if v := strings.TrimSpace(c.DSN); v != "" {
		return v
	}
	if c.Driver == DriverSQLite {
		return orDefault(c.Path, defaultSQLitePath)
	}

	params := cleanParams(c.Params)
	setIfMissing(params, "charset", orDefault(c.Charset, defaultDBCharset))
	setIfMissing(params, "parseTime", strconv.FormatBool(c.ParseTime))
	setIfMissing(params, "loc", orDefault(c.Loc, defaultDBLoc))

	user := orDefault(c.User, defaultDBUser)
	password := orDefault(c.Password, defaultDBPassword)
	var auth string
	switch {
	case password != "":
		auth = user + ":" + password + "@"
	case user != "":
		auth = user + "@"
	}

	port := c.Port
	if port == 0 {
		port = defaultDBPort
	}
	addr := net.JoinHostPort(orDefault(c.Host, defaultDBHost), strconv.Itoa(port))
	dsn := fmt.Sprintf("%stcp(%s)/%s", auth, addr, orDefault(c.Name, defaultDBName))
	if query := params.Encode(); query != "" {
		dsn += "?" + query
	}
	return dsn
}

// URLValue builds a redis:// or rediss:// URL accepted by redis.ParseURL.
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
	if scheme != "redis" && scheme != "rediss" {
		scheme = "redis"
		if c.TLS {
			scheme = "rediss"
		}
	}

	u := &neturl.URL{
		Scheme:   scheme,
		Host:     net.JoinHostPort(orDefault(c.Host, defaultRedisHost), strconv.Itoa(port)),
		Path:     "/" + strconv.Itoa(db),
		RawQuery: cleanParams(c.Params).Encode(),
	}
	username := strings.TrimSpace(c.Username)
	if password := strings.TrimSpace(c.Password); password != "" {
		u.User = neturl.UserPassword(username, password)
	} else if username != "" {
		u.User = neturl.User(username)
	}
	return u.String()
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

func cleanParams(in map[string]string) neturl.Values {
	out := neturl.Values{}
	for key, value := range in {
		k, v := strings.TrimSpace(key), strings.TrimSpace(value)
		if k != "" && v != "" {
			out.Set(k, v)
		}
	}
	return out
}

func setIfMissing(params neturl.Values, key, value string) {
	if params.Get(key) == "" {
		params.Set(key, value)
	}
}
