// 包 locate：把访问者 IP 解析为所在州，用于会话的初始预选
package locate

import (
	"context"
	"net"
	"os"
	"strings"
	"unicode"

	"geo-dash/internal/logger"
	"geo-dash/internal/metrics"
)

// Location：定位结果；Subdivisions 为由粗到细的候选行政区名称
type Location struct {
	Country      string
	Subdivisions []string
}

// Locator：离线 IP 库
type Locator interface {
	Name() string
	Lookup(ip net.IP) (Location, bool)
}

// Chain：按顺序返回第一个命中的结果
type Chain []Locator

func (c Chain) Name() string { return "chain" }

func (c Chain) Lookup(ip net.IP) (Location, bool) {
	for _, l := range c {
		if l == nil {
			continue
		}
		if loc, ok := l.Lookup(ip); ok {
			return loc, true
		}
	}
	return Location{}, false
}

// 文档注释：初始州提示
// 背景：依次尝试各定位器，将候选行政区名与州目录做归一化匹配；任何失败都只是没有提示。
// 约束：私网与回环地址直接跳过；Country 非空且不为 IN 时不匹配。
type Hinter struct {
	locators []Locator
	states   func(ctx context.Context) ([]string, error)
}

func NewHinter(states func(ctx context.Context) ([]string, error), locators ...Locator) *Hinter {
	var ls []Locator
	for _, l := range locators {
		if l != nil {
			ls = append(ls, l)
		}
	}
	return &Hinter{locators: ls, states: states}
}

func (h *Hinter) Enabled() bool { return h != nil && len(h.locators) > 0 }

// Hint：返回目录中的州名，未命中返回空串
func (h *Hinter) Hint(ctx context.Context, ipStr string) string {
	if !h.Enabled() {
		return ""
	}
	ip := net.ParseIP(strings.TrimSpace(ipStr))
	if ip == nil || ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() {
		return ""
	}
	states, err := h.states(ctx)
	if err != nil || len(states) == 0 {
		return ""
	}
	for _, l := range h.locators {
		loc, ok := l.Lookup(ip)
		if !ok {
			metrics.LocateTotal.WithLabelValues(l.Name(), "miss").Inc()
			continue
		}
		if loc.Country != "" && !isIndia(loc.Country) {
			metrics.LocateTotal.WithLabelValues(l.Name(), "foreign").Inc()
			continue
		}
		if s := MatchState(states, loc.Subdivisions...); s != "" {
			metrics.LocateTotal.WithLabelValues(l.Name(), "hit").Inc()
			logger.L().Debug("locate_hint", "locator", l.Name(), "ip", ipStr, "state", s)
			return s
		}
		metrics.LocateTotal.WithLabelValues(l.Name(), "unmatched").Inc()
	}
	return ""
}

func isIndia(c string) bool {
	switch strings.ToUpper(strings.TrimSpace(c)) {
	case "IN", "IND", "INDIA", "印度":
		return true
	}
	return false
}

// 旧称与常见拼写
var aliases = map[string]string{
	"ORISSA":                          "ODISHA",
	"UTTARANCHAL":                     "UTTARAKHAND",
	"PONDICHERRY":                     "PUDUCHERRY",
	"NCTOFDELHI":                      "DELHI",
	"NATIONALCAPITALTERRITORYOFDELHI": "DELHI",
	"JAMMUKASHMIR":                    "JAMMUANDKASHMIR",
	"ANDAMANNICOBAR":                  "ANDAMANANDNICOBAR",
	"ANDAMANANDNICOBARISLANDS":        "ANDAMANANDNICOBAR",
}

// Normalize：大写，& 视为 AND，去掉非字母数字
func Normalize(s string) string {
	s = strings.ReplaceAll(strings.ToUpper(s), "&", "AND")
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	n := b.String()
	if a, ok := aliases[n]; ok {
		return a
	}
	return n
}

// MatchState：候选名与州目录归一化后相等即命中，按候选顺序优先
func MatchState(states []string, candidates ...string) string {
	idx := make(map[string]string, len(states))
	for _, s := range states {
		idx[Normalize(s)] = s
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if s, ok := idx[Normalize(c)]; ok {
			return s
		}
	}
	return ""
}

// FromEnv：GEOIP_DB_PATH（GeoIP2/GeoLite2 City）、MMDB_PATH（其它 City 结构 mmdb）、IP2REGION_V4_PATH；打开失败记录日志并跳过
func FromEnv() []Locator {
	var out []Locator
	l := logger.L()
	if p := os.Getenv("GEOIP_DB_PATH"); p != "" {
		if g, err := OpenGeoIP(p); err == nil {
			out = append(out, g)
			l.Info("locator_ready", "name", g.Name(), "path", p)
		} else {
			l.Error("locator_open_error", "name", "geoip", "path", p, "err", err)
		}
	}
	if p := os.Getenv("MMDB_PATH"); p != "" {
		if m, err := OpenMMDB(p); err == nil {
			out = append(out, m)
			l.Info("locator_ready", "name", m.Name(), "path", p)
		} else {
			l.Error("locator_open_error", "name", "mmdb", "path", p, "err", err)
		}
	}
	if p := os.Getenv("IP2REGION_V4_PATH"); p != "" {
		if x, err := OpenIP2Region(p, os.Getenv("IP2REGION_V6_PATH")); err == nil {
			out = append(out, x)
			l.Info("locator_ready", "name", x.Name(), "path", p)
		} else {
			l.Error("locator_open_error", "name", "ip2region", "path", p, "err", err)
		}
	}
	return out
}
