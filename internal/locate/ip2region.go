package locate

import (
	"net"
	"strings"
	"sync"

	"github.com/lionsoul2014/ip2region/binding/golang/xdb"
)

// regionSearcher：*xdb.Searcher 的查询面
type regionSearcher interface {
	SearchByStr(ip string) (string, error)
}

// IP2Region：xdb 离线库；v4 与 v6 文件可分别配置
// 约束：文件模式的 searcher 共用一个文件句柄（Seek 后 Read），查询必须串行，由 mu 保护。
type IP2Region struct {
	mu sync.Mutex
	v4 regionSearcher
	v6 regionSearcher
}

func OpenIP2Region(v4Path, v6Path string) (*IP2Region, error) {
	var c IP2Region
	var err error
	if v4Path != "" {
		if c.v4, err = xdb.NewWithFileOnly(xdb.IPv4, v4Path); err != nil {
			return nil, err
		}
	}
	if v6Path != "" {
		if c.v6, err = xdb.NewWithFileOnly(xdb.IPv6, v6Path); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

func (c *IP2Region) Name() string { return "ip2region" }

func (c *IP2Region) Lookup(ip net.IP) (Location, bool) {
	s := c.v4
	if ip.To4() == nil {
		s = c.v6
	}
	if s == nil {
		return Location{}, false
	}
	c.mu.Lock()
	region, err := s.SearchByStr(ip.String())
	c.mu.Unlock()
	if err != nil || region == "" {
		return Location{}, false
	}
	loc := parseRegion(region)
	return loc, len(loc.Subdivisions) > 0
}

// parseRegion：国家|区域|省份|城市|运营商，"0" 与 unknown 视为空；区域与省份作为候选
func parseRegion(s string) Location {
	parts := strings.Split(s, "|")
	var l Location
	for i, p := range parts {
		p = safe(p)
		switch {
		case i == 0:
			l.Country = p
		case p != "" && i <= 2:
			l.Subdivisions = append(l.Subdivisions, p)
		}
	}
	return l
}

func safe(s string) string {
	s = strings.TrimSpace(s)
	if s == "0" || strings.EqualFold(s, "unknown") {
		return ""
	}
	return s
}
