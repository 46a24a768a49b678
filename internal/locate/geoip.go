package locate

import (
	"net"

	"github.com/oschwald/geoip2-golang"
	"github.com/oschwald/maxminddb-golang"
)

// GeoIP：MaxMind GeoIP2/GeoLite2 City 库
type GeoIP struct {
	r *geoip2.Reader
}

func OpenGeoIP(path string) (*GeoIP, error) {
	r, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &GeoIP{r: r}, nil
}

func (g *GeoIP) Name() string { return "geoip" }

func (g *GeoIP) Close() error { return g.r.Close() }

func (g *GeoIP) Lookup(ip net.IP) (Location, bool) {
	rec, err := g.r.City(ip)
	if err != nil || rec == nil {
		return Location{}, false
	}
	loc := Location{Country: rec.Country.IsoCode}
	for _, s := range rec.Subdivisions {
		if n := s.Names["en"]; n != "" {
			loc.Subdivisions = append(loc.Subdivisions, n)
		}
	}
	if len(loc.Subdivisions) == 0 {
		return loc, false
	}
	return loc, true
}

// mmdbCity：City 结构 mmdb 中用到的字段（DB-IP、IPinfo 等兼容库）
type mmdbCity struct {
	Country struct {
		IsoCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
	Subdivisions []struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"subdivisions"`
	Region string `maxminddb:"region"`
}

// MMDB：直接按字段解码的 mmdb 读取器，兼容仅有 region 字符串字段的库
type MMDB struct {
	r *maxminddb.Reader
}

func OpenMMDB(path string) (*MMDB, error) {
	r, err := maxminddb.Open(path)
	if err != nil {
		return nil, err
	}
	return &MMDB{r: r}, nil
}

func (m *MMDB) Name() string { return "mmdb:" + m.r.Metadata.DatabaseType }

func (m *MMDB) Close() error { return m.r.Close() }

func (m *MMDB) Lookup(ip net.IP) (Location, bool) {
	var rec mmdbCity
	if err := m.r.Lookup(ip, &rec); err != nil {
		return Location{}, false
	}
	loc := Location{Country: rec.Country.IsoCode}
	for _, s := range rec.Subdivisions {
		if n := s.Names["en"]; n != "" {
			loc.Subdivisions = append(loc.Subdivisions, n)
		}
	}
	if rec.Region != "" {
		loc.Subdivisions = append(loc.Subdivisions, rec.Region)
	}
	return loc, len(loc.Subdivisions) > 0
}
