package services

import (
	"fmt"
	"net"
	"sync"

	"github.com/oschwald/geoip2-golang"

	"dev365-portal/internal/logging"
)

const (
	// CountryUnknown 无法解析国家时的代码
	CountryUnknown = "UNKNOWN"
	// CountryLocal 内网或本机地址
	CountryLocal = "LOCAL"
)

// GeoIPService IP国家解析服务，用于审计日志
type GeoIPService struct {
	mu     sync.RWMutex
	reader *geoip2.Reader
}

// NewGeoIPService 打开GeoLite2国家数据库，dbPath为空时只区分本地与未知
func NewGeoIPService(dbPath string) (*GeoIPService, error) {
	s := &GeoIPService{}
	if dbPath == "" {
		return s, nil
	}
	r, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open geoip database %s: %w", dbPath, err)
	}
	s.reader = r
	return s, nil
}

// NewGeoIPServiceOrFallback 数据库无法打开时记录警告并退回到无数据库模式
func NewGeoIPServiceOrFallback(dbPath string) *GeoIPService {
	s, err := NewGeoIPService(dbPath)
	if err != nil {
		logging.DefaultLogger.Warn("GeoIP disabled: %v", err)
		return &GeoIPService{}
	}
	return s
}

// Country 返回IP所属国家的ISO代码
func (s *GeoIPService) Country(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return CountryUnknown
	}
	if isPrivateIP(parsed) {
		return CountryLocal
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.reader == nil {
		return CountryUnknown
	}
	record, err := s.reader.Country(parsed)
	if err != nil || record.Country.IsoCode == "" {
		return CountryUnknown
	}
	return record.Country.IsoCode
}

// Close 关闭数据库
func (s *GeoIPService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reader == nil {
		return nil
	}
	err := s.reader.Close()
	s.reader = nil
	return err
}

// isPrivateIP 判断是否为内网或本机IP
func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}
