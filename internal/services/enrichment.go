package services

import (
	"strings"

	"github.com/mssola/user_agent"
)

const (
	unknownValue = "Unknown"
	otherValue   = "Other"

	DeviceDesktop = "Desktop"
	DeviceMobile  = "Mobile"
	DeviceTablet  = "Tablet"
	DeviceBot     = "Bot"
)

type DeviceInfo struct {
	DeviceType      string
	BrowserName     string
	OperatingSystem string
}

// DeviceClassifier never fails; unparseable input maps to "Unknown" or "Other".
type DeviceClassifier interface {
	ClassifyDevice(userAgent string) DeviceInfo
}

type Location struct {
	Country string
	City    string
}

// LocationResolver never fails; lookups that cannot be answered return "Unknown".
type LocationResolver interface {
	ResolveLocation(ip string) Location
}

type UserAgentClassifier struct{}

func NewUserAgentClassifier() *UserAgentClassifier {
	return &UserAgentClassifier{}
}

func (c *UserAgentClassifier) ClassifyDevice(uaString string) DeviceInfo {
	uaString = strings.TrimSpace(uaString)
	if uaString == "" {
		return DeviceInfo{DeviceType: unknownValue, BrowserName: unknownValue, OperatingSystem: unknownValue}
	}

	ua := user_agent.New(uaString)
	info := DeviceInfo{DeviceType: DeviceDesktop}
	switch {
	case ua.Bot():
		info.DeviceType = DeviceBot
	case isTablet(uaString):
		info.DeviceType = DeviceTablet
	case ua.Mobile():
		info.DeviceType = DeviceMobile
	}

	info.BrowserName, _ = ua.Browser()
	if info.BrowserName == "" {
		info.BrowserName = otherValue
	}

	info.OperatingSystem = ua.OSInfo().Name
	if info.OperatingSystem == "" {
		info.OperatingSystem = ua.OS()
	}
	if info.OperatingSystem == "" {
		info.OperatingSystem = otherValue
	}
	return info
}

func isTablet(ua string) bool {
	lower := strings.ToLower(ua)
	if strings.Contains(lower, "ipad") || strings.Contains(lower, "tablet") {
		return true
	}
	return strings.Contains(lower, "android") && !strings.Contains(lower, "mobile")
}
