package services

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"reftrack/internal/config"

	"github.com/oschwald/geoip2-golang"
	"github.com/oschwald/maxminddb-golang"
	"github.com/stretchr/testify/assert"
)

type mockGeoIPReader struct {
	cityFunc     func(ip net.IP) (*geoip2.City, error)
	metadataFunc func() maxminddb.Metadata
	closeFunc    func() error
}

func (m *mockGeoIPReader) City(ip net.IP) (*geoip2.City, error) { return m.cityFunc(ip) }
func (m *mockGeoIPReader) Metadata() maxminddb.Metadata        { return m.metadataFunc() }
func (m *mockGeoIPReader) Close() error                        { return m.closeFunc() }

func TestNewGeoIPService(t *testing.T) {
	cfg := config.Config{}
	logger := slog.Default()
	service := NewGeoIPService(cfg, logger)

	assert.NotNil(t, service)
	assert.Equal(t, cfg, service.cfg)
	assert.Equal(t, logger, service.logger)
}

func TestGeoIPService_Init_Disabled(t *testing.T) {
	cfg := config.Config{
		MaxMindAccountID: "",
		MaxMindDBPath:    "/non/existent/db.mmdb",
	}
	service := NewGeoIPService(cfg, slog.Default())
	service.Init()
	assert.Nil(t, service.geoReader)
}

func TestGeoIPService_Init_MkdirError(t *testing.T) {
	tempFile, err := os.CreateTemp("", "geoip-file")
	assert.NoError(t, err)
	defer os.Remove(tempFile.Name())
	tempFile.Close()

	// A regular file cannot act as the database directory.
	cfg := config.Config{
		MaxMindAccountID:  "test",
		MaxMindLicenseKey: "test",
		MaxMindDBPath:     filepath.Join(tempFile.Name(), "db.mmdb"),
	}
	service := NewGeoIPService(cfg, slog.Default())
	service.Init()
	assert.Nil(t, service.geoReader)
}

func TestGeoIPService_ResolveLocation(t *testing.T) {
	service := NewGeoIPService(config.Config{}, slog.Default())
	unknown := Location{Country: "Unknown", City: "Unknown"}

	t.Run("Localhost", func(t *testing.T) {
		assert.Equal(t, Location{Country: "Localhost", City: "Local"}, service.ResolveLocation("127.0.0.1"))
		assert.Equal(t, Location{Country: "Localhost", City: "Local"}, service.ResolveLocation("::1"))
	})

	t.Run("Empty And Malformed", func(t *testing.T) {
		assert.Equal(t, unknown, service.ResolveLocation(""))
		assert.Equal(t, unknown, service.ResolveLocation("not-an-ip"))
	})

	t.Run("Nil Reader", func(t *testing.T) {
		assert.Equal(t, unknown, service.ResolveLocation("8.8.8.8"))
	})

	t.Run("Reader Success", func(t *testing.T) {
		service.geoReader = &mockGeoIPReader{
			cityFunc: func(ip net.IP) (*geoip2.City, error) {
				rec := &geoip2.City{}
				rec.Country.Names = map[string]string{"en": "United States"}
				rec.Country.IsoCode = "US"
				rec.City.Names = map[string]string{"en": "New York"}
				return rec, nil
			},
		}
		defer func() { service.geoReader = nil }()

		assert.Equal(t, Location{Country: "United States", City: "New York"}, service.ResolveLocation("8.8.8.8"))
	})

	t.Run("Country IsoCode Only", func(t *testing.T) {
		service.geoReader = &mockGeoIPReader{
			cityFunc: func(ip net.IP) (*geoip2.City, error) {
				rec := &geoip2.City{}
				rec.Country.IsoCode = "FR"
				return rec, nil
			},
		}
		defer func() { service.geoReader = nil }()

		assert.Equal(t, Location{Country: "FR", City: "Unknown"}, service.ResolveLocation("8.8.8.8"))
	})

	t.Run("No Country Info", func(t *testing.T) {
		service.geoReader = &mockGeoIPReader{
			cityFunc: func(ip net.IP) (*geoip2.City, error) { return &geoip2.City{}, nil },
		}
		defer func() { service.geoReader = nil }()

		assert.Equal(t, unknown, service.ResolveLocation("8.8.8.8"))
	})

	t.Run("Reader Error", func(t *testing.T) {
		service.geoReader = &mockGeoIPReader{
			cityFunc: func(ip net.IP) (*geoip2.City, error) { return nil, errors.New("db error") },
		}
		defer func() { service.geoReader = nil }()

		assert.Equal(t, unknown, service.ResolveLocation("8.8.8.8"))
	})
}

func TestGeoIPService_StartUpdater_Loop(t *testing.T) {
	cfg := config.Config{
		MaxMindAccountID: "test",
		MaxMindDBPath:    "invalid",
	}
	service := NewGeoIPService(cfg, slog.Default())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		service.StartUpdaterWithInterval(ctx, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(25 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("updater did not stop")
	}
}

func TestGeoIPService_StartUpdater_Disabled(t *testing.T) {
	service := NewGeoIPService(config.Config{}, slog.Default())
	service.StartUpdater(context.Background()) // returns immediately
}

func TestGeoIPService_ReloadReader_Exists(t *testing.T) {
	service := NewGeoIPService(config.Config{}, slog.Default())
	closed := false
	service.geoReader = &mockGeoIPReader{
		closeFunc: func() error {
			closed = true
			return nil
		},
	}

	service.reloadReader("non-existent")
	assert.True(t, closed)
	assert.Nil(t, service.geoReader)
}

func TestGeoIPService_UpdateGeoDB_WriteError(t *testing.T) {
	tempFile, err := os.CreateTemp("", "geoip-file-2")
	assert.NoError(t, err)
	defer os.Remove(tempFile.Name())
	tempFile.Close()

	cfg := config.Config{
		MaxMindDBPath: filepath.Join(tempFile.Name(), "db.mmdb"),
	}
	service := NewGeoIPService(cfg, slog.Default())
	err = service.updateGeoDB()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to write GeoIP.conf")
}
