package config_test

import (
	"testing"
	"time"

	"github.com/okian/nudge/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.LogFormat, convey.ShouldEqual, "text")
			convey.So(cfg.StorageBackend, convey.ShouldEqual, config.BackendMemory)
			convey.So(cfg.Timezone, convey.ShouldEqual, "UTC")
			convey.So(cfg.MaxUploadBytes, convey.ShouldEqual, int64(10<<20))
			convey.So(cfg.MaxLeaderboardLimit, convey.ShouldEqual, 500)
			convey.So(cfg.CacheTTL(), convey.ShouldEqual, 5*time.Minute)
			convey.So(cfg.MetricsEnabled, convey.ShouldBeTrue)
			convey.So(cfg.MetricsRefresh(), convey.ShouldEqual, 30*time.Second)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then the location should resolve", func() {
			loc, err := cfg.Location()
			convey.So(err, convey.ShouldBeNil)
			convey.So(loc, convey.ShouldEqual, time.UTC)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given backend specific settings", t, func() {
		convey.Convey("When the emulator host is missing", func() {
			cfg := config.New()
			cfg.StorageBackend = config.BackendGCSEmulator
			cfg.StorageBucket = "nudge"

			convey.So(cfg.Validate(), convey.ShouldNotBeNil)

			cfg.StorageEmulatorHost = "localhost:4443"
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("When postgres has no DSN", func() {
			cfg := config.New()
			cfg.StorageBackend = config.BackendPostgres

			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("When mongo has a URI", func() {
			cfg := config.New()
			cfg.StorageBackend = config.BackendMongo
			cfg.MongoURI = "mongodb://localhost:27017"

			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("When the metrics refresh period is not positive", func() {
			cfg := config.New()
			cfg.MetricsRefreshSeconds = 0

			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("When the sample ratio is out of range", func() {
			cfg := config.New()
			cfg.TracingSampleRatio = 1.5

			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})
	})
}
