package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	app "github.com/okian/nudge/internal/app"
	"github.com/okian/nudge/internal/config"
	"github.com/okian/nudge/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When testing configuration loading", func() {
			_ = os.Setenv("NUDGE_ADDR", ":8080")
			_ = os.Setenv("NUDGE_FETCH_CONCURRENCY", "4")
			defer func() {
				_ = os.Unsetenv("NUDGE_ADDR")
				_ = os.Unsetenv("NUDGE_FETCH_CONCURRENCY")
			}()

			convey.Convey("Then configuration should be loadable", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.FetchConcurrency, convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When building the service from defaults", func() {
			ctx := context.Background()
			cfg := config.New()
			svc, err := app.NewFromConfig(ctx, cfg, logger.Get())
			convey.So(err, convey.ShouldBeNil)
			defer svc.Stop()
			convey.So(svc.Start(ctx), convey.ShouldBeNil)

			convey.Convey("Then the wired options should show in stats", func() {
				stats := svc.GetStats(ctx)
				convey.So(stats["backend"], convey.ShouldEqual, config.BackendMemory)
				convey.So(stats["historyAttempts"], convey.ShouldEqual, cfg.HistoryMaxAttempts)
				convey.So(stats["started"], convey.ShouldBeTrue)
			})

			convey.Convey("Then the mux should serve API and docs routes", func() {
				mux := newMux(ctx, cfg, svc)
				for _, path := range []string{"/healthz", "/stats", "/api/history", "/api/leaderboard", "/openapi.yaml"} {
					w := httptest.NewRecorder()
					mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
					convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				}
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/latest-snapshot", http.NoBody))
				convey.So(w.Code, convey.ShouldEqual, http.StatusNotFound)
			})
		})

		convey.Convey("When the timezone is invalid", func() {
			cfg := config.New()
			cfg.Timezone = "Nowhere/Atlantis"
			_, err := app.NewFromConfig(context.Background(), cfg, logger.Get())

			convey.Convey("Then building should fail", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestMainApplicationComponents(t *testing.T) {
	convey.Convey("Given main application components", t, func() {
		convey.Convey("When testing system metrics updater", func() {
			convey.Convey("Then it should return when the context ends", func() {
				ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer cancel()

				convey.So(func() {
					startSystemMetricsUpdater(ctx)
				}, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When testing service metrics updater", func() {
			svc := app.New()

			convey.Convey("Then it should return when the context ends", func() {
				ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer cancel()

				convey.So(func() {
					startServiceMetricsUpdater(ctx, svc)
				}, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When updating metrics directly", func() {
			svc := app.New()

			convey.Convey("Then it should not panic", func() {
				convey.So(updateSystemMetrics, convey.ShouldNotPanic)
				convey.So(func() { updateServiceMetrics(context.Background(), svc) }, convey.ShouldNotPanic)
			})
		})
	})
}

func TestMainApplicationErrorHandling(t *testing.T) {
	convey.Convey("Given main application error handling", t, func() {
		convey.Convey("When the address is empty", func() {
			_ = os.Setenv("NUDGE_ADDR", "")
			defer func() { _ = os.Unsetenv("NUDGE_ADDR") }()

			convey.Convey("Then configuration loading should fail", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}
