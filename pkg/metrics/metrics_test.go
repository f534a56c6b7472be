package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	. "github.com/smartystreets/goconvey/convey"
)

func value(m prometheus.Metric) float64 {
	var out dto.Metric
	if err := m.Write(&out); err != nil {
		return -1
	}
	switch {
	case out.Counter != nil:
		return out.Counter.GetValue()
	case out.Gauge != nil:
		return out.Gauge.GetValue()
	}
	return 0
}

func TestMetricsOptions(t *testing.T) {
	Convey("Given metrics options", t, func() {
		Convey("When applying them to a manager", func() {
			m := &Manager{}
			WithNamespace("ns")(m)
			WithSubsystem("sub")(m)
			WithMetricPrefix("pre")(m)
			WithHistogramBuckets([]float64{0.1, 0.5, 1.0})(m)
			WithMetricsEnabled(true)(m)
			WithRefreshInterval(5 * time.Second)(m)
			WithCustomLabels(map[string]string{"env": "test"})(m)

			Convey("Then every field should be set", func() {
				So(m.namespace, ShouldEqual, "ns")
				So(m.subsystem, ShouldEqual, "sub")
				So(m.metricPrefix, ShouldEqual, "pre")
				So(m.histogramBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
				So(m.enabled.Load(), ShouldBeTrue)
				So(time.Duration(m.refreshInterval.Load()), ShouldEqual, 5*time.Second)
				So(m.customLabels["env"], ShouldEqual, "test")
			})
		})

		Convey("When passing empty values", func() {
			m := &Manager{namespace: "keep", subsystem: "keep"}
			WithNamespace("")(m)
			WithSubsystem("")(m)
			WithRefreshInterval(0)(m)
			WithPrometheusRegistry(nil)(m)

			Convey("Then defaults should be preserved", func() {
				So(m.namespace, ShouldEqual, "keep")
				So(m.subsystem, ShouldEqual, "keep")
				So(m.refreshInterval.Load(), ShouldEqual, int64(0))
				So(m.registry, ShouldBeNil)
			})
		})
	})
}

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))
			manager.snapshotsProcessed.Inc()

			Convey("Then its metrics should be registered under the nudge namespace", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "nudge_compliance_snapshots_processed_total" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When creating with a metric prefix", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithPrometheusRegistry(registry),
				WithNamespace("acme"),
				WithMetricPrefix("eu"),
			)
			manager.historyConflicts.Inc()

			Convey("Then names should carry the prefix", func() {
				So(value(manager.historyConflicts), ShouldEqual, 1)
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(strings.Join(names, ","), ShouldContainSubstring, "acme_compliance_eu_history_conflicts_total")
			})
		})
	})
}

func TestMetricsConfigure(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Reset(func() {
			Configure(WithMetricsEnabled(true), WithRefreshInterval(defaultRefreshInterval))
		})

		Convey("When recording is disabled", func() {
			Configure(WithMetricsEnabled(false))
			before := value(globalManager.snapshotsProcessed)
			RecordSnapshotProcessed()
			UpdateRosterSize(99)

			Convey("Then recorders should not touch the collectors", func() {
				So(Enabled(), ShouldBeFalse)
				So(value(globalManager.snapshotsProcessed), ShouldEqual, before)
				So(value(globalManager.rosterSize), ShouldNotEqual, 99)
			})
		})

		Convey("When recording is re-enabled", func() {
			Configure(WithMetricsEnabled(false))
			Configure(WithMetricsEnabled(true))
			before := value(globalManager.snapshotsProcessed)
			RecordSnapshotProcessed()

			Convey("Then recorders should resume", func() {
				So(value(globalManager.snapshotsProcessed)-before, ShouldEqual, 1)
			})
		})

		Convey("When a refresh interval is configured", func() {
			Configure(WithRefreshInterval(3 * time.Second))

			Convey("Then updaters should see it", func() {
				So(RefreshInterval(), ShouldEqual, 3*time.Second)
			})
		})

		Convey("When no refresh interval is configured", func() {
			Configure(WithRefreshInterval(0))

			Convey("Then the default should apply", func() {
				So(RefreshInterval(), ShouldEqual, defaultRefreshInterval)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global recorders", t, func() {
		Convey("When recording a row funnel", func() {
			beforeKept := value(globalManager.rowsKept)
			beforeDropped := value(globalManager.rowsDropped)
			RecordRows(10, 4)

			Convey("Then kept and dropped should both advance", func() {
				So(value(globalManager.rowsKept)-beforeKept, ShouldEqual, 4)
				So(value(globalManager.rowsDropped)-beforeDropped, ShouldEqual, 6)
			})
		})

		Convey("When updating state gauges", func() {
			UpdateHistoryWeeks(12)
			UpdateRosterSize(40)
			UpdateLatestOffenders(7)

			Convey("Then the gauges should hold the last value", func() {
				So(value(globalManager.historyWeeks), ShouldEqual, 12)
				So(value(globalManager.rosterSize), ShouldEqual, 40)
				So(value(globalManager.latestOffenders), ShouldEqual, 7)
			})
		})

		Convey("When recording failures by stage", func() {
			before := value(globalManager.snapshotsFailed.WithLabelValues("headers"))
			RecordSnapshotFailed("headers")

			Convey("Then only that stage should advance", func() {
				So(value(globalManager.snapshotsFailed.WithLabelValues("headers"))-before, ShouldEqual, 1)
			})
		})

		Convey("When recording the remaining series", func() {
			So(func() {
				RecordSnapshotProcessed()
				RecordProcessingLatency(12.5)
				RecordRosterProcessed()
				RecordUploadStored()
				RecordHistoryConflict()
				RecordLeaderboardLatency(3)
				RecordSnapshotSkipped()
				RecordStorageOperation("memory", "read", "ok", 0.2)
				RecordCacheHit()
				RecordCacheMiss()
				RecordCacheError()
				RecordHTTPRequest("/leaderboard", "GET", "200")
				RecordHTTPRequestDuration("/leaderboard", "GET", "200", 4)
				RecordErrorByComponent("history", "conflict")
				RecordErrorByType("conflict", "warning")
				RecordErrorByEndpoint("/process-csv", "POST", "bad_request")
				RecordErrorLatency("history", "conflict", 9)
				UpdateSystemMemoryUsage(1024 * 1024)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)
		})
	})
}

func TestGetRegistry(t *testing.T) {
	Convey("Given the custom registry", t, func() {
		RecordSnapshotProcessed()
		families, err := GetRegistry().Gather()

		Convey("Then it should expose domain metrics and no Go runtime metrics", func() {
			So(err, ShouldBeNil)
			So(len(families), ShouldBeGreaterThan, 0)
			for _, f := range families {
				So(strings.HasPrefix(f.GetName(), "go_"), ShouldBeFalse)
			}
		})
	})
}
