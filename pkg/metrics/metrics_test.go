package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"panelgauge/pkg/metrics"

	. "github.com/smartystreets/goconvey/convey"
)

func TestPackageHelpers(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording pipeline activity", func() {
			Convey("Then the helpers do not panic", func() {
				So(func() {
					metrics.RecordCommunityAttempted()
					metrics.RecordCommunityFetched()
					metrics.RecordFetchFailure("rate_limited")
					metrics.RecordFetchLatency(12.5)
					metrics.RecordActivitiesIngested(42)
					metrics.RecordAttendanceFacts(7)
					metrics.RecordDuplicateActivity()
					metrics.UpdateCollectionEfficiency(0.7)
					metrics.RecordRunDuration(1234)
					metrics.UpdateProxyCount("DAU", 1512)
					metrics.UpdateRetainedDays(30)
					metrics.UpdateCalibrationFactor("DAU", 48346.56)
					metrics.UpdateCalibrationConfidence("DAU", 0.8)
					metrics.RecordQualityFlag("coverage")
					metrics.UpdateQueueSize(3)
					metrics.UpdateQueueCapacity(1000)
					metrics.RecordQueueEnqueueError()
					metrics.UpdateWorkerCount(8)
					metrics.RecordWorkerError()
					metrics.RecordHTTPRequest("/reports/metrics", http.MethodGet, "200")
					metrics.RecordHTTPRequestDuration("/reports/metrics", http.MethodGet, "200", 3.2)
				}, ShouldNotPanic)
			})
		})

		Convey("When scraping the handler", func() {
			metrics.UpdateCollectionEfficiency(0.7)

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			metrics.Handler().ServeHTTP(rec, req)

			Convey("Then pipeline metrics are exposed", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Body.String(), ShouldContainSubstring, "panelgauge_pipeline_collection_efficiency")
			})
		})
	})
}

func TestManagerOptions(t *testing.T) {
	Convey("Given a manager with custom namespace and subsystem", t, func() {
		Convey("Then construction on a fresh registry succeeds", func() {
			So(func() {
				metrics.NewManager(
					metrics.WithNamespace("testns"),
					metrics.WithSubsystem("testsub"),
					metrics.WithHistogramBuckets([]float64{1, 5, 10}),
				)
			}, ShouldNotPanic)
		})
	})
}
