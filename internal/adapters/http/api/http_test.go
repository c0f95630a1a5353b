package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"panelgauge/internal/adapters/http/api"
	service "panelgauge/internal/app"
	"panelgauge/internal/domain/model"
	"panelgauge/internal/domain/panel"
	"panelgauge/internal/domain/types"
	"panelgauge/pkg/logger"

	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

// stubDeps implements api.Dependencies with scripted responses.
type stubDeps struct {
	metricRows []types.MetricRow
	quality    types.QualityRow
	qualityErr error
	factor     model.CalibrationFactor
	factorErr  error
	registered []string
}

func (s *stubDeps) MetricsReport(_ context.Context, day model.Day) ([]types.MetricRow, error) {
	rows := make([]types.MetricRow, len(s.metricRows))
	copy(rows, s.metricRows)
	for i := range rows {
		rows[i].Day = day.String()
	}
	return rows, nil
}

func (s *stubDeps) QualityReport(_ context.Context) (types.QualityRow, error) {
	return s.quality, s.qualityErr
}

func (s *stubDeps) SupplyGroundTruth(_ context.Context, metric model.Metric, reported float64) (model.CalibrationFactor, error) {
	if s.factorErr != nil {
		return model.CalibrationFactor{}, s.factorErr
	}
	f := s.factor
	f.Metric = metric
	f.Reported = reported
	return f, nil
}

func (s *stubDeps) RegisterCommunity(_ context.Context, m model.PanelMember) error {
	for _, c := range s.registered {
		if c == m.Community {
			return fmt.Errorf("%w: %s", panel.ErrDuplicateMember, m.Community)
		}
	}
	s.registered = append(s.registered, m.Community)
	return nil
}

type stubStats struct{}

func (stubStats) GetStats() types.StatsRow {
	return types.StatsRow{Started: true, Epoch: 3, RetainedDays: 30}
}

func newTestServer(deps *stubDeps) *httptest.Server {
	mux := http.NewServeMux()
	api.NewServer(deps, stubStats{}).Register(context.Background(), mux)
	return httptest.NewServer(mux)
}

func TestReportsEndpoints(t *testing.T) {
	Convey("Given a server with one calibrated metric", t, func() {
		deps := &stubDeps{
			metricRows: []types.MetricRow{
				{Metric: "DAU", Proxy: 1512, Calibrated: 73_100_000, Confidence: 0.16},
			},
			quality: types.QualityRow{
				RunID:                "run-1",
				Day:                  "2024-06-15",
				CollectionEfficiency: 0.7,
				Flags:                []types.QualityFlag{{Kind: "coverage", Detail: "low"}},
			},
		}
		ts := newTestServer(deps)
		defer ts.Close()

		Convey("When requesting the metrics report for a day", func() {
			resp, err := http.Get(ts.URL + "/reports/metrics?day=2024-06-15")
			So(err, ShouldBeNil)
			defer func() { _ = resp.Body.Close() }()

			Convey("Then the rows carry the requested day", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)

				var rows []types.MetricRow
				So(json.NewDecoder(resp.Body).Decode(&rows), ShouldBeNil)
				So(rows, ShouldHaveLength, 1)
				So(rows[0].Day, ShouldEqual, "2024-06-15")
				So(rows[0].Calibrated, ShouldEqual, 73_100_000)
			})
		})

		Convey("When the day parameter is malformed", func() {
			resp, err := http.Get(ts.URL + "/reports/metrics?day=june-15")
			So(err, ShouldBeNil)
			defer func() { _ = resp.Body.Close() }()

			Convey("Then the request is rejected", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When requesting the quality report", func() {
			resp, err := http.Get(ts.URL + "/reports/quality")
			So(err, ShouldBeNil)
			defer func() { _ = resp.Body.Close() }()

			Convey("Then the latest run's report is returned", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)

				var row types.QualityRow
				So(json.NewDecoder(resp.Body).Decode(&row), ShouldBeNil)
				So(row.RunID, ShouldEqual, "run-1")
				So(row.Flags, ShouldHaveLength, 1)
			})
		})

		Convey("When no run has completed yet", func() {
			deps.qualityErr = service.ErrNoCompletedRun
			resp, err := http.Get(ts.URL + "/reports/quality")
			So(err, ShouldBeNil)
			defer func() { _ = resp.Body.Close() }()

			Convey("Then the report is 404", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestCalibrationEndpoint(t *testing.T) {
	Convey("Given a server accepting ground truth", t, func() {
		deps := &stubDeps{
			factor: model.CalibrationFactor{
				Proxy:      1512,
				Factor:     48346.56,
				Confidence: 0.16,
				Cause:      model.CauseNewGroundTruth,
				ComputedAt: time.Now().UTC(),
			},
		}
		ts := newTestServer(deps)
		defer ts.Close()

		post := func(body string) *http.Response {
			resp, err := http.Post(ts.URL+"/calibration", "application/json", strings.NewReader(body))
			So(err, ShouldBeNil)
			return resp
		}

		Convey("When posting a valid disclosure", func() {
			resp := post(`{"metric":"DAU","reported":73100000}`)
			defer func() { _ = resp.Body.Close() }()

			Convey("Then the appended factor is returned", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusCreated)

				var got map[string]any
				So(json.NewDecoder(resp.Body).Decode(&got), ShouldBeNil)
				So(got["metric"], ShouldEqual, "DAU")
				So(got["factor"], ShouldAlmostEqual, 48346.56, 1e-6)
				So(got["cause"], ShouldEqual, string(model.CauseNewGroundTruth))
			})
		})

		Convey("When posting an unknown metric", func() {
			resp := post(`{"metric":"HAU","reported":1000}`)
			defer func() { _ = resp.Body.Close() }()

			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When posting a non-positive value", func() {
			resp := post(`{"metric":"DAU","reported":0}`)
			defer func() { _ = resp.Body.Close() }()

			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When no proxy is available yet", func() {
			deps.factorErr = service.ErrNoProxy
			resp := post(`{"metric":"DAU","reported":73100000}`)
			defer func() { _ = resp.Body.Close() }()

			So(resp.StatusCode, ShouldEqual, http.StatusConflict)
		})

		Convey("When using the wrong method", func() {
			resp, err := http.Get(ts.URL + "/calibration")
			So(err, ShouldBeNil)
			defer func() { _ = resp.Body.Close() }()

			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestPanelEndpoint(t *testing.T) {
	Convey("Given a server accepting panel registrations", t, func() {
		deps := &stubDeps{}
		ts := newTestServer(deps)
		defer ts.Close()

		post := func(body string) *http.Response {
			resp, err := http.Post(ts.URL+"/panel", "application/json", strings.NewReader(body))
			So(err, ShouldBeNil)
			return resp
		}

		Convey("When registering a new community", func() {
			resp := post(`{"community":"golang","category":"tech"}`)
			defer func() { _ = resp.Body.Close() }()

			Convey("Then it is accepted", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusCreated)
				So(deps.registered, ShouldContain, "golang")
			})

			Convey("Then registering it again conflicts", func() {
				again := post(`{"community":"golang","category":"tech"}`)
				defer func() { _ = again.Body.Close() }()
				So(again.StatusCode, ShouldEqual, http.StatusConflict)
			})
		})

		Convey("When the community is missing", func() {
			resp := post(`{"category":"tech"}`)
			defer func() { _ = resp.Body.Close() }()

			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestHealthAndStats(t *testing.T) {
	Convey("Given a running server", t, func() {
		ts := newTestServer(&stubDeps{})
		defer ts.Close()

		Convey("When probing /healthz", func() {
			resp, err := http.Get(ts.URL + "/healthz")
			So(err, ShouldBeNil)
			defer func() { _ = resp.Body.Close() }()

			So(resp.StatusCode, ShouldEqual, http.StatusOK)
		})

		Convey("When requesting /stats", func() {
			resp, err := http.Get(ts.URL + "/stats")
			So(err, ShouldBeNil)
			defer func() { _ = resp.Body.Close() }()

			var stats types.StatsRow
			So(json.NewDecoder(resp.Body).Decode(&stats), ShouldBeNil)
			So(stats.Started, ShouldBeTrue)
			So(stats.Epoch, ShouldEqual, 3)
			So(stats.RetainedDays, ShouldEqual, 30)
		})
	})
}
