package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/revforecast/internal/adapters/nhits"
	service "github.com/okian/revforecast/internal/app"
	"github.com/okian/revforecast/internal/domain/forecast"
	"github.com/okian/revforecast/internal/domain/model"
	"github.com/okian/revforecast/internal/domain/series"
	"github.com/okian/revforecast/pkg/logger"
	"github.com/okian/revforecast/pkg/metrics"
)

// stubEstimator returns a canned answer and counts calls.
type stubEstimator struct {
	preds []float64
	err   error
	calls int
}

func (s *stubEstimator) Name() string { return "STUB" }

func (s *stubEstimator) Forecast(_ context.Context, _ model.Series, _ int) ([]float64, error) {
	s.calls++
	return s.preds, s.err
}

func records(values ...any) []model.Record {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.Record, len(values))
	for i, v := range values {
		out[i] = model.Record{"date": start.AddDate(0, 0, i).Format(time.DateOnly), "revenue": v}
	}
	return out
}

func daily(n int, value func(i int) any) []model.Record {
	values := make([]any, n)
	for i := range values {
		values[i] = value(i)
	}
	return records(values...)
}

func horizon(h int) *int { return &h }

func smallNHITS() forecast.Estimator {
	return nhits.New(nhits.WithModelOptions(
		forecast.WithMaxSteps(10),
		forecast.WithHiddenUnits(16),
		forecast.WithWindowsBatchSize(16),
	))
}

func TestService_Forecast(t *testing.T) {
	Convey("Given a service with a small learned model", t, func() {
		ctx := context.Background()
		var logs bytes.Buffer
		svc := service.New(
			service.WithLearned(smallNHITS()),
			service.WithLogger(logger.New(&logs)),
		)

		Convey("When the history is five days", func() {
			res, err := svc.Forecast(ctx, model.Request{
				HistoricalData: records(json.Number("100"), json.Number("110"), json.Number("90"), json.Number("105"), json.Number("95")),
				Horizon:        horizon(3),
			})

			Convey("Then the mean tier should answer", func() {
				So(err, ShouldBeNil)
				So(res.Model, ShouldEqual, forecast.TagMean)
				So(res.Predictions, ShouldResemble, []float64{100, 100, 100})
				So(len(res.Attempts), ShouldEqual, 1)
				So(res.Attempts[0].Model, ShouldEqual, forecast.TagNHITS)
				So(errors.Is(res.Attempts[0].Err, forecast.ErrInsufficientHistory), ShouldBeTrue)
				So(logs.String(), ShouldContainSubstring, "falling back")
			})
		})

		Convey("When the history is thirty days and no horizon is given", func() {
			res, err := svc.Forecast(ctx, model.Request{
				HistoricalData: daily(30, func(i int) any { return 500 + 40*math.Sin(float64(i)) }),
			})

			Convey("Then the learned tier should produce seven positive values", func() {
				So(err, ShouldBeNil)
				So(res.Model, ShouldEqual, forecast.TagNHITS)
				So(len(res.Predictions), ShouldEqual, model.DefaultHorizon)
				So(res.Attempts, ShouldBeEmpty)
				for _, v := range res.Predictions {
					So(math.IsNaN(v) || math.IsInf(v, 0), ShouldBeFalse)
					So(v, ShouldBeGreaterThan, 0)
				}
			})
		})

		Convey("When twenty days of zero revenue are given", func() {
			res, err := svc.Forecast(ctx, model.Request{
				HistoricalData: daily(20, func(int) any { return json.Number("0") }),
			})

			Convey("Then seven finite values should come back", func() {
				So(err, ShouldBeNil)
				So(len(res.Predictions), ShouldEqual, 7)
				for _, v := range res.Predictions {
					So(math.IsNaN(v) || math.IsInf(v, 0), ShouldBeFalse)
				}
			})
		})

		Convey("When no day carries revenue", func() {
			res, err := svc.Forecast(ctx, model.Request{
				HistoricalData: daily(20, func(int) any { return nil }),
				Horizon:        horizon(4),
			})

			Convey("Then the raw mean should be the last resort", func() {
				So(err, ShouldBeNil)
				So(res.Model, ShouldEqual, forecast.TagRawMean)
				So(res.Predictions, ShouldResemble, []float64{0, 0, 0, 0})
				So(len(res.Attempts), ShouldEqual, 2)
				So(errors.Is(res.Attempts[0].Err, forecast.ErrTrainingFailure), ShouldBeTrue)
				So(errors.Is(res.Attempts[1].Err, forecast.ErrEstimatorFailure), ShouldBeTrue)
				So(logs.String(), ShouldContainSubstring, "catastrophic failure")
			})
		})
	})
}

func TestService_InputErrors(t *testing.T) {
	Convey("Given a service", t, func() {
		ctx := context.Background()
		learned := &stubEstimator{preds: []float64{1}}
		svc := service.New(service.WithLearned(learned))

		Convey("When the history is empty", func() {
			_, err := svc.Forecast(ctx, model.Request{})

			So(errors.Is(err, series.ErrEmptyInput), ShouldBeTrue)
		})

		Convey("When a date cannot be parsed", func() {
			recs := records(json.Number("1"), json.Number("2"))
			recs[1]["date"] = "not-a-date"
			_, err := svc.Forecast(ctx, model.Request{HistoricalData: recs})

			Convey("Then the request should fail as malformed", func() {
				So(errors.Is(err, series.ErrMalformedInput), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "not-a-date")
			})
		})

		Convey("When the horizon is zero", func() {
			_, err := svc.Forecast(ctx, model.Request{HistoricalData: records(json.Number("1")), Horizon: horizon(0)})

			So(errors.Is(err, series.ErrInvalidHorizon), ShouldBeTrue)
		})

		Convey("When the horizon is beyond the cap", func() {
			_, err := svc.Forecast(ctx, model.Request{HistoricalData: records(json.Number("1")), Horizon: horizon(model.MaxHorizon + 1)})

			So(errors.Is(err, series.ErrInvalidHorizon), ShouldBeTrue)
		})

		So(learned.calls, ShouldEqual, 0)
	})
}

func TestService_LearnedTierErrors(t *testing.T) {
	Convey("Given enough history for the learned tier", t, func() {
		ctx := context.Background()
		req := model.Request{
			HistoricalData: daily(20, func(i int) any { return float64(10 + i) }),
			Horizon:        horizon(2),
		}

		Convey("When training fails", func() {
			learned := &stubEstimator{err: forecast.ErrTrainingFailure}
			res, err := service.New(service.WithLearned(learned)).Forecast(ctx, req)

			Convey("Then the mean tier should answer", func() {
				So(err, ShouldBeNil)
				So(learned.calls, ShouldEqual, 1)
				So(res.Model, ShouldEqual, forecast.TagMean)
				So(res.Predictions, ShouldResemble, []float64{19.5, 19.5})
			})
		})

		Convey("When inference returns the wrong number of values", func() {
			learned := &stubEstimator{preds: []float64{1, 2, 3}}
			res, err := service.New(service.WithLearned(learned)).Forecast(ctx, req)

			Convey("Then it should count as an inference failure", func() {
				So(err, ShouldBeNil)
				So(res.Model, ShouldEqual, forecast.TagMean)
				So(errors.Is(res.Attempts[0].Err, forecast.ErrInferenceFailure), ShouldBeTrue)
			})
		})

		Convey("When the learned tier fails with an unexpected error", func() {
			boom := errors.New("index out of range")
			learned := &stubEstimator{err: boom}
			_, err := service.New(service.WithLearned(learned)).Forecast(ctx, req)

			Convey("Then the error should propagate", func() {
				So(errors.Is(err, boom), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "STUB tier")
			})
		})

		Convey("When the learned tier succeeds", func() {
			learned := &stubEstimator{preds: []float64{7, 8}}
			res, err := service.New(service.WithLearned(learned)).Forecast(ctx, req)

			Convey("Then its tag and values should be returned", func() {
				So(err, ShouldBeNil)
				So(res.Model, ShouldEqual, "STUB")
				So(res.Predictions, ShouldResemble, []float64{7, 8})
			})
		})

		Convey("When the mean tier fails with an unexpected error", func() {
			mean := &stubEstimator{err: errors.New("broken")}
			learned := &stubEstimator{err: forecast.ErrInferenceFailure}
			_, err := service.New(service.WithLearned(learned), service.WithMean(mean)).Forecast(ctx, req)

			So(err, ShouldNotBeNil)
		})
	})
}

func TestService_Metrics(t *testing.T) {
	Convey("Given a service with metrics", t, func() {
		mgr := metrics.NewManager()
		svc := service.New(
			service.WithLearned(&stubEstimator{err: forecast.ErrTrainingFailure}),
			service.WithMetrics(mgr),
		)

		_, err := svc.Forecast(context.Background(), model.Request{
			HistoricalData: daily(15, func(int) any { return json.Number("3") }),
		})
		So(err, ShouldBeNil)

		Convey("Then the fallback and the producing tier should be counted", func() {
			count, gatherErr := testutil.GatherAndCount(mgr.Registry(),
				"revforecast_worker_forecasts_total",
				"revforecast_worker_fallbacks_total",
				"revforecast_worker_history_length")
			So(gatherErr, ShouldBeNil)
			So(count, ShouldEqual, 3)
		})
	})
}

func TestService_Defaults(t *testing.T) {
	Convey("Given a service with default options", t, func() {
		svc := service.New()

		Convey("Then it should be created with the learned tier", func() {
			So(svc, ShouldNotBeNil)
			res, err := svc.Forecast(context.Background(), model.Request{
				HistoricalData: records(json.Number("4"), json.Number("6")),
				Horizon:        horizon(1),
			})
			So(err, ShouldBeNil)
			So(res.Model, ShouldEqual, forecast.TagMean)
			So(res.Attempts[0].Model, ShouldEqual, forecast.TagNHITS)
			So(res.Predictions, ShouldResemble, []float64{5})
		})
	})
}
