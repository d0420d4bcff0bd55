package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

type result struct {
	code   int
	stdout string
	stderr string
}

func execute(stdin string, args ...string) result {
	var stdout, stderr bytes.Buffer
	code := Execute(strings.NewReader(stdin), &stdout, &stderr, args)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func history(days int) string {
	recs := make([]string, days)
	for i := range recs {
		recs[i] = fmt.Sprintf(`{"date":"2024-02-%02d","revenue":%d}`, i+1, 200+i%7*10)
	}
	return `{"historical_data":[` + strings.Join(recs, ",") + `],"horizon":4}`
}

const shortHistory = `{"historical_data":[
	{"date":"2024-01-01","revenue":100},
	{"date":"2024-01-02","revenue":110},
	{"date":"2024-01-03","revenue":90},
	{"date":"2024-01-04","revenue":105},
	{"date":"2024-01-05","revenue":95}
],"horizon":3}`

func TestForecastCommand(t *testing.T) {
	Convey("Given the revforecast command line", t, func() {
		t.Setenv("REVFORECAST_CONFIG", "")

		Convey("When run without a subcommand", func() {
			r := execute(shortHistory)

			Convey("Then it should forecast and exit zero", func() {
				So(r.code, ShouldEqual, 0)
				So(r.stdout, ShouldEqual, `{"success":true,"predictions":[100,100,100],"model":"MEAN"}`+"\n")
				So(r.stderr, ShouldContainSubstring, "run_id=")
			})
		})

		Convey("When run as the forecast subcommand", func() {
			r := execute(shortHistory, "forecast")

			So(r.code, ShouldEqual, 0)
			So(r.stdout, ShouldContainSubstring, `"model":"MEAN"`)
		})

		Convey("When stdin is empty", func() {
			r := execute("")

			Convey("Then it should answer with a failure and exit one", func() {
				So(r.code, ShouldEqual, 1)
				So(r.stdout, ShouldEqual, `{"success":false,"error":"EmptyInput: no input data provided","predictions":[]}`+"\n")
				So(r.stderr, ShouldContainSubstring, "[forecast error] EmptyInput")
			})
		})

		Convey("When the smoothing tier is selected", func() {
			r := execute(history(21), "--model", "SES")

			Convey("Then it should produce the forecast", func() {
				So(r.code, ShouldEqual, 0)
				var resp map[string]any
				So(json.Unmarshal([]byte(r.stdout), &resp), ShouldBeNil)
				So(resp["model"], ShouldEqual, "SES")
				So(resp["predictions"], ShouldHaveLength, 4)
			})
		})

		Convey("When the model override is unknown", func() {
			r := execute(shortHistory, "--model", "arima")

			Convey("Then stdout should still carry a JSON failure", func() {
				So(r.code, ShouldEqual, 1)
				So(r.stdout, ShouldStartWith, `{"success":false,"error":"InternalError: `)
				So(r.stdout, ShouldContainSubstring, `"predictions":[]`)
				So(r.stderr, ShouldContainSubstring, "arima")
			})
		})

		Convey("When debug logging and a metrics textfile are configured", func() {
			dir := t.TempDir()
			cfgPath := filepath.Join(dir, "revforecast.yaml")
			promPath := filepath.Join(dir, "revforecast.prom")
			So(os.WriteFile(cfgPath, []byte("log_level: debug\nlog_format: json\nmax_steps: 5\nhidden_units: 8\nmetrics_labels:\n  env: test\n"), 0o600), ShouldBeNil)
			t.Setenv("REVFORECAST_METRICS_TEXTFILE", promPath)

			r := execute(history(20), "--config", cfgPath)

			Convey("Then the learned tier should answer and metrics should be written", func() {
				So(r.code, ShouldEqual, 0)
				So(r.stdout, ShouldContainSubstring, `"model":"NHITS"`)
				So(r.stderr, ShouldContainSubstring, `"msg":"model trained"`)
				data, err := os.ReadFile(promPath)
				So(err, ShouldBeNil)
				So(string(data), ShouldContainSubstring, `revforecast_worker_forecasts_total{env="test",model="NHITS"} 1`)
			})
		})
	})
}

func TestVersionCommand(t *testing.T) {
	Convey("Given the version subcommand", t, func() {
		r := execute("", "version")

		Convey("Then it should print build information", func() {
			So(r.code, ShouldEqual, 0)
			So(r.stdout, ShouldStartWith, "revforecast version dev\n")
			So(r.stdout, ShouldContainSubstring, "Git commit: unknown")
		})
	})
}
