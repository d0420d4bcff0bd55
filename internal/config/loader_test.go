package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/revforecast/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx, "")

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Model, convey.ShouldEqual, config.ModelNHITS)
				convey.So(cfg.LogLevel, convey.ShouldEqual, "info")
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("REVFORECAST_MODEL", "ses")
			_ = os.Setenv("REVFORECAST_MAX_STEPS", "25")
			_ = os.Setenv("REVFORECAST_HIDDEN_UNITS", "32")
			_ = os.Setenv("REVFORECAST_RANDOM_SEED", "7")
			_ = os.Setenv("REVFORECAST_LOG_LEVEL", "debug")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx, "")

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Model, convey.ShouldEqual, config.ModelSmoothing)
				convey.So(cfg.MaxSteps, convey.ShouldEqual, 25)
				convey.So(cfg.HiddenUnits, convey.ShouldEqual, 32)
				convey.So(cfg.RandomSeed, convey.ShouldEqual, int64(7))
				convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
log_format: json
model: nhits
max_steps: 40
windows_batch_size: 16
metrics_textfile: /tmp/revforecast.prom
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			cfg, err := config.Load(ctx, tmpFile)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.LogFormat, convey.ShouldEqual, "json")
				convey.So(cfg.MaxSteps, convey.ShouldEqual, 40)
				convey.So(cfg.WindowsBatchSize, convey.ShouldEqual, 16)
				convey.So(cfg.MetricsTextfile, convey.ShouldEqual, "/tmp/revforecast.prom")
			})
		})

		convey.Convey("When the file comes from REVFORECAST_CONFIG and env also overrides", func() {
			tmpFile := createTempConfigFile("max_steps: 40\nhidden_units: 64\n")
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("REVFORECAST_CONFIG", tmpFile)
			_ = os.Setenv("REVFORECAST_MAX_STEPS", "10")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx, "")

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.MaxSteps, convey.ShouldEqual, 10)    // Overridden by env
				convey.So(cfg.HiddenUnits, convey.ShouldEqual, 64) // From file
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			cfg, err := config.Load(ctx, tmpFile)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			cfg, err := config.Load(ctx, "/non/existent/file.yaml")

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When metrics labels come from the YAML file", func() {
			tmpFile := createTempConfigFile("metrics_labels:\n  env: prod\n  site: eu_1\n")
			defer func() { _ = os.Remove(tmpFile) }()

			cfg, err := config.Load(ctx, tmpFile)

			convey.Convey("Then they should be loaded as a map", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.MetricsLabels, convey.ShouldResemble, map[string]string{"env": "prod", "site": "eu_1"})
			})
		})

		convey.Convey("When a metrics label clashes with a metric's own label", func() {
			tmpFile := createTempConfigFile("metrics_labels:\n  model: x\n")
			defer func() { _ = os.Remove(tmpFile) }()

			cfg, err := config.Load(ctx, tmpFile)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "metrics_labels")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When a metrics label name is not a valid label", func() {
			tmpFile := createTempConfigFile("metrics_labels:\n  bad-name: x\n")
			defer func() { _ = os.Remove(tmpFile) }()

			_, err := config.Load(ctx, tmpFile)

			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When loading config with an unknown model", func() {
			_ = os.Setenv("REVFORECAST_MODEL", "prophet")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx, "")

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "prophet")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with negative overrides", func() {
			_ = os.Setenv("REVFORECAST_MAX_STEPS", "-1")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx, "")

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("REVFORECAST_MAX_STEPS", "not_a_number")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx, "")

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the model name has odd casing", func() {
			_ = os.Setenv("REVFORECAST_MODEL", " SES ")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx, "")

			convey.Convey("Then it should be normalised", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Model, convey.ShouldEqual, config.ModelSmoothing)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"REVFORECAST_CONFIG",
		"REVFORECAST_LOG_LEVEL",
		"REVFORECAST_LOG_FORMAT",
		"REVFORECAST_MODEL",
		"REVFORECAST_MAX_STEPS",
		"REVFORECAST_HIDDEN_UNITS",
		"REVFORECAST_WINDOWS_BATCH_SIZE",
		"REVFORECAST_RANDOM_SEED",
		"REVFORECAST_METRICS_TEXTFILE",
		"REVFORECAST_PUSHGATEWAY_URL",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "revforecast-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
