package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/okian/lanscore/internal/adapters/http/api"
	"github.com/okian/lanscore/internal/adapters/http/swagger"
	service "github.com/okian/lanscore/internal/app"
	"github.com/okian/lanscore/internal/config"
	"github.com/okian/lanscore/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When configuration comes from the environment", func() {
			_ = os.Setenv("LANSCORE_ADDR", ":8181")
			_ = os.Setenv("LANSCORE_SLOT_WIDTH_MINUTES", "5")
			_ = os.Setenv("LANSCORE_NOTIFY_WORKER_COUNT", "3")
			defer func() {
				_ = os.Unsetenv("LANSCORE_ADDR")
				_ = os.Unsetenv("LANSCORE_SLOT_WIDTH_MINUTES")
				_ = os.Unsetenv("LANSCORE_NOTIFY_WORKER_COUNT")
			}()

			convey.Convey("Then it should be loadable", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8181")
				convey.So(cfg.SlotWidthMinutes, convey.ShouldEqual, 5)
				convey.So(cfg.NotifyWorkerCount, convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When the configuration is invalid", func() {
			_ = os.Setenv("LANSCORE_AWARD_THRESHOLD", "1.5")
			defer func() { _ = os.Unsetenv("LANSCORE_AWARD_THRESHOLD") }()

			convey.Convey("Then loading should fail", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When building the HTTP server", func() {
			srv := newHTTPServer(":0", http.NewServeMux())

			convey.Convey("Then the timeouts should be set", func() {
				convey.So(srv.ReadTimeout, convey.ShouldEqual, readTimeout)
				convey.So(srv.WriteTimeout, convey.ShouldEqual, writeTimeout)
				convey.So(srv.IdleTimeout, convey.ShouldEqual, idleTimeout)
				convey.So(srv.ReadHeaderTimeout, convey.ShouldEqual, readHeaderTimeout)
			})
		})
	})
}

func TestMainApplicationComponents(t *testing.T) {
	convey.Convey("Given main application components", t, func() {
		convey.Convey("When the system metrics updater runs until its context ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
		})

		convey.Convey("When the service metrics updater runs on an idle service", func() {
			svc := service.New(nil)
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			convey.So(func() { startServiceMetricsUpdater(ctx, svc) }, convey.ShouldNotPanic)
			convey.So(func() { updateServiceMetrics(svc) }, convey.ShouldNotPanic)
			convey.So(func() { updateSystemMetrics() }, convey.ShouldNotPanic)
		})
	})
}

func TestMainApplicationRoutes(t *testing.T) {
	convey.Convey("Given the routes wired the way main wires them", t, func() {
		ctx := context.Background()
		cfg := config.New()
		svc := service.New(cfg)

		mux := http.NewServeMux()
		swagger.Register(ctx, mux)
		api.NewServer(svc, svc.LiveHandler(), cfg.MaxLeaderboardLimit).Register(ctx, mux)

		get := func(path string) int {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			return rec.Code
		}

		convey.Convey("Then the documentation should be served", func() {
			convey.So(get("/openapi.yaml"), convey.ShouldEqual, http.StatusOK)
		})

		convey.Convey("Then metrics should be served", func() {
			convey.So(get("/metrics"), convey.ShouldEqual, http.StatusOK)
		})

		convey.Convey("Then health should report the stopped service", func() {
			convey.So(get("/healthz"), convey.ShouldEqual, http.StatusServiceUnavailable)
		})

		convey.Convey("Then the live feed should be unavailable before start", func() {
			convey.So(get("/live"), convey.ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}
