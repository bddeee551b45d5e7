package servecmder

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/finvisor/finvisor/pkg/config"
	"github.com/finvisor/finvisor/pkg/ratelimit"
)

var _ = Describe("Serve Command", func() {
	Describe("flags", func() {
		It("overrides listen and debug", func() {
			c := &serveCommander{listen: ":9999", debug: true}
			cfg := config.Default()

			c.override(cfg)
			Expect(cfg.Server.Listen).To(Equal(":9999"))
			Expect(cfg.Server.Debug).To(BeTrue())
		})

		It("leaves the config alone without flags", func() {
			cfg := config.Default()
			(&serveCommander{}).override(cfg)
			Expect(cfg.Server.Listen).To(Equal(":8080"))
			Expect(cfg.Server.Debug).To(BeFalse())
		})
	})

	Describe("reload", func() {
		It("swaps the log level and rate limits", func() {
			level := zap.NewAtomicLevelAt(zap.InfoLevel)
			limiter := ratelimit.New(0, 0)

			cfg := config.Default()
			cfg.Server.Debug = true
			cfg.RateLimit.RequestsPerSecond = 0.001
			cfg.RateLimit.Burst = 1

			reload(level, limiter, cfg)
			Expect(level.Level()).To(Equal(zap.DebugLevel))
			Expect(limiter.Allow("client")).To(BeTrue())
			Expect(limiter.Allow("client")).To(BeFalse())

			cfg.Server.Debug = false
			cfg.RateLimit.RequestsPerSecond = 0
			reload(level, limiter, cfg)
			Expect(level.Level()).To(Equal(zap.InfoLevel))
			Expect(limiter.Allow("client")).To(BeTrue())
		})
	})

	It("fails on an invalid config file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "finvisor.toml")
		Expect(os.WriteFile(path, []byte("[storage]\ndriver = \"floppy\"\n"), 0o600)).To(Succeed())

		cmd := NewServeCmd()
		cmd.SetArgs([]string{"--config", path})
		Expect(cmd.Execute()).To(MatchError(ContainSubstring("unknown storage driver")))
	})
})
