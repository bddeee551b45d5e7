package config_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/finvisor/finvisor/pkg/config"
	"github.com/finvisor/finvisor/pkg/paramstore"
)

func envOf(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

const sampleTOML = `
[server]
listen = ":9090"
debug = true

[storage]
driver = "sqlite"
path = "/tmp/finvisor.db"

[rate_limit]
requests_per_second = 2.5
burst = 4

[openai]
api_key = "sk-file"

[decagon]
api_key = "dec-file"
bot_id = "finnie"

[zoom]
mode = "oauth"
account_id = "acct"
`

var _ = Describe("Load", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	writeConfig := func(body string) string {
		path := filepath.Join(dir, "finvisor.toml")
		Expect(os.WriteFile(path, []byte(body), 0o600)).To(Succeed())
		return path
	}

	It("returns defaults without a file", func() {
		cfg, err := config.LoadWithEnv("", envOf(nil))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Server.Listen).To(Equal(":8080"))
		Expect(cfg.Storage.Driver).To(Equal(config.StorageMemory))
		Expect(cfg.Zoom.Mode).To(Equal(config.ZoomDemo))
		Expect(cfg.Configured(config.OpenAI)).To(BeFalse())
	})

	It("decodes the TOML file", func() {
		cfg, err := config.LoadWithEnv(writeConfig(sampleTOML), envOf(nil))
		Expect(err).NotTo(HaveOccurred())

		Expect(cfg.Server.Listen).To(Equal(":9090"))
		Expect(cfg.Server.Debug).To(BeTrue())
		Expect(cfg.Storage.Path).To(Equal("/tmp/finvisor.db"))
		Expect(cfg.RateLimit.RequestsPerSecond).To(Equal(2.5))
		Expect(cfg.RateLimit.Burst).To(Equal(4))
		Expect(cfg.Decagon.BotID).To(Equal("finnie"))
		Expect(cfg.Zoom.Mode).To(Equal(config.ZoomOAuth))
		Expect(cfg.Configured(config.OpenAI)).To(BeTrue())
		Expect(cfg.Configured(config.Anthropic)).To(BeFalse())
	})

	It("lets the environment override the file", func() {
		cfg, err := config.LoadWithEnv(writeConfig(sampleTOML), envOf(map[string]string{
			"OPENAI_API_KEY":          "sk-env",
			"MODAL_TOKEN_ID":          "ak-1",
			"MODAL_TOKEN_SECRET":      "as-2",
			"FINVISOR_DEBUG":          "false",
			"FINVISOR_RATE_LIMIT_RPS": "10",
			"FINVISOR_LISTEN":         "  ",
		}))
		Expect(err).NotTo(HaveOccurred())

		Expect(cfg.OpenAI.APIKey).To(Equal("sk-env"))
		Expect(cfg.Server.Debug).To(BeFalse())
		Expect(cfg.Server.Listen).To(Equal(":9090"))
		Expect(cfg.RateLimit.RequestsPerSecond).To(Equal(10.0))
		Expect(cfg.Configured(config.Modal)).To(BeTrue())

		keys, err := cfg.Keys(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(keys.For(config.Modal).Resolve(context.Background())).To(Equal("ak-1:as-2"))
		Expect(keys.For(config.OpenAI).Resolve(context.Background())).To(Equal("sk-env"))
	})

	It("treats every provider as configured under an SSM prefix", func() {
		cfg, err := config.LoadWithEnv("", envOf(map[string]string{"FINVISOR_SSM_PREFIX": "/finvisor"}))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Configured(config.Perplexity)).To(BeTrue())

		keys := config.NewKeys(paramstore.Static{"/finvisor/perplexity-api-key": "pplx"}, cfg.Secrets.SSMPrefix)
		Expect(keys.For(config.Perplexity).Resolve(context.Background())).To(Equal("pplx"))
	})

	It("rejects bad values", func() {
		_, err := config.LoadWithEnv("", envOf(map[string]string{"FINVISOR_STORAGE_DRIVER": "postgres"}))
		Expect(err).To(MatchError(ContainSubstring("unknown storage driver")))

		_, err = config.LoadWithEnv("", envOf(map[string]string{"FINVISOR_DEBUG": "maybe"}))
		Expect(err).To(MatchError(ContainSubstring("FINVISOR_DEBUG")))

		_, err = config.LoadWithEnv(writeConfig("[storage]\ndriver = \"sqlite\"\n"), envOf(nil))
		Expect(err).To(MatchError(ContainSubstring("storage.path")))

		_, err = config.LoadWithEnv(writeConfig("[server]\nmax_body_bytes = -1\n"), envOf(nil))
		Expect(err).To(MatchError(ContainSubstring("max_body_bytes")))
	})

	It("redacts secrets", func() {
		cfg, err := config.LoadWithEnv(writeConfig(sampleTOML), envOf(nil))
		Expect(err).NotTo(HaveOccurred())

		red := cfg.Redacted()
		Expect(red.OpenAI.APIKey).To(Equal("****"))
		Expect(red.Anthropic.APIKey).To(BeEmpty())
		Expect(cfg.OpenAI.APIKey).To(Equal("sk-file"))
	})
})

var _ = Describe("Watch", func() {
	It("reloads the file after a write", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "finvisor.toml")
		Expect(os.WriteFile(path, []byte("[rate_limit]\nburst = 1\n"), 0o600)).To(Succeed())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		changes := make(chan *config.Config, 4)
		done := make(chan error, 1)
		go func() {
			done <- config.Watch(ctx, path, zap.NewNop(), func(c *config.Config) { changes <- c })
		}()

		// Give the watcher a moment to register before writing.
		time.Sleep(100 * time.Millisecond)
		Expect(os.WriteFile(path, []byte("[rate_limit]\nburst = 9\n"), 0o600)).To(Succeed())

		var got *config.Config
		Eventually(changes, 5*time.Second).Should(Receive(&got))
		Expect(got.RateLimit.Burst).To(Equal(9))

		cancel()
		Eventually(done, time.Second).Should(Receive(BeNil()))
	})
})
