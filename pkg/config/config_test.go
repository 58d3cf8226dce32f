package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/wenshu/pkg/config"
	"github.com/papercomputeco/wenshu/pkg/dify"
	"github.com/papercomputeco/wenshu/pkg/logger"
)

var _ = Describe("Configer config", func() {
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	Describe("LoadConfig", func() {
		It("returns default config when no config file exists", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg).To(Equal(config.NewDefaultConfig()))
		})

		It("loads a valid config file and fills the rest with defaults", func() {
			data := `version = 0

[dify]
base_url = "http://dify.internal/v1"
timeout_seconds = 60

[retry]
max_attempts = 5

[storage]
sqlite_path = "/var/lib/wenshu/wenshu.db"
`
			Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Dify.BaseURL).To(Equal("http://dify.internal/v1"))
			Expect(cfg.Dify.TimeoutSeconds).To(Equal(uint(60)))
			Expect(cfg.Retry.MaxAttempts).To(Equal(uint(5)))
			Expect(cfg.Storage.SQLitePath).To(Equal("/var/lib/wenshu/wenshu.db"))

			defaults := config.NewDefaultConfig()
			Expect(cfg.Dify.User).To(Equal(defaults.Dify.User))
			Expect(cfg.Dify.MaxConnsPerHost).To(Equal(defaults.Dify.MaxConnsPerHost))
			Expect(cfg.Retry.DelayMS).To(Equal(defaults.Retry.DelayMS))
			Expect(cfg.Proxy.Listen).To(Equal(defaults.Proxy.Listen))
			Expect(cfg.EventStream.Provider).To(Equal(config.EventStreamNone))
		})

		It("rejects an unsupported version", func() {
			Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("version = 9\n"), 0o600)).To(Succeed())

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			_, err = c.LoadConfig()
			Expect(err).To(MatchError(ContainSubstring("unsupported config version")))
		})

		It("rejects invalid TOML", func() {
			Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("[dify\n"), 0o600)).To(Succeed())

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			_, err = c.LoadConfig()
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("SaveConfig", func() {
		It("round trips through config.toml", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg := config.NewDefaultConfig()
			cfg.Dify.AppName = "legal-qa"
			cfg.EventStream.Brokers = "k1:9092,k2:9092"
			Expect(c.SaveConfig(cfg)).To(Succeed())

			loaded, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(cfg))
		})

		It("rejects nil configs", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.SaveConfig(nil)).NotTo(Succeed())
		})
	})

	Describe("SetConfigValue and GetConfigValue", func() {
		It("sets and reads string keys", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(c.SetConfigValue("dify.base_url", "http://localhost/v1")).To(Succeed())

			v, err := c.GetConfigValue("dify.base_url")
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal("http://localhost/v1"))
		})

		It("parses numeric and boolean keys", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(c.SetConfigValue("retry.delay_ms", "250")).To(Succeed())
			Expect(c.SetConfigValue("log.json", "true")).To(Succeed())

			v, err := c.GetConfigValue("retry.delay_ms")
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal("250"))

			v, err = c.GetConfigValue("log.json")
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal("true"))
		})

		It("rejects malformed values", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(c.SetConfigValue("retry.max_attempts", "many")).To(MatchError(ContainSubstring("retry.max_attempts")))
			Expect(c.SetConfigValue("log.json", "sometimes")).NotTo(Succeed())
		})

		It("rejects unknown keys", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(c.SetConfigValue("proxy.upstream", "x")).To(MatchError(ContainSubstring("unknown config key")))
			_, err = c.GetConfigValue("nope")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ValidConfigKeys", func() {
		It("lists every key once, starting with the dify section", func() {
			keys := config.ValidConfigKeys()
			Expect(keys[0]).To(Equal("dify.base_url"))
			Expect(keys).To(ContainElements("retry.max_attempts", "storage.postgres_dsn", "eventstream.brokers", "log.json"))

			seen := map[string]bool{}
			for _, k := range keys {
				Expect(seen[k]).To(BeFalse(), k)
				seen[k] = true
				Expect(config.IsValidConfigKey(k)).To(BeTrue())
			}
		})
	})
})

var _ = Describe("PresetConfig", func() {
	It("builds every named preset", func() {
		for _, name := range config.ValidPresetNames() {
			cfg, err := config.PresetConfig(name)
			Expect(err).NotTo(HaveOccurred(), name)
			Expect(cfg.Dify.BaseURL).NotTo(BeEmpty())
		}
	})

	It("wires postgres and kafka in the postgres preset", func() {
		cfg, err := config.PresetConfig("postgres")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Storage.PostgresDSN).To(HavePrefix("postgres://"))
		Expect(cfg.EventStream.Provider).To(Equal(config.EventStreamKafka))
	})

	It("rejects unknown presets", func() {
		_, err := config.PresetConfig("openai")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("conversions", func() {
	It("builds the upstream client configuration", func() {
		cfg := config.NewDefaultConfig()
		dc := cfg.DifyClient("app-key")

		Expect(dc.APIKey).To(Equal("app-key"))
		Expect(dc.BaseURL).To(Equal(cfg.Dify.BaseURL))
		Expect(dc.Timeout).To(Equal(30 * time.Second))
		Expect(dc.MaxConns).To(Equal(100))
		Expect(dc.MaxConnsPerHost).To(Equal(10))
		Expect(dc.Retry.MaxAttempts).To(Equal(3))
		Expect(dc.Retry.Delay).To(Equal(time.Second))
	})

	It("splits the broker list", func() {
		es := config.EventStreamConfig{Brokers: " k1:9092, ,k2:9092 "}
		Expect(es.BrokerList()).To(Equal([]string{"k1:9092", "k2:9092"}))
	})
})

var _ = Describe("InitViper", func() {
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	It("returns viper with defaults when no config file exists", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		Expect(config.FromViper(v)).To(Equal(config.NewDefaultConfig()))
	})

	It("reads config file values over defaults", func() {
		data := `[dify]
base_url = "http://dify.internal/v1"
`
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		Expect(v.GetString("dify.base_url")).To(Equal("http://dify.internal/v1"))
		// Unset fields should still get defaults
		Expect(v.GetString("proxy.listen")).To(Equal(config.NewDefaultConfig().Proxy.Listen))
	})

	It("env vars take precedence over config file values", func() {
		data := `[retry]
max_attempts = 2
`
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())

		GinkgoT().Setenv("WENSHU_RETRY_MAX_ATTEMPTS", "7")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		Expect(config.FromViper(v).Retry.MaxAttempts).To(Equal(uint(7)))
	})
})

var _ = Describe("WatchRetry", func() {
	var (
		tmpDir string
		mu     sync.Mutex
		seen   []dify.RetryConfig
	)

	applied := func() []dify.RetryConfig {
		mu.Lock()
		defer mu.Unlock()
		return append([]dify.RetryConfig(nil), seen...)
	}

	record := func(r dify.RetryConfig) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, r)
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		seen = nil
	})

	It("applies the new retry budget when the config file is rewritten", func() {
		path := filepath.Join(tmpDir, "config.toml")
		Expect(os.WriteFile(path, []byte("[retry]\nmax_attempts = 2\ndelay_ms = 100\n"), 0o600)).To(Succeed())

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(config.FromViper(v).Retry.MaxAttempts).To(Equal(uint(2)))

		config.WatchRetry(v, logger.Nop(), record)

		Expect(os.WriteFile(path, []byte("[retry]\nmax_attempts = 6\ndelay_ms = 250\n"), 0o600)).To(Succeed())

		Eventually(applied, 5*time.Second, 20*time.Millisecond).Should(ContainElement(dify.RetryConfig{
			MaxAttempts: 6,
			Delay:       250 * time.Millisecond,
		}))
	})

	It("does nothing when no config file was read", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		config.WatchRetry(v, logger.Nop(), record)

		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("[retry]\nmax_attempts = 9\n"), 0o600)).To(Succeed())
		Consistently(applied, 300*time.Millisecond).Should(BeEmpty())
	})
})

var _ = Describe("BindFlags", func() {
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	It("binds cobra flags to viper keys via registry", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		fs := config.FlagSet{
			config.FlagAPIListenStandalone: {Name: "listen", Shorthand: "l", ViperKey: "api.listen", Description: "Address for API server to listen on"},
		}

		cmd := &cobra.Command{Use: "test"}
		var listen string
		config.AddStringFlag(cmd, fs, config.FlagAPIListenStandalone, &listen)

		// Simulate flag being set by user
		Expect(cmd.Flags().Set("listen", ":7777")).To(Succeed())

		config.BindRegisteredFlags(v, cmd, fs, []string{config.FlagAPIListenStandalone})

		Expect(v.GetString("api.listen")).To(Equal(":7777"))
	})

	It("falls through to config when flag not set", func() {
		data := `[api]
listen = ":5555"
`
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		fs := config.FlagSet{
			config.FlagAPIListenStandalone: {Name: "listen", Shorthand: "l", ViperKey: "api.listen", Description: "Address for API server to listen on"},
		}

		cmd := &cobra.Command{Use: "test"}
		var listen string
		config.AddStringFlag(cmd, fs, config.FlagAPIListenStandalone, &listen)

		// Do NOT set the flag -- should fall through to config file value
		config.BindRegisteredFlags(v, cmd, fs, []string{config.FlagAPIListenStandalone})

		Expect(v.GetString("api.listen")).To(Equal(":5555"))
	})

	It("AddStringFlag pulls name, shorthand, and default from FlagSet", func() {
		fs := config.FlagSet{
			config.FlagDifyURL: {Name: "dify-url", Shorthand: "u", ViperKey: "dify.base_url", Description: "Dify API base URL"},
		}

		cmd := &cobra.Command{Use: "test"}
		var target string
		config.AddStringFlag(cmd, fs, config.FlagDifyURL, &target)

		f := cmd.Flags().Lookup("dify-url")
		Expect(f).NotTo(BeNil())
		Expect(f.Shorthand).To(Equal("u"))
		Expect(f.DefValue).To(Equal(config.NewDefaultConfig().Dify.BaseURL))
	})

	It("AddUintFlag defaults to the configured retry attempts", func() {
		fs := config.FlagSet{
			config.FlagRetryAttempts: {Name: "retry-attempts", ViperKey: "retry.max_attempts", Description: "Upstream attempts per call"},
		}

		cmd := &cobra.Command{Use: "test"}
		var n uint
		config.AddUintFlag(cmd, fs, config.FlagRetryAttempts, &n)

		f := cmd.Flags().Lookup("retry-attempts")
		Expect(f).NotTo(BeNil())
		Expect(f.DefValue).To(Equal("3"))
	})

	It("AddBoolFlag binds log.json", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		fs := config.FlagSet{
			config.FlagLogJSON: {Name: "log-json", ViperKey: "log.json", Description: "JSON logs"},
		}

		cmd := &cobra.Command{Use: "test"}
		var on bool
		config.AddBoolFlag(cmd, fs, config.FlagLogJSON, &on)
		Expect(cmd.Flags().Lookup("log-json").DefValue).To(Equal("false"))

		Expect(cmd.Flags().Set("log-json", "true")).To(Succeed())
		config.BindRegisteredFlags(v, cmd, fs, []string{config.FlagLogJSON})

		Expect(config.FromViper(v).Log.JSON).To(BeTrue())
	})

	It("ignores keys missing from the FlagSet", func() {
		cmd := &cobra.Command{Use: "test"}
		config.AddStringFlag(cmd, config.FlagSet{}, config.FlagSQLite, new(string))
		config.AddBoolFlag(cmd, config.FlagSet{}, config.FlagLogJSON, new(bool))

		Expect(cmd.Flags().HasFlags()).To(BeFalse())
	})
})
