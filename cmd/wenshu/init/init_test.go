package initcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	initcmder "github.com/papercomputeco/wenshu/cmd/wenshu/init"
	"github.com/papercomputeco/wenshu/pkg/config"
)

var _ = Describe("NewInitCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := initcmder.NewInitCmd()
		Expect(cmd.Use).To(Equal("init"))
	})

	It("rejects any arguments", func() {
		cmd := initcmder.NewInitCmd()
		Expect(cmd.Args(cmd, []string{"extra"})).To(HaveOccurred())
	})

	It("has a --preset flag", func() {
		cmd := initcmder.NewInitCmd()
		f := cmd.Flags().Lookup("preset")
		Expect(f).NotTo(BeNil())
		Expect(f.DefValue).To(Equal(""))
	})
})

var _ = Describe("Init command execution", func() {
	var (
		tmpDir  string
		origDir string
		out     *bytes.Buffer
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()

		var err error
		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(tmpDir)).To(Succeed())

		out = &bytes.Buffer{}
	})

	AfterEach(func() {
		Expect(os.Chdir(origDir)).To(Succeed())
	})

	It("creates the .wenshu directory", func() {
		cmd := initcmder.NewInitCmd()
		cmd.SetOut(out)
		cmd.SetArgs([]string{})
		Expect(cmd.Execute()).To(Succeed())

		info, err := os.Stat(filepath.Join(tmpDir, ".wenshu"))
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsDir()).To(BeTrue())
		Expect(out.String()).To(ContainSubstring("Initialized"))
	})

	It("is idempotent", func() {
		Expect(os.Mkdir(filepath.Join(tmpDir, ".wenshu"), 0o755)).To(Succeed())

		cmd := initcmder.NewInitCmd()
		cmd.SetOut(out)
		cmd.SetArgs([]string{})
		Expect(cmd.Execute()).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Already initialized"))
	})

	It("writes a preset config", func() {
		cmd := initcmder.NewInitCmd()
		cmd.SetOut(out)
		cmd.SetArgs([]string{"--preset", "postgres"})
		Expect(cmd.Execute()).To(Succeed())

		data, err := os.ReadFile(filepath.Join(tmpDir, ".wenshu", "config.toml"))
		Expect(err).NotTo(HaveOccurred())

		var cfg config.Config
		_, err = toml.Decode(string(data), &cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Storage.PostgresDSN).To(HavePrefix("postgres://"))
		Expect(cfg.EventStream.Provider).To(Equal(config.EventStreamKafka))
	})

	It("rejects unknown presets before touching the filesystem", func() {
		cmd := initcmder.NewInitCmd()
		cmd.SetOut(out)
		cmd.SetArgs([]string{"--preset", "mainframe"})
		Expect(cmd.Execute()).To(MatchError(ContainSubstring("unknown preset")))

		_, err := os.Stat(filepath.Join(tmpDir, ".wenshu"))
		Expect(os.IsNotExist(err)).To(BeTrue())
	})
})
