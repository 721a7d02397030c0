package acceptance_test

import (
	"encoding/json"
	"os"
	"os/exec"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/Priivacy-ai/spec-kitty-sub005/internal/kerrors"
)

func decodeEnvelope(output string) kerrors.Envelope {
	var env kerrors.Envelope
	Expect(json.Unmarshal([]byte(output), &env)).To(Succeed(), "output was: %s", output)
	return env
}

var _ = Describe("feature lifecycle", func() {
	var repoDir, tmpDir string

	BeforeEach(func() {
		repoDir = initTestRepo()
		tmpDir = repoDir
	})

	AfterEach(func() {
		cleanupTestRepo(repoDir, tmpDir)
	})

	It("carries a work package from creation through validation", func() {
		out, err := runKittify(repoDir, "create-feature", "001-acceptance", "--title", "Acceptance Feature", "--json")
		Expect(err).NotTo(HaveOccurred(), out)
		env := decodeEnvelope(out)
		Expect(env.Success).To(BeTrue())

		out, err = runKittify(repoDir, "setup-plan", "001-acceptance",
			"--wp", "WP01:First Task",
			"--wp", "WP02:Second Task:WP01",
			"--json")
		Expect(err).NotTo(HaveOccurred(), out)
		Expect(decodeEnvelope(out).Success).To(BeTrue())

		out, err = runKittify(repoDir, "finalize-tasks", "001-acceptance", "--json")
		Expect(err).NotTo(HaveOccurred(), out)
		env = decodeEnvelope(out)
		Expect(env.Success).To(BeTrue())

		out, err = runKittify(repoDir, "move-task", "001-acceptance", "WP01", "--to", "claimed", "--actor", "ada", "--json")
		Expect(err).NotTo(HaveOccurred(), out)
		Expect(decodeEnvelope(out).Success).To(BeTrue())

		out, err = runKittify(repoDir, "move-task", "001-acceptance", "WP01", "--to", "doing", "--actor", "ada", "--workspace-context", "ws-1", "--json")
		Expect(err).NotTo(HaveOccurred(), out)
		env = decodeEnvelope(out)
		Expect(env.Success).To(BeTrue())
		Expect(env.Data["to"]).To(Equal("in_progress"))

		out, err = runKittify(repoDir, "validate", "001-acceptance", "--json")
		Expect(err).NotTo(HaveOccurred(), out)
		Expect(decodeEnvelope(out).Success).To(BeTrue())
	})

	It("rejects an illegal lane jump with a validation error envelope", func() {
		out, err := runKittify(repoDir, "create-feature", "002-acceptance", "--json")
		Expect(err).NotTo(HaveOccurred(), out)

		out, err = runKittify(repoDir, "setup-plan", "002-acceptance", "--wp", "WP01:Only Task", "--json")
		Expect(err).NotTo(HaveOccurred(), out)

		out, err = runKittify(repoDir, "move-task", "002-acceptance", "WP01", "--to", "done", "--actor", "ada", "--json")
		Expect(err).To(HaveOccurred())
		env := decodeEnvelope(out)
		Expect(env.Success).To(BeFalse())
		Expect(env.ErrorCode).To(Equal(kerrors.ValidationError))
	})

	It("rejects a malformed feature slug with a usage error envelope", func() {
		out, err := runKittify(repoDir, "create-feature", "not-a-valid-slug", "--json")
		Expect(err).To(HaveOccurred())
		env := decodeEnvelope(out)
		Expect(env.ErrorCode).To(Equal(kerrors.UsageError))
	})
})

var _ = Describe("offline credential store", func() {
	It("round-trips login, status, and logout", func() {
		repoDir := initTestRepo()
		defer cleanupTestRepo(repoDir, repoDir)

		home, err := os.MkdirTemp("", "kittify-home-")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(home)

		run := func(args ...string) string {
			cmd := exec.Command(binaryPath, args...)
			cmd.Dir = repoDir
			cmd.Env = append(os.Environ(), "SPEC_KITTY_HOME="+home)
			out, err := cmd.CombinedOutput()
			Expect(err).NotTo(HaveOccurred(), string(out))
			return string(out)
		}

		run("auth", "login", "--server-url", "https://example.com", "--username", "ada", "--team-slug", "core", "--token", "tok-123", "--json")

		env := decodeEnvelope(run("auth", "status", "--json"))
		Expect(env.Data["logged_in"]).To(BeTrue())

		run("auth", "logout", "--json")

		env = decodeEnvelope(run("auth", "status", "--json"))
		Expect(env.Data["logged_in"]).To(BeFalse())
	})
})
