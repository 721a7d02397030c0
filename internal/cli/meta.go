package cli

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/Priivacy-ai/spec-kitty-sub005/internal/atomicio"
	"github.com/Priivacy-ai/spec-kitty-sub005/internal/fileutil"
	"github.com/Priivacy-ai/spec-kitty-sub005/internal/kerrors"
)

var featureSlugPattern = regexp.MustCompile(`^[0-9]{3}-[a-z0-9]+(-[a-z0-9]+)*$`)

// Meta is a feature's descriptor, written once by create-feature and
// updated by setup-plan/finalize-tasks. It is the feature directory's
// only non-derivable file besides events.jsonl, config.yaml and the WP
// file set.
type Meta struct {
	Slug        string    `json:"slug"`
	Title       string    `json:"title,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	PlanSetUp   bool      `json:"plan_set_up"`
	Finalized   bool      `json:"finalized"`
	TargetBranch string   `json:"target_branch,omitempty"`
}

func loadMeta(featureDir string) (*Meta, error) {
	var m Meta
	if err := atomicio.ReadJSON(fileutil.MetaPath(featureDir), &m); err != nil {
		if os.IsNotExist(err) {
			return nil, kerrors.New(kerrors.ValidationError, "feature does not exist").
				WithData("feature_dir", featureDir)
		}
		return nil, fmt.Errorf("reading feature meta: %w", err)
	}
	return &m, nil
}

func saveMeta(featureDir string, m *Meta) error {
	return atomicio.WriteJSON(fileutil.MetaPath(featureDir), m)
}

func validateFeatureSlug(slug string) error {
	if !featureSlugPattern.MatchString(slug) {
		return kerrors.New(kerrors.UsageError, "feature slug must match NNN-kebab-name").
			WithData("slug", slug)
	}
	return nil
}
