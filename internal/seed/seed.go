package seed

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/palstack/assesshub/internal/models"
)

// AssessmentStore is the slice of storage the seeder needs.
type AssessmentStore interface {
	UpsertAssessment(ctx context.Context, a *models.Assessment) error
}

// File is the YAML seed document: a list of assessment definitions.
type File struct {
	Assessments []Definition `yaml:"assessments"`
}

// Definition is one assessment in a seed file.
type Definition struct {
	Name    string                  `yaml:"name"`
	Title   string                  `yaml:"title"`
	Active  *bool                   `yaml:"active"`
	Version int                     `yaml:"version"`
	Config  models.AssessmentConfig `yaml:"config"`
}

// Load reads a YAML seed file and upserts every assessment it defines.
// Upserts key on the assessment name, so re-seeding is idempotent.
func Load(ctx context.Context, store AssessmentStore, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}
	var file File
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return 0, fmt.Errorf("parse seed file: %w", err)
	}
	for i, def := range file.Assessments {
		if def.Name == "" {
			return 0, fmt.Errorf("seed assessment %d: name required", i)
		}
		if len(def.Config.Questions) == 0 {
			return 0, fmt.Errorf("seed assessment %q: questions required", def.Name)
		}
		active := true
		if def.Active != nil {
			active = *def.Active
		}
		version := def.Version
		if version == 0 {
			version = 1
		}
		assessment := &models.Assessment{
			ID:        uuid.NewString(),
			Name:      def.Name,
			Title:     def.Title,
			Active:    active,
			Version:   version,
			Config:    def.Config,
			CreatedAt: time.Now().UTC(),
		}
		if err := store.UpsertAssessment(ctx, assessment); err != nil {
			return 0, fmt.Errorf("seed assessment %q: %w", def.Name, err)
		}
	}
	return len(file.Assessments), nil
}
