package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jandy1990/wwfm-platform-sub006/internal/store"
	"github.com/jandy1990/wwfm-platform-sub006/internal/types"
	"github.com/jandy1990/wwfm-platform-sub006/internal/validation"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var goalsCmd = &cobra.Command{
	Use:   "goals",
	Short: "Goal catalog commands",
}

var goalsImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Import or update goals from a YAML file",
	Long: `Reads a YAML document of the form

  goals:
    - title: Reduce anxiety
      arena: Mental Health
      category: Anxiety
      user_interest: 40

and upserts each goal by title. Invalid goals are reported and skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runGoalsImport,
}

func init() {
	goalsCmd.AddCommand(goalsImportCmd)
	rootCmd.AddCommand(goalsCmd)
}

// GoalStore is the store subset used by the importer.
type GoalStore interface {
	EnsureGoal(ctx context.Context, g types.Goal) (*types.Goal, bool, error)
}

type goalFile struct {
	Goals []types.Goal `yaml:"goals"`
}

// importResult summarizes a goal import.
type importResult struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Invalid int      `json:"invalid"`
	Errors  []string `json:"errors,omitempty"`
}

var errNoGoals = errors.New("no goals found")

// importGoals decodes a goal file from r and upserts every valid goal.
// Validation failures are collected; a store failure aborts the import.
func importGoals(ctx context.Context, s GoalStore, r io.Reader) (importResult, error) {
	var res importResult

	var doc goalFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return res, errNoGoals
		}
		return res, fmt.Errorf("parse goals: %w", err)
	}
	if len(doc.Goals) == 0 {
		return res, errNoGoals
	}

	for i, g := range doc.Goals {
		if err := validation.ValidateGoal(g); err != nil {
			res.Invalid++
			res.Errors = append(res.Errors, fmt.Sprintf("goal %d: %v", i+1, err))
			continue
		}
		_, created, err := s.EnsureGoal(ctx, g)
		if err != nil {
			return res, fmt.Errorf("goal %d (%q): %w", i+1, g.Title, err)
		}
		if created {
			res.Created++
		} else {
			res.Updated++
		}
	}

	slog.Info("goals imported",
		"component", "cli",
		"action", "goals_import",
		"created", res.Created,
		"updated", res.Updated,
		"invalid", res.Invalid,
	)
	return res, nil
}

func runGoalsImport(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	cfg, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	res, err := importGoals(ctx, db, f)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), res)
}
