package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adversim/warden/internal/config"
	"github.com/adversim/warden/internal/score"
)

func writeFile(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Default objectives when none are given on the command line.
var (
	defaultDefenseObjectives = []string{
		"Audit target system for vulnerabilities and apply security hardening",
		"Detect and remediate SSH security weaknesses",
		"Find and fix privilege escalation vectors (SUID, sudo misconfigs)",
	}
	defaultOffenseObjectives = []string{
		"Gain SSH access to target using weak credentials or brute force",
	}
)

var defendCmd = &cobra.Command{
	Use:   "defend [objective...]",
	Short: "Run the defensive engine against the target",
	Long: `defend runs the detection and remediation loop: each iteration plans one
diagnostic or hardening command, executes it through the defensive whitelist,
classifies the output, and patches critical findings with rollback. Without
arguments it runs the standard hardening objectives.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEngine(cmd, args, config.RoleDefense)
	},
}

var attackCmd = &cobra.Command{
	Use:   "attack [objective...]",
	Short: "Run the offensive engine against the target",
	Long: `attack runs the offensive loop with the offensive tool whitelist. No
classification or patching: the objective is met when a command gains access
or captures a flag.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEngine(cmd, args, config.RoleOffense)
	},
}

func runEngine(cmd *cobra.Command, args []string, role string) error {
	cfg, err := config.FromViper(role)
	if err != nil {
		return err
	}

	rt, err := newRuntime(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	objectives := args
	if len(objectives) == 0 {
		objectives = defaultDefenseObjectives
		if role == config.RoleOffense {
			objectives = defaultOffenseObjectives
		}
	}

	for _, objective := range objectives {
		var met bool
		if role == config.RoleDefense {
			met = rt.engine.Defend(cmd.Context(), objective)
		} else {
			met = rt.engine.Attack(cmd.Context(), objective)
		}
		if !met {
			rt.logger.Warn().Str("objective", objective).Msg("objective not met")
		}
	}

	return rt.finish()
}

var (
	scoreWeightsPath  string
	scoreJSONPath     string
	scoreMarkdownPath string
)

var scoreCmd = &cobra.Command{
	Use:   "score <red_metrics.json> <blue_metrics.json>",
	Short: "Score a red vs. blue competition from metrics documents",
	Args:  cobra.ExactArgs(2),
	RunE:  runScore,
}

func init() {
	scoreCmd.Flags().StringVar(&scoreWeightsPath, "weights", "", "JSON file overriding the scoring weights")
	scoreCmd.Flags().StringVar(&scoreJSONPath, "json", "", "Write the result as JSON to this path")
	scoreCmd.Flags().StringVar(&scoreMarkdownPath, "markdown", "", "Write a Markdown report to this path")
}

func runScore(cmd *cobra.Command, args []string) error {
	red, err := score.LoadSession(args[0])
	if err != nil {
		return err
	}
	blue, err := score.LoadSession(args[1])
	if err != nil {
		return err
	}

	weights := score.Weights{}
	if scoreWeightsPath != "" {
		if weights, err = score.LoadWeights(scoreWeightsPath); err != nil {
			return err
		}
	}

	result := score.NewScorer(weights).Compete(red, blue)
	fmt.Fprint(cmd.OutOrStdout(), score.Summary(result))

	if scoreJSONPath != "" {
		if err := score.WriteJSON(result, scoreJSONPath); err != nil {
			return err
		}
	}
	if scoreMarkdownPath != "" {
		if err := writeFile(scoreMarkdownPath, score.Markdown(result)); err != nil {
			return err
		}
	}
	return nil
}
