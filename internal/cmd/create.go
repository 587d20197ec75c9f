package cmd

import (
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/hirelane/internal/observability"
	"github.com/3leaps/hirelane/pkg/manifest"
	"github.com/3leaps/hirelane/pkg/pipeline"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a candidate or job at the tail of its group",
}

var createCandidateCmd = &cobra.Command{
	Use:   "candidate",
	Short: "Create a candidate",
	Example: `  hirelane create candidate --name "Ada Lovelace" --email ada@acme.io
  hirelane create candidate --name Bo --email bo@acme.io --stage screening --tag go`,
	Args: cobra.NoArgs,
	RunE: runCreateCandidate,
}

var createJobCmd = &cobra.Command{
	Use:     "job",
	Short:   "Create a job",
	Example: `  hirelane create job --title "Backend Lead" --tag remote`,
	Args:    cobra.NoArgs,
	RunE:    runCreateJob,
}

var (
	createName      string
	createEmail     string
	createStage     string
	createAppliedAt string
	createTitle     string
	createSlug      string
	createStatus    string
	createTags      []string
)

func init() {
	rootCmd.AddCommand(createCmd)
	createCmd.AddCommand(createCandidateCmd, createJobCmd)

	cf := createCandidateCmd.Flags()
	cf.StringVar(&createName, "name", "", "Candidate name (required)")
	cf.StringVar(&createEmail, "email", "", "Candidate email (required)")
	cf.StringVar(&createStage, "stage", "", "Initial stage (default applied)")
	cf.StringVar(&createAppliedAt, "applied-at", "", "Application date (YYYY-MM-DD or RFC3339)")
	cf.StringSliceVar(&createTags, "tag", nil, "Tag (repeatable)")
	_ = createCandidateCmd.MarkFlagRequired("name")
	_ = createCandidateCmd.MarkFlagRequired("email")

	jf := createJobCmd.Flags()
	jf.StringVar(&createTitle, "title", "", "Job title (required)")
	jf.StringVar(&createSlug, "slug", "", "URL slug (default derived from title)")
	jf.StringVar(&createStatus, "status", "", "Status: open, closed or archived (default open)")
	jf.StringSliceVar(&createTags, "tag", nil, "Tag (repeatable)")
	_ = createJobCmd.MarkFlagRequired("title")
}

func runCreateCandidate(cmd *cobra.Command, _ []string) error {
	in, err := manifest.CandidateSeed{
		Name:      createName,
		Email:     createEmail,
		Stage:     createStage,
		Tags:      createTags,
		AppliedAt: createAppliedAt,
	}.NewCandidate()
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid candidate", err)
	}
	return runCreate(cmd, pipeline.KindCandidate, func(b board) (pipeline.Item, error) {
		return b.CreateCandidate(cmd.Context(), in)
	})
}

func runCreateJob(cmd *cobra.Command, _ []string) error {
	in := manifest.JobSeed{
		Title:  createTitle,
		Slug:   createSlug,
		Status: createStatus,
		Tags:   createTags,
	}.NewJob()
	return runCreate(cmd, pipeline.KindJob, func(b board) (pipeline.Item, error) {
		return b.CreateJob(cmd.Context(), in)
	})
}

func runCreate(cmd *cobra.Command, kind pipeline.Kind, create func(board) (pipeline.Item, error)) error {
	ctx := cmd.Context()
	cfg, err := loadedConfig()
	if err != nil {
		return err
	}
	sess, err := openSession(ctx, cfg, observability.CLILogger)
	if err != nil {
		return err
	}
	defer sess.close()

	start := time.Now()
	it, err := create(sess.board)
	if err != nil {
		return exitError(exitCodeFor(err), "Create failed", err)
	}
	observability.CLILogger.Info("Created",
		zap.String("kind", string(kind)),
		zap.String("id", it.ID),
		zap.String("group", it.Group),
		zap.Int("order", it.Order),
		zap.Duration("took", time.Since(start)))

	out, err := newRunOutput("", sess.source)
	if err != nil {
		return err
	}
	defer out.finish(ctx, "create", kind, it.Group)
	return out.emit(ctx, []pipeline.Item{it})
}
