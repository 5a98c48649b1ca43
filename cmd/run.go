package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/paper2code/internal/artifact"
	"github.com/ziadkadry99/paper2code/internal/pdftext"
	"github.com/ziadkadry99/paper2code/internal/progress"
	"github.com/ziadkadry99/paper2code/internal/report"
)

var runCmd = &cobra.Command{
	Use:   "run [paper]",
	Short: "Run the full pipeline on a paper from the command line",
	Long: `Analyzes a paper (PDF, or plain text for .txt and .md files), generates an
implementation, evaluates it, and refines it until the stop policy suggests
stopping or --iterations is reached. The final code and the evaluation and
refinement reports are written to --out.`,
	Args: cobra.ExactArgs(1),
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().String("code-type", "python", "implementation target: python, ns3, p4")
	runCmd.Flags().String("feedback", "", "guidance applied to every refinement iteration")
	runCmd.Flags().Int("iterations", 0, "refinement iterations to run (0 follows the stop policy)")
	runCmd.Flags().String("conversation", "", "conversation id to record the run under (default: new)")
	runCmd.Flags().String("out", "paper2code-out", "output directory")
	runCmd.Flags().Bool("html", false, "also render reports as HTML")
	rootCmd.AddCommand(runCmd)
}

var codeExtensions = map[artifact.CodeType]string{
	artifact.CodePython: ".py",
	artifact.CodeNS3:    ".cc",
	artifact.CodeP4:     ".p4",
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	codeType, _ := cmd.Flags().GetString("code-type")
	feedback, _ := cmd.Flags().GetString("feedback")
	iterations, _ := cmd.Flags().GetInt("iterations")
	conversationID, _ := cmd.Flags().GetString("conversation")
	outDir, _ := cmd.Flags().GetString("out")
	withHTML, _ := cmd.Flags().GetBool("html")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if conversationID == "" {
		conversationID = uuid.New().String()
	}

	text, err := readPaper(args[0])
	if err != nil {
		return err
	}

	rt, err := openRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()
	defer func() {
		if err := rt.persist(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: persisting knowledge base: %v\n", err)
		}
	}()
	m := rt.manager

	fmt.Printf("Conversation %s\n", conversationID)
	an, err := m.AnalyzePaper(ctx, conversationID, text, filepath.Base(args[0]))
	if err != nil {
		return err
	}
	fmt.Printf("Analyzed %q\n", an.Title)

	code, err := m.GenerateCode(ctx, conversationID, an.ID, codeType)
	if err != nil {
		return err
	}
	eval, err := m.Evaluate(ctx, conversationID, an.ID, code.ID)
	if err != nil {
		return err
	}
	fmt.Printf("Generated %s implementation, score %.2f/10\n", code.CodeType, eval.OverallScore)

	limit := iterations
	if limit <= 0 {
		limit = cfg.Refine.MaxIterations
	}
	reporter := progress.NewReporter("Refining")
	reporter.Start(limit)
	for i := 1; i <= limit; i++ {
		res, err := m.Refine(ctx, conversationID, an.ID, code.ID, feedback)
		if err != nil {
			reporter.Finish()
			return err
		}
		code, eval = res.Code, res.Evaluation
		reporter.Update(i, fmt.Sprintf("v%d: %.2f/10", code.Version, eval.OverallScore))
		if verbose {
			fmt.Fprintf(os.Stderr, "\n%s\n", res.Record.Evaluation.ImprovementAssessment)
		}
		if iterations <= 0 && res.Stop.Stop {
			fmt.Fprintf(os.Stderr, "\nStopping: %s\n", res.Stop.Reason)
			break
		}
	}
	reporter.Finish()

	return writeOutputs(ctx, rt, outDir, code, eval, withHTML)
}

// readPaper returns the text of a PDF, or the contents of a .txt or .md file.
func readPaper(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", path, err)
		}
		return string(data), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	text, err := pdftext.Extractor{}.ExtractText(f, info.Size())
	if err != nil {
		return "", fmt.Errorf("extracting text from %s: %w", path, err)
	}
	return text, nil
}

func writeOutputs(ctx context.Context, rt *runtime, outDir string, code *artifact.CodeArtifact, eval *artifact.EvaluationResult, withHTML bool) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	store := rt.manager.Artifacts()
	lineage, err := store.Lineage(ctx, code.ID)
	if err != nil {
		return fmt.Errorf("loading lineage: %w", err)
	}
	history, err := store.History(ctx, code.ID)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	files := map[string]string{
		"implementation" + codeExtensions[code.CodeType]: code.Code,
		"evaluation.md": report.Evaluation(code, eval),
		"refinement.md": report.Refinement(lineage, history),
	}
	if withHTML {
		renderer := report.NewRenderer()
		for _, name := range []string{"evaluation.md", "refinement.md"} {
			page, err := renderer.HTML(strings.TrimSuffix(name, ".md"), files[name])
			if err != nil {
				return err
			}
			files[strings.TrimSuffix(name, ".md")+".html"] = string(page)
		}
	}
	for name, content := range code.Auxiliary {
		files["auxiliary/"+strings.ReplaceAll(name, ".", "_")+".txt"] = content
	}

	for name, content := range files {
		path := filepath.Join(outDir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	fmt.Printf("Wrote %d file(s) to %s\n", len(files), outDir)
	return nil
}
