package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/biodoia/vettriage/internal/providers"
	"github.com/biodoia/vettriage/pkg/models"
)

var (
	diagSpecies   string
	diagBreed     string
	diagAge       string
	diagSex       string
	diagWeight    string
	diagHistory   string
	diagComplaint string
	diagUrgency   string
	diagImage     string
	diagVerbose   bool
)

// DiagnoseCmd rappresenta il comando diagnose
var DiagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Run a one-shot triage from the command line",
	Long: `Run a complete triage for a single case and print the report as JSON.

Useful for scripting and for exercising the pipeline without the HTTP server.`,
	Example: `  # Triage with a clinical image
  vettriage diagnose --species dog --complaint "scratching ears" --image ear.jpg

  # Vision-less triage
  vettriage diagnose --species cat --complaint "coughing at night" --history "indoor cat, 6y"`,
	RunE: runDiagnose,
}

func init() {
	DiagnoseCmd.Flags().StringVar(&diagSpecies, "species", "", "Animal species (required)")
	DiagnoseCmd.Flags().StringVar(&diagBreed, "breed", "", "Breed")
	DiagnoseCmd.Flags().StringVar(&diagAge, "age", "", "Age")
	DiagnoseCmd.Flags().StringVar(&diagSex, "sex", "", "Sex")
	DiagnoseCmd.Flags().StringVar(&diagWeight, "weight", "", "Weight")
	DiagnoseCmd.Flags().StringVar(&diagHistory, "history", "", "Clinical history")
	DiagnoseCmd.Flags().StringVar(&diagComplaint, "complaint", "", "Presenting complaint")
	DiagnoseCmd.Flags().StringVar(&diagUrgency, "urgency", "", "Declared urgency (routine, moderate, urgent)")
	DiagnoseCmd.Flags().StringVar(&diagImage, "image", "", "Path to clinical image")
	DiagnoseCmd.Flags().BoolVarP(&diagVerbose, "verbose", "v", false, "Verbose logging")
	DiagnoseCmd.MarkFlagRequired("species")
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	setupLogger(diagVerbose, true)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	rt, err := buildRuntime(cfg, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	caseInfo := models.CaseInfo{
		Species:   diagSpecies,
		Breed:     diagBreed,
		Age:       diagAge,
		Sex:       diagSex,
		Weight:    diagWeight,
		History:   diagHistory,
		Complaint: diagComplaint,
		Urgency:   models.Urgency(diagUrgency),
	}

	var image *providers.ImageInput
	if diagImage != "" {
		data, err := os.ReadFile(diagImage)
		if err != nil {
			return fmt.Errorf("cannot read image %s: %w", diagImage, err)
		}
		mimeType := mime.TypeByExtension(filepath.Ext(diagImage))
		if mimeType == "" {
			mimeType = "image/jpeg"
		}
		image = &providers.ImageInput{Data: data, MimeType: mimeType}
		if err := image.Validate(); err != nil {
			return fmt.Errorf("invalid image %s: %w", diagImage, err)
		}
	}

	report, err := rt.orchestrator.Run(context.Background(), caseInfo, image)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if report.Status == "failed" {
		return fmt.Errorf("triage failed at step %s", report.FailedStep)
	}
	return nil
}
