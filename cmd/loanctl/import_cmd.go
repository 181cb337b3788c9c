package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	auditpersistence "github.com/iota-uz/loan-sdk/modules/audit/infrastructure/persistence"
	auditservices "github.com/iota-uz/loan-sdk/modules/audit/services"
	"github.com/iota-uz/loan-sdk/modules/loan/domain/loan"
	"github.com/iota-uz/loan-sdk/modules/loan/infrastructure/persistence"
	"github.com/iota-uz/loan-sdk/modules/loan/services"
	"github.com/iota-uz/loan-sdk/pkg/composables"
)

type importOutcome struct {
	File       string `json:"file"`
	LoanID     string `json:"loan_id,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

type importOutput struct {
	Command    string          `json:"command"`
	RequestID  string          `json:"request_id"`
	DurationMS int64           `json:"duration_ms"`
	Results    []importOutcome `json:"results"`
}

func newImportCmd() *cobra.Command {
	var (
		actorID   string
		actorName string
		specPath  string
	)

	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Import MISMO XML files synchronously",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig()
			if err != nil {
				return err
			}
			defer conf.Unload()
			if specPath == "" {
				specPath = conf.Import.SpecPath
			}
			spec, err := services.ResolveSpec(specPath, conf.Import.NamespaceURI)
			if err != nil {
				return withCode(exitValidation, err)
			}

			pool, err := connectDB(cmd.Context(), conf)
			if err != nil {
				return err
			}
			defer pool.Close()

			recorder := auditservices.NewRecorder(
				auditpersistence.NewAuditEventRepository(),
				auditservices.RecorderOptions{FailMutation: conf.Audit.FailMutation},
			)
			importer, err := services.NewImporter(persistence.NewLoanRepository(), recorder, services.ImporterOptions{Spec: spec})
			if err != nil {
				return withCode(exitValidation, err)
			}

			var actor *composables.Actor
			if actorID != "" {
				actor = &composables.Actor{ID: actorID, Name: actorName}
			}
			hostname, _ := os.Hostname()
			rc := composables.NewRequestContext(actor, hostname, "loanctl", conf.UserAgentMaxLen)
			ctx := composables.WithRequestContext(composables.WithPool(cmd.Context(), pool), rc)

			start := time.Now()
			out := importOutput{Command: "import", RequestID: rc.RequestID}
			failed := 0
			for _, file := range args {
				outcome := importOutcome{File: file}
				raw, err := os.ReadFile(file)
				if err == nil {
					var l *loan.Loan
					if l, err = importer.Import(ctx, raw); err == nil {
						outcome.LoanID = l.ID.String()
						if l.ExternalID != nil {
							outcome.ExternalID = *l.ExternalID
						}
					}
				}
				if err != nil {
					failed++
					outcome.Error = err.Error()
				}
				out.Results = append(out.Results, outcome)
			}
			out.DurationMS = time.Since(start).Milliseconds()
			if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if failed > 0 {
				return withCode(exitFailed, fmt.Errorf("%d of %d files failed", failed, len(args)))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&actorID, "actor", "", "Actor id recorded on audit events (optional)")
	cmd.Flags().StringVar(&actorName, "actor-name", "", "Actor display name")
	cmd.Flags().StringVar(&specPath, "spec", "", "YAML mapping table (defaults to IMPORT_SPEC_PATH or built-in MISMO tables)")
	return cmd
}
