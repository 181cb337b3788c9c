package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iota-uz/loan-sdk/modules/loan/domain/mismo"
	"github.com/iota-uz/loan-sdk/modules/loan/services"
)

type sectionSummary struct {
	Name   string `json:"name"`
	Fields int    `json:"fields"`
	Rows   *int   `json:"rows,omitempty"`
}

type extractSummary struct {
	File              string            `json:"file"`
	ExternalID        string            `json:"external_id,omitempty"`
	FirstName         string            `json:"first_name,omitempty"`
	LastName          string            `json:"last_name,omitempty"`
	Sections          map[string]int    `json:"sections,omitempty"`
	CoercionFallbacks map[string]string `json:"coercion_fallbacks,omitempty"`
	Error             string            `json:"error,omitempty"`
}

type specCheckOutput struct {
	Command  string           `json:"command"`
	Fields   int              `json:"fields"`
	Sections []sectionSummary `json:"sections"`
	Files    []extractSummary `json:"files,omitempty"`
}

func newSpecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spec",
		Short: "Inspect the XML mapping tables",
	}
	cmd.AddCommand(newSpecCheckCmd(), newSpecDumpCmd())
	return cmd
}

func newSpecCheckCmd() *cobra.Command {
	var (
		specPath  string
		namespace string
	)
	cmd := &cobra.Command{
		Use:   "check [FILE...]",
		Short: "Validate the mapping tables and dry-run extraction on XML files",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := services.ResolveSpec(specPath, namespace)
			if err != nil {
				return withCode(exitValidation, err)
			}
			importer, err := services.NewImporter(nil, nil, services.ImporterOptions{Spec: spec})
			if err != nil {
				return withCode(exitValidation, err)
			}

			out := specCheckOutput{Command: "spec check", Fields: len(spec.Fields)}
			for _, sec := range spec.Sections {
				out.Sections = append(out.Sections, sectionSummary{Name: sec.Name, Fields: len(sec.Children)})
			}
			failed := 0
			for _, file := range args {
				summary := extractSummary{File: file}
				raw, err := os.ReadFile(file)
				if err == nil {
					l, extractErr := importer.Extract(raw)
					if err = extractErr; err == nil {
						summary.ExternalID = *l.ExternalID
						summary.FirstName = l.FirstName
						summary.LastName = l.LastName
						summary.Sections = make(map[string]int, len(l.Sections))
						for name, rows := range l.Sections {
							summary.Sections[name] = len(rows)
						}
						summary.CoercionFallbacks = l.CoercionFallbacks
					}
				}
				if err != nil {
					failed++
					summary.Error = err.Error()
				}
				out.Files = append(out.Files, summary)
			}
			if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if failed > 0 {
				return withCode(exitValidation, fmt.Errorf("%d of %d files failed extraction", failed, len(args)))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&specPath, "spec", "", "YAML mapping table (defaults to the built-in MISMO tables)")
	cmd.Flags().StringVar(&namespace, "namespace", mismo.Namespace, "Namespace URI bound to the m prefix")
	return cmd
}

func newSpecDumpCmd() *cobra.Command {
	var namespace string
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the built-in MISMO tables as YAML, a starting point for --spec files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := mismo.DefaultSpec(namespace).YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(raw)
			return err
		},
	}
	cmd.Flags().StringVar(&namespace, "namespace", mismo.Namespace, "Namespace URI bound to the m prefix")
	return cmd
}
