package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	anthropicpkg "github.com/fieldglass/needlefinder/pkg/anthropic"

	"github.com/fieldglass/needlefinder/internal/pipeline"
	"github.com/fieldglass/needlefinder/internal/schema"
)

var (
	extractInput          string
	extractSchema         string
	extractSchemasFile    string
	extractExamples       []string
	extractRemoveDialogue bool
	extractVerify         bool
	extractOutputDir      string
	extractFormats        []string
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract needles from a haystack file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.ValidateCredentials(); err != nil {
			return err
		}

		reg, err := schema.LoadRegistry(extractSchemasFile)
		if err != nil {
			return err
		}
		s, err := reg.Get(extractSchema)
		if err != nil {
			return err
		}

		raw, err := os.ReadFile(extractInput)
		if err != nil {
			return eris.Wrapf(err, "read haystack %s", extractInput)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		p := pipeline.New(cfg, st, anthropicpkg.NewClient(cfg.Anthropic.Key))

		run, err := p.Run(ctx, pipeline.Options{
			Schema:         s,
			Input:          extractInput,
			Text:           string(raw),
			Examples:       extractExamples,
			RemoveDialogue: extractRemoveDialogue,
			Verify:         extractVerify,
			OutputDir:      extractOutputDir,
			Formats:        extractFormats,
		})
		if err != nil {
			return eris.Wrap(err, "extract run")
		}

		zap.L().Info("extraction complete",
			zap.String("run_id", run.ID),
			zap.String("schema", s.Name),
			zap.Int("needles", len(run.Result.Needles)),
			zap.Strings("paths", run.Result.OutputPaths),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run.Result)
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractInput, "input", "data/haystack.txt", "haystack text file")
	extractCmd.Flags().StringVar(&extractSchema, "schema", "TechCompany", "schema name")
	extractCmd.Flags().StringVar(&extractSchemasFile, "schemas-file", "", "YAML file with additional schemas")
	extractCmd.Flags().StringArrayVar(&extractExamples, "example", nil, "example needle JSON to guide extraction (repeatable)")
	extractCmd.Flags().BoolVar(&extractRemoveDialogue, "remove-dialogue", false, "strip attributed dialogue before chunking")
	extractCmd.Flags().BoolVar(&extractVerify, "verify", false, "confirm each needle against its source chunk")
	extractCmd.Flags().StringVar(&extractOutputDir, "output-dir", "", "output directory (default from config)")
	extractCmd.Flags().StringSliceVar(&extractFormats, "format", nil, "output formats: json, csv, xlsx (default from config)")
	rootCmd.AddCommand(extractCmd)
}
