package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/pkg/batch"
	"github.com/Ramsey-B/clover/pkg/dedupe"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/ledger"
	"github.com/Ramsey-B/clover/pkg/models"
)

var checkCmd = &cobra.Command{
	Use:   "check <target.json> <candidates.json>",
	Short: "Check one event against candidate events",
	Long:  `Scores a target event against a file of candidate events and prints the duplicate check result as JSON.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, sync, err := bootstrap()
		if err != nil {
			return err
		}
		defer sync()

		target, err := readEvents(args[0])
		if err != nil {
			return err
		}
		if len(target) != 1 {
			return fmt.Errorf("%s must hold exactly one event, found %d", args[0], len(target))
		}
		candidates, err := readEvents(args[1])
		if err != nil {
			return err
		}

		svc, err := newService(cfg, logger, dedupe.Options{})
		if err != nil {
			return err
		}

		result, err := svc.CheckForDuplicates(cmd.Context(), target[0], candidates)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), result)
	},
}

var (
	batchMode       string
	batchHistoryOut string
)

var batchCmd = &cobra.Command{
	Use:   "batch <events.json>",
	Short: "Find and optionally merge duplicates across a file of events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := batch.ParseMode(batchMode)
		if err != nil {
			return err
		}

		cfg, logger, sync, err := bootstrap()
		if err != nil {
			return err
		}
		defer sync()

		events, err := readEvents(args[0])
		if err != nil {
			return err
		}

		svc, err := newService(cfg, logger, dedupe.Options{})
		if err != nil {
			return err
		}

		result, err := svc.ProcessBatch(cmd.Context(), events, mode)
		if err != nil {
			return err
		}

		if batchHistoryOut != "" {
			f, err := os.Create(batchHistoryOut)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := svc.ExportLedger(cmd.Context(), f, ledger.FormatJSON); err != nil {
				return fmt.Errorf("failed to write merge history: %w", err)
			}
		}

		return writeJSON(cmd.OutOrStdout(), result)
	},
}

var configFormat string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective engine configuration",
	Long:  `Prints the default engine configuration, or the one in DEDUP_CONFIG_PATH merged over the defaults.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, sync, err := bootstrap()
		if err != nil {
			return err
		}
		defer sync()

		svc, err := newService(cfg, logger, dedupe.Options{})
		if err != nil {
			return err
		}

		doc, err := svc.ExportConfig(configFormat)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(doc)
		return err
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchMode, "mode", string(batch.ModeDetect), "detect or merge")
	batchCmd.Flags().StringVar(&batchHistoryOut, "history-out", "", "write the merge history to this file")
	configCmd.Flags().StringVar(&configFormat, "format", dedupe.ConfigFormatYAML, "json or yaml")

	rootCmd.AddCommand(checkCmd, batchCmd, configCmd)
}

// readEvents accepts the same shapes as stream messages: one event, an array or an envelope
func readEvents(path string) ([]*models.EventRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	msg := &kafka.IncomingMessage{Value: data}
	if err := msg.ParseEvents(); err != nil {
		return nil, fmt.Errorf("failed to read events from %s: %w", path, err)
	}
	return msg.Events, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
