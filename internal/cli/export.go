package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/entity-history/backend/internal/backend"
	"github.com/entity-history/backend/internal/export"
	"github.com/entity-history/backend/internal/models"
	"github.com/entity-history/backend/internal/services"
	"github.com/entity-history/backend/internal/timeparse"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const fileStamp = "20060102T150405Z"

func NewExportCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export snapshots, diffs and history as XLSX workbooks",
	}
	cmd.AddCommand(exportAsOfCommand(opts), exportDiffCommand(opts), exportHistoryCommand(opts))
	return cmd
}

func exportAsOfCommand(opts *RootOptions) *cobra.Command {
	var at, entityType, query, out string
	cmd := &cobra.Command{
		Use:   "asof",
		Short: "Export every entity as of a point in time",
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := timeparse.ParseOr(at, time.Now())
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --at", err)
			}
			if out == "" {
				out = fmt.Sprintf("as_of_%s.xlsx", ts.Format(fileStamp))
			}
			f := models.EntityFilter{EntityType: models.NormalizeRefCode(entityType), Query: query}
			return opts.withBackend(cmd.Context(), func(be *backend.Backend) error {
				svc := services.NewAsOfService(be.Store, opts.Config.AsOfPageSize, opts.Log)
				snaps, err := svc.Resolve(cmd.Context(), ts, f)
				if err != nil {
					return WrapExitError(ExitCommandError, "resolve as-of", err)
				}
				return writeWorkbook(opts, cmd, out, len(snaps), func(w io.Writer) error {
					return export.WriteSnapshots(w, snaps)
				})
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "point in time (defaults to now)")
	cmd.Flags().StringVar(&entityType, "type", "", "entity type filter")
	cmd.Flags().StringVar(&query, "q", "", "display name contains")
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file")
	return cmd
}

func exportDiffCommand(opts *RootOptions) *cobra.Command {
	var from, to, entity, out string
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Export the changes between two points in time",
		RunE: func(cmd *cobra.Command, args []string) error {
			fromTS, err := timeparse.Parse(from)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --from", err)
			}
			toTS, err := timeparse.ParseOr(to, time.Now())
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --to", err)
			}
			if out == "" {
				out = fmt.Sprintf("diff_%s_%s.xlsx", fromTS.Format(fileStamp), toTS.Format(fileStamp))
			}
			return opts.withBackend(cmd.Context(), func(be *backend.Backend) error {
				svc := services.NewDiffService(be.Store, opts.Config.AsOfPageSize, opts.Log)
				var res models.DiffResult
				if entity != "" {
					uid, perr := uuid.Parse(entity)
					if perr != nil {
						return WrapExitError(ExitCommandError, "invalid --entity", perr)
					}
					res, err = svc.DiffEntity(cmd.Context(), uid, fromTS, toTS)
				} else {
					res, err = svc.Diff(cmd.Context(), fromTS, toTS)
				}
				if err != nil {
					return WrapExitError(ExitCommandError, "diff", err)
				}
				return writeWorkbook(opts, cmd, out, res.Len(), func(w io.Writer) error {
					return export.WriteDiff(w, res)
				})
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "start of the window (required)")
	_ = cmd.MarkFlagRequired("from")
	cmd.Flags().StringVar(&to, "to", "", "end of the window (defaults to now)")
	cmd.Flags().StringVar(&entity, "entity", "", "restrict to one entity_uid")
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file")
	return cmd
}

func exportHistoryCommand(opts *RootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "history <entity_uid>",
		Short: "Export the full version history of one entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := uuid.Parse(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid entity_uid", err)
			}
			if out == "" {
				out = fmt.Sprintf("history_%s.xlsx", uid)
			}
			return opts.withBackend(cmd.Context(), func(be *backend.Backend) error {
				svc := services.NewHistoryService(be.Store, opts.Log)
				hist, err := svc.Assemble(cmd.Context(), uid)
				if err != nil {
					return WrapExitError(ExitCommandError, "assemble history", err)
				}
				return writeWorkbook(opts, cmd, out, len(hist.Versions), func(w io.Writer) error {
					return export.WriteHistory(w, hist)
				})
			})
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file")
	return cmd
}

func writeWorkbook(opts *RootOptions, cmd *cobra.Command, path string, rows int, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "create output file", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return WrapExitError(ExitCommandError, "write workbook", err)
	}
	if err := f.Close(); err != nil {
		return WrapExitError(ExitCommandError, "close output file", err)
	}
	data := map[string]any{"file": path, "rows": rows}
	return opts.output(cmd).Success(data, func(w io.Writer) {
		fmt.Fprintf(w, "wrote %d rows to %s\n", rows, path)
	})
}
