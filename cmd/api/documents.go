package main

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"instructapi/internal/config"
	"instructapi/internal/database"
	"instructapi/internal/model"
	"instructapi/internal/repository"
	"instructapi/internal/repository/postgres"
)

var documentHeaders = []string{"ID", "PRODUCT", "STATUS", "VERSION", "REVIEWED", "APPROVED", "UPDATED"}

func newDocumentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "Inspect stored documents",
	}
	cmd.AddCommand(newDocumentsListCmd())
	return cmd
}

func newDocumentsListCmd() *cobra.Command {
	var kind, status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents of one kind regardless of visibility",
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, ok := listers[kind]
			if !ok {
				return fmt.Errorf("unknown kind %q, expected instructions or activities", kind)
			}
			if status != "" && !model.Status(status).Valid() {
				return fmt.Errorf("unknown status %q", status)
			}

			cfg := config.Load()
			db, err := database.NewPostgres(cmd.Context(), cfg.Database)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			rows, err := list(cmd.Context(), db, repository.ListFilter{Status: model.Status(status)})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderDocuments(rows))
			return nil
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "instructions", "document kind: instructions or activities")
	cmd.Flags().StringVarP(&status, "status", "s", "", "only list documents in this status")
	return cmd
}

type lister func(ctx context.Context, db *sql.DB, f repository.ListFilter) ([][]string, error)

var listers = map[string]lister{
	"instructions": func(ctx context.Context, db *sql.DB, f repository.ListFilter) ([][]string, error) {
		return listRows[model.InstructionContent](ctx, db, postgres.InstructionsTable, f)
	},
	"activities": func(ctx context.Context, db *sql.DB, f repository.ListFilter) ([][]string, error) {
		return listRows[model.ActivityContent](ctx, db, postgres.EquipmentActivitiesTable, f)
	},
}

func listRows[C model.Content](ctx context.Context, db *sql.DB, table postgres.Table, f repository.ListFilter) ([][]string, error) {
	recs, err := postgres.NewDocumentPostgres[C](db, table).List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", table, err)
	}
	rows := make([][]string, 0, len(recs))
	for i := range recs {
		rows = append(rows, documentRow(&recs[i].WorkflowState, recs[i].ID, recs[i].ProductName, recs[i].UpdatedAt))
	}
	return rows, nil
}

func documentRow(s *model.WorkflowState, id int64, product string, updated time.Time) []string {
	return []string{
		strconv.FormatInt(id, 10),
		product,
		string(s.Status),
		strconv.Itoa(s.Version),
		progress(s.Reviewers),
		progress(s.Approvers),
		updated.Format(time.RFC3339),
	}
}

// progress renders completed/total, or "-" for an empty set.
func progress[S ~[]model.Participant](set S) string {
	if len(set) == 0 {
		return "-"
	}
	done := 0
	for _, p := range set {
		if p.Completed {
			done++
		}
	}
	return fmt.Sprintf("%d/%d", done, len(set))
}

func renderDocuments(rows [][]string) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(documentHeaders))
	for i, h := range documentHeaders {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(documentHeaders))
		for i := range r {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}
