package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kartikbazzad/bunbase/buntable"
	"github.com/kartikbazzad/bunbase/buntable/codec"
	"github.com/kartikbazzad/bunbase/buntable/query"
)

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <table> <file>",
		Short: "Load a CSV or JSON row file into a table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			data, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			t := db.Table(args[0])
			var res *buntable.LoadResult
			var loadErr error
			if strings.EqualFold(filepath.Ext(args[1]), ".csv") {
				res, loadErr = t.LoadCSV(ctx, string(data))
			} else {
				rows, err := codec.DecodeJSON(strings.NewReader(string(data)))
				if err != nil {
					return err
				}
				res, loadErr = t.LoadJS(ctx, rows)
			}
			if res == nil {
				return loadErr
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d rows into %s (skipped %d, coerced %d)\n",
				len(res.Rows), args[0], res.Skipped, len(res.Issues))
			if loadErr != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), loadErr)
			}
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	var noHeaders bool
	var out string
	cmd := &cobra.Command{
		Use:   "export <table>",
		Short: "Write a table as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			text, err := db.Table(args[0]).Select().ToCSV(ctx, !noHeaders)
			if err != nil {
				return err
			}
			if out == "" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), text)
				return err
			}
			return os.WriteFile(out, []byte(text), 0o644)
		},
	}
	cmd.Flags().BoolVar(&noHeaders, "no-headers", false, "omit the header row")
	cmd.Flags().StringVarP(&out, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func queryCmd() *cobra.Command {
	var (
		expr    string
		orders  []string
		columns []string
		limit   int
		offset  int
		format  string
	)
	cmd := &cobra.Command{
		Use:   "query <table>",
		Short: "Select rows from a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			q := db.Table(args[0]).Select(columns...).Limit(limit).Offset(offset)
			if len(orders) > 0 {
				ob, err := parseOrders(orders)
				if err != nil {
					return err
				}
				q.OrderBy(ob...)
			}
			if expr != "" {
				q.Filter("expr", expr)
			}

			switch format {
			case "csv":
				text, err := q.ToCSV(ctx, true)
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), text)
				return err
			case "json":
				rows, err := q.Exec(ctx)
				if err != nil {
					return err
				}
				return codec.EncodeJSON(cmd.OutOrStdout(), rows)
			}
			return fmt.Errorf("unknown format %q", format)
		},
	}
	f := cmd.Flags()
	f.StringVar(&expr, "expr", "", "row expression, e.g. row.age > 30")
	f.StringSliceVar(&orders, "order", nil, "sort key col[:asc|desc], repeatable")
	f.StringSliceVar(&columns, "columns", nil, "columns to project")
	f.IntVar(&limit, "limit", 0, "maximum rows (0 = all)")
	f.IntVar(&offset, "offset", 0, "rows to skip")
	f.StringVar(&format, "format", "json", "output format: json or csv")
	return cmd
}

// parseOrders reads "col" or "col:dir" sort keys.
func parseOrders(specs []string) ([]query.Order, error) {
	out := make([]query.Order, 0, len(specs))
	for _, s := range specs {
		col, dir, _ := strings.Cut(s, ":")
		switch strings.ToLower(dir) {
		case "", "asc":
			out = append(out, query.Asc(col))
		case "desc":
			out = append(out, query.Desc(col))
		default:
			return nil, fmt.Errorf("order %q: direction must be asc or desc", s)
		}
	}
	return out, nil
}
