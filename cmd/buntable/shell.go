package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/kartikbazzad/bunbase/buntable"
	"github.com/kartikbazzad/bunbase/buntable/codec"
	"github.com/kartikbazzad/bunbase/buntable/internal/metrics"
	"github.com/kartikbazzad/bunbase/buntable/query"
)

const prompt = "buntable> "

// Command is one parsed shell line.
type Command struct {
	Name string
	Rest string // text after the name, trimmed
	Line string
}

func parseLine(line string) (*Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, fmt.Errorf("empty command")
	}
	name, rest, _ := strings.Cut(line, " ")
	return &Command{Name: strings.ToLower(name), Rest: strings.TrimSpace(rest), Line: line}, nil
}

type Result interface {
	Print(w io.Writer)
	IsExit() bool
}

type ErrorResult struct {
	Err error
}

func (e ErrorResult) Print(w io.Writer) {
	fmt.Fprintln(w, "ERROR")
	fmt.Fprintln(w, e.Err)
}

func (e ErrorResult) IsExit() bool { return false }

type ExitResult struct{}

func (ExitResult) Print(w io.Writer) {}

func (ExitResult) IsExit() bool { return true }

type TextResult string

func (r TextResult) Print(w io.Writer) { fmt.Fprintln(w, string(r)) }

func (TextResult) IsExit() bool { return false }

type RowsResult []buntable.Row

func (r RowsResult) Print(w io.Writer) {
	if err := codec.EncodeJSON(w, r); err != nil {
		fmt.Fprintln(w, "ERROR")
		fmt.Fprintln(w, err)
		return
	}
	fmt.Fprintf(w, "(%d rows)\n", len(r))
}

func (RowsResult) IsExit() bool { return false }

type HelpResult struct{}

func (HelpResult) Print(w io.Writer) {
	fmt.Fprintln(w, "buntable shell commands:")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  .use <table>        Set current table")
	fmt.Fprintln(w, "  .tables             List tables")
	fmt.Fprintln(w, "  .stats              Print exec metrics")
	fmt.Fprintln(w, "  .help               Show this help message")
	fmt.Fprintln(w, "  .exit               Exit the shell")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  select [expr]       Select rows, optionally where expr is true")
	fmt.Fprintln(w, "  upsert <json>       Insert or merge one row")
	fmt.Fprintln(w, "  delete <expr>       Delete rows where expr is true")
	fmt.Fprintln(w, "  drop                Remove every row")
	fmt.Fprintln(w, "  count               Count rows")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Expressions are CEL over the variable row, e.g.")
	fmt.Fprintln(w, "  select row.age >= 30 && row.name.startsWith(\"A\")")
}

func (HelpResult) IsExit() bool { return false }

// Shell executes shell commands against one database.
type Shell struct {
	db    *buntable.DB
	table string
}

func NewShell(db *buntable.DB) *Shell {
	return &Shell{db: db}
}

func (s *Shell) Execute(ctx context.Context, cmd *Command) Result {
	switch cmd.Name {
	case ".help":
		return HelpResult{}
	case ".exit", ".quit":
		return ExitResult{}
	case ".tables":
		return TextResult(strings.Join(s.db.Tables(), "\n"))
	case ".use":
		return s.use(cmd)
	case ".stats":
		var sb strings.Builder
		if err := metrics.WriteSummary(&sb); err != nil {
			return ErrorResult{Err: err}
		}
		return TextResult(strings.TrimRight(sb.String(), "\n"))
	}

	t, err := s.current()
	if err != nil {
		return ErrorResult{Err: err}
	}
	switch cmd.Name {
	case "select":
		q := t.Select()
		if cmd.Rest != "" {
			q.Filter("expr", cmd.Rest)
		}
		return rowsOrError(q.Exec(ctx))
	case "upsert":
		if cmd.Rest == "" {
			return ErrorResult{Err: fmt.Errorf("usage: upsert <json>")}
		}
		var row map[string]any
		if err := json.Unmarshal([]byte(cmd.Rest), &row); err != nil {
			return ErrorResult{Err: fmt.Errorf("invalid row: %w", err)}
		}
		return rowsOrError(t.Upsert(row).Exec(ctx))
	case "delete":
		if cmd.Rest == "" {
			return ErrorResult{Err: fmt.Errorf("usage: delete <expr>")}
		}
		return rowsOrError(s.deleteWhere(ctx, t, cmd.Rest))
	case "drop":
		return rowsOrError(t.Drop().Exec(ctx))
	case "count":
		rows, err := t.Select().Filter("count").Exec(ctx)
		if err != nil {
			return ErrorResult{Err: err}
		}
		return TextResult(fmt.Sprint(rows[0]["count"]))
	}
	return ErrorResult{Err: fmt.Errorf("unknown command: %s", cmd.Name)}
}

func rowsOrError(rows []buntable.Row, err error) Result {
	if err != nil {
		return ErrorResult{Err: err}
	}
	return RowsResult(rows)
}

func (s *Shell) use(cmd *Command) Result {
	if cmd.Rest == "" {
		return ErrorResult{Err: fmt.Errorf("usage: .use <table>")}
	}
	for _, name := range s.db.Tables() {
		if name == cmd.Rest {
			s.table = name
			return TextResult("OK")
		}
	}
	return ErrorResult{Err: fmt.Errorf("unknown table %q", cmd.Rest)}
}

func (s *Shell) current() (*buntable.Table, error) {
	if s.table == "" {
		return nil, fmt.Errorf("no table selected: use .use <table>")
	}
	return s.db.Table(s.table), nil
}

// deleteWhere finds the rows matching expr and deletes them by primary key.
func (s *Shell) deleteWhere(ctx context.Context, t *buntable.Table, expr string) ([]buntable.Row, error) {
	pk := t.Schema().PKKey()
	if pk == "" {
		return nil, fmt.Errorf("table %s has no primary key", t.Name())
	}
	rows, err := t.Select().Filter("expr", expr).Exec(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	ids := make([]any, len(rows))
	for i, r := range rows {
		ids[i] = r[pk]
	}
	return t.Delete().Where(query.Cond(pk, "IN", ids)).Exec(ctx)
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".buntable_history")
}

func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			line := liner.NewLiner()
			defer line.Close()
			line.SetCtrlCAborts(true)
			line.SetCompleter(func(l string) []string {
				var out []string
				for _, c := range []string{".use ", ".tables", ".stats", ".help", ".exit", "select ", "upsert ", "delete ", "drop", "count"} {
					if strings.HasPrefix(c, strings.ToLower(l)) {
						out = append(out, c)
					}
				}
				return out
			})
			hist := historyPath()
			if f, err := os.Open(hist); err == nil {
				line.ReadHistory(f)
				f.Close()
			}
			defer func() {
				if hist == "" {
					return
				}
				if f, err := os.Create(hist); err == nil {
					line.WriteHistory(f)
					f.Close()
				}
			}()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "buntable shell (%s backend). Type '.help' for commands.\n\n", cfg.Backend)
			sh := NewShell(db)
			for {
				input, err := line.Prompt(prompt)
				if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
					fmt.Fprintln(out)
					return nil
				}
				if err != nil {
					return err
				}
				c, err := parseLine(input)
				if err != nil {
					continue
				}
				line.AppendHistory(c.Line)
				res := sh.Execute(ctx, c)
				if res.IsExit() {
					return nil
				}
				res.Print(out)
				fmt.Fprintln(out)
			}
		},
	}
}
