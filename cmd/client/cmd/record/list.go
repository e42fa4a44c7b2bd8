package record

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"offsync/cmd/client/cmd/output"
	"offsync/internal/app/client"
	"offsync/internal/domain/replication"
)

var (
	listFormat   string
	onlyUnsynced bool
	limit        int
)

var ListCmd = &cobra.Command{
	Use:   "list <table>",
	Short: "Список записей",
	Long: `Просмотр строк локальной таблицы.

Несинхронизированные записи отмечены звездочкой.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, ok := client.FromContext(cmd.Context())
		if !ok {
			return fmt.Errorf("приложение не инициализировано")
		}

		records, err := app.List(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("ошибка получения списка записей: %w", err)
		}

		if onlyUnsynced {
			records = slices.DeleteFunc(records, func(r replication.Record) bool {
				return !r.IsUnsynced()
			})
		}
		if limit > 0 && len(records) > limit {
			records = records[:limit]
		}

		// Выводим результат
		if output.JSONMode() || listFormat == "json" {
			return output.JSON(records)
		}
		switch listFormat {
		case "table":
			return printRecordsTable(records)
		default:
			printRecordsSimple(records)
			return nil
		}
	},
}

func printRecordsSimple(records []replication.Record) {
	if len(records) == 0 {
		output.Println("Записи не найдены")
		return
	}

	output.Printf("Найдено записей: %d\n\n", len(records))

	cols := columns(records)
	for _, rec := range records {
		parts := make([]string, 0, len(cols))
		for _, c := range cols {
			parts = append(parts, fmt.Sprintf("%s=%s", c, cell(rec[c])))
		}

		line := strings.Join(parts, " ")
		if rec.IsUnsynced() {
			output.Warn("* %s", line)
		} else {
			output.Printf("  %s\n", line)
		}
	}
}

func printRecordsTable(records []replication.Record) error {
	if len(records) == 0 {
		output.Println("Записи не найдены")
		return nil
	}

	cols := columns(records)

	w := tabwriter.NewWriter(output.Writer(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, " \t%s\t\n", strings.Join(cols, "\t"))

	for _, rec := range records {
		mark := " "
		if rec.IsUnsynced() {
			mark = "*"
		}
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = truncate(cell(rec[c]), 30)
		}
		fmt.Fprintf(w, "%s\t%s\t\n", mark, strings.Join(cells, "\t"))
	}

	if err := w.Flush(); err != nil {
		return err
	}
	output.Printf("\nВсего записей: %d\n", len(records))
	return nil
}

// columns id первым, служебные поля последними, остальные по имени
func columns(records []replication.Record) []string {
	seen := make(map[string]struct{})
	for _, r := range records {
		for k := range r {
			seen[k] = struct{}{}
		}
	}
	delete(seen, "id")
	delete(seen, replication.FieldUpdatedAt)
	delete(seen, replication.FieldLastSync)

	cols := []string{"id"}
	cols = append(cols, slices.Sorted(maps.Keys(seen))...)
	return append(cols, replication.FieldUpdatedAt, replication.FieldLastSync)
}

func cell(v any) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(v)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func init() {
	ListCmd.Flags().StringVarP(&listFormat, "format", "f", "simple", "формат вывода (simple, table, json)")
	ListCmd.Flags().BoolVar(&onlyUnsynced, "unsynced", false, "только несинхронизированные записи")
	ListCmd.Flags().IntVar(&limit, "limit", 0, "ограничение количества записей")
}
