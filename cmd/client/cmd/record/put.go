package record

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"offsync/cmd/client/cmd/output"
	"offsync/internal/app/client"
	"offsync/internal/domain/replication"
)

var putCmd = &cobra.Command{
	Use:   "put <table> field=value...",
	Short: "Создать или изменить запись",
	Long: `Сохраняет строку в локальной базе и помечает ее для отправки на сервер.

Без id создается новая запись. Значения разбираются как целые, дробные,
true/false или null, остальное сохраняется строкой. Кавычки
("42") оставляют значение строкой.

  offsync record put client name=Ann email=ann@example.com
  offsync record put client id=7 active=false`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, ok := client.FromContext(cmd.Context())
		if !ok {
			return fmt.Errorf("приложение не инициализировано")
		}

		rec, err := parseAssignments(args[1:])
		if err != nil {
			return err
		}

		saved, err := app.SaveRecord(cmd.Context(), args[0], rec)
		if err != nil {
			return fmt.Errorf("ошибка сохранения записи: %w", err)
		}

		if output.JSONMode() {
			return output.JSON(saved)
		}

		pk := app.PrimaryKey(args[0])
		id, _ := saved.Key(pk)
		output.Success("✅ Запись %s сохранена, %s: %v", args[0], pk, id)
		output.Muted("   уйдет на сервер при следующей синхронизации")
		return nil
	},
}

func parseAssignments(args []string) (replication.Record, error) {
	rec := make(replication.Record, len(args))
	for _, arg := range args {
		field, raw, ok := strings.Cut(arg, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("ожидается поле=значение, получено %q", arg)
		}
		if !replication.ValidIdentifier(field) {
			return nil, fmt.Errorf("недопустимое имя поля %q", field)
		}
		if _, dup := rec[field]; dup {
			return nil, fmt.Errorf("поле %q указано дважды", field)
		}
		rec[field] = parseValue(raw)
	}
	return rec, nil
}

func parseValue(raw string) any {
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		return raw[1 : len(raw)-1]
	}
	switch raw {
	case "null":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}
