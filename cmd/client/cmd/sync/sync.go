package sync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"offsync/cmd/client/cmd/output"
	"offsync/internal/app/client"
	"offsync/internal/domain/replication"
)

var (
	table       string
	batchSize   int
	incremental bool
	resolve     bool
	syncStatus  bool
	watch       bool
)

var SyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Управление синхронизацией",
	Long: `Синхронизация локальной базы с сервером.

Без флагов синхронизирует все таблицы в порядке внешних ключей.
--table ограничивает цикл одной таблицей, --incremental берет таблицы
из локальной базы, --resolve разрешает конфликты по последней правке,
--watch запускает автоматическую синхронизацию до Ctrl+C.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, ok := client.FromContext(cmd.Context())
		if !ok {
			return fmt.Errorf("приложение не инициализировано")
		}

		switch {
		case syncStatus:
			return showSyncStatus(cmd.Context(), app)
		case resolve:
			if table == "" {
				return fmt.Errorf("для --resolve нужен --table")
			}
			return runResolve(cmd.Context(), app, table)
		case watch:
			app.Watch(cmd.Context())
			return nil
		case table != "":
			return runTable(cmd.Context(), app, table, batchSize)
		default:
			return runAll(cmd.Context(), app, incremental)
		}
	},
}

func runTable(ctx context.Context, app *client.App, table string, batch int) error {
	res := app.SyncTable(ctx, table, batch)

	if output.JSONMode() {
		if err := output.JSON(resultView(res)); err != nil {
			return err
		}
	} else {
		printResult(res)
	}

	if !res.Success {
		return fmt.Errorf("синхронизация %s не выполнена", table)
	}
	return nil
}

func runAll(ctx context.Context, app *client.App, incremental bool) error {
	var (
		results map[string]*replication.SyncResult
		err     error
	)
	if incremental {
		results, err = app.SyncIncremental(ctx)
		if err != nil {
			return fmt.Errorf("ошибка синхронизации: %w", err)
		}
	} else {
		results = app.Sync(ctx)
	}

	tables := make([]string, 0, len(results))
	for t := range results {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	if output.JSONMode() {
		views := make([]syncView, 0, len(tables))
		for _, t := range tables {
			views = append(views, resultView(results[t]))
		}
		return output.JSON(views)
	}

	output.Println("=== Синхронизация данных ===")
	var failed int
	for _, t := range tables {
		printResult(results[t])
		if !results[t].Success {
			failed++
		}
	}

	stats := app.Stats()
	output.Println()
	output.Printf("Загружено на сервер: %d записей\n", stats.TotalUploaded)
	output.Printf("Загружено с сервера: %d записей\n", stats.TotalDownloaded)

	if failed > 0 {
		return fmt.Errorf("не синхронизировано таблиц: %d из %d", failed, len(tables))
	}
	return nil
}

func runResolve(ctx context.Context, app *client.App, table string) error {
	res, err := app.Resolve(ctx, table)
	if err != nil {
		return fmt.Errorf("ошибка разрешения конфликтов: %w", err)
	}

	if output.JSONMode() {
		return output.JSON(res)
	}

	output.Success("✅ Конфликты %s разрешены: %d", res.Table, res.Resolved)
	output.Printf("  Победила версия сервера: %d\n", res.RemoteWins)
	output.Printf("  Победила локальная версия: %d\n", res.LocalWins)
	if res.Pending > 0 {
		output.Warn("  Нет на сервере, уйдут при синхронизации: %d", res.Pending)
	}
	return nil
}

func showSyncStatus(ctx context.Context, app *client.App) error {
	status, err := app.Status(ctx)
	if err != nil {
		return fmt.Errorf("ошибка чтения статуса: %w", err)
	}

	online := app.CheckConnection(ctx) == nil

	if output.JSONMode() {
		return output.JSON(struct {
			Online bool                 `json:"online"`
			Tables []client.TableStatus `json:"tables"`
		}{online, status})
	}

	output.Println("=== Статус синхронизации ===")
	if online {
		output.Success("Сервер доступен")
	} else {
		output.Warn("Сервер недоступен, работаем офлайн")
	}

	for _, s := range status {
		watermark := "никогда"
		if s.HasWatermark {
			watermark = s.Watermark.Local().Format("2006-01-02 15:04:05")
		}
		line := fmt.Sprintf("  %-12s последний pull: %-19s несинхронизировано: %d", s.Table, watermark, s.Unsynced)
		if s.Unsynced > 0 {
			output.Warn("%s", line)
		} else {
			output.Println(line)
		}
	}
	return nil
}

type syncView struct {
	Table      string    `json:"table"`
	Success    bool      `json:"success"`
	Offline    bool      `json:"offline"`
	Downloaded int       `json:"downloaded"`
	Uploaded   int       `json:"uploaded"`
	LastSync   time.Time `json:"last_sync,omitempty"`
	Duration   string    `json:"duration"`
	Error      string    `json:"error,omitempty"`
}

func resultView(res *replication.SyncResult) syncView {
	return syncView{
		Table:      res.Table,
		Success:    res.Success,
		Offline:    res.Offline,
		Downloaded: res.Downloaded,
		Uploaded:   res.Uploaded,
		LastSync:   res.LastSync,
		Duration:   res.Duration.Round(time.Millisecond).String(),
		Error:      res.Error(),
	}
}

func printResult(res *replication.SyncResult) {
	switch {
	case res.Success:
		output.Success("✅ %s: скачано %d, отправлено %d (%v)",
			res.Table, res.Downloaded, res.Uploaded, res.Duration.Round(time.Millisecond))
	case res.Offline:
		output.Warn("⚠️  %s: нет связи с сервером, изменения сохранены локально", res.Table)
	default:
		output.Fail("❌ %s: %s", res.Table, res.Error())
		if res.Downloaded > 0 || res.Uploaded > 0 {
			output.Muted("   частично: скачано %d, отправлено %d", res.Downloaded, res.Uploaded)
		}
	}
}

func init() {
	SyncCmd.Flags().StringVarP(&table, "table", "t", "", "синхронизировать одну таблицу")
	SyncCmd.Flags().IntVarP(&batchSize, "batch", "b", 0, "размер пакета (по умолчанию из конфигурации)")
	SyncCmd.Flags().BoolVar(&incremental, "incremental", false, "все таблицы локальной базы в порядке имен")
	SyncCmd.Flags().BoolVar(&resolve, "resolve", false, "разрешить конфликты по таблице --table")
	SyncCmd.Flags().BoolVar(&syncStatus, "status", false, "показать статус синхронизации")
	SyncCmd.Flags().BoolVarP(&watch, "watch", "w", false, "автоматическая синхронизация до Ctrl+C")
}
