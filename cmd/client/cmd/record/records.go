package record

import (
	"github.com/spf13/cobra"
)

// RecordCmd - родительская команда для всех операций с записями
var RecordCmd = &cobra.Command{
	Use:   "record",
	Short: "Управление записями",
	Long: `Локальные правки и просмотр строк реплицируемых таблиц.

Изменения сохраняются в локальной базе и уходят на сервер
при следующей синхронизации.`,
}

func init() {
	RecordCmd.AddCommand(putCmd)
	RecordCmd.AddCommand(ListCmd)
}
