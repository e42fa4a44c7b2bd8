package table

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (h *Handler) listOp() huma.Operation {
	return huma.Operation{
		OperationID: "table-records-list",
		Method:      http.MethodGet,
		Path:        "/api/v1/tables/{table}/records",
		Summary:     "Выборка записей таблицы",
		Description: "Возвращает записи, измененные после updated_after, либо запись по ключу.",
		Tags:        []string{"tables"},
		Middlewares: h.middleware,
	}
}

func (h *Handler) upsertOp() huma.Operation {
	return huma.Operation{
		OperationID: "table-records-upsert",
		Method:      http.MethodPut,
		Path:        "/api/v1/tables/{table}/records",
		Summary:     "Вставка или обновление записей",
		Description: "Идемпотентный upsert пакета записей по первичному ключу в одной транзакции.",
		Tags:        []string{"tables"},
		Middlewares: h.middleware,
	}
}
