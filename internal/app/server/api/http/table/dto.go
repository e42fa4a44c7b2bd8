package table

type listInput struct {
	Table        string `path:"table" doc:"Имя реплицируемой таблицы"`
	UpdatedAfter string `query:"updated_after" doc:"Только записи с updated_at строго позже (RFC3339)"`
	Key          string `query:"key" doc:"Поле для выборки по равенству"`
	Value        string `query:"value" doc:"Значение поля key"`
}

type listOutput struct {
	Body listResponse
}

type listResponse struct {
	Table   string           `json:"table"`
	Records []map[string]any `json:"records"`
}

type upsertInput struct {
	Table string `path:"table" doc:"Имя реплицируемой таблицы"`
	Body  upsertRequest
}

type upsertRequest struct {
	Key     string           `json:"key,omitempty" doc:"Первичный ключ, по умолчанию из схемы таблицы"`
	Records []map[string]any `json:"records" minItems:"1"`
}

type upsertOutput struct {
	Body upsertResponse
}

type upsertResponse struct {
	Status   string `json:"status" example:"Ok"`
	Upserted int    `json:"upserted"`
}
