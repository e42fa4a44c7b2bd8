package replication

import (
	"fmt"
	"regexp"
)

// DefaultPrimaryKey первичный ключ таблиц, которых нет в реестре
const DefaultPrimaryKey = "id"

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// TableSchema описание реплицируемой таблицы. Задается при сборке, не меняется в рантайме.
type TableSchema struct {
	Name       string
	PrimaryKey string
	// BoolFields поля, которые на устройстве хранятся как 0/1, а на сервере как boolean
	BoolFields []string
	// TimeFields поля-метки времени помимо updated_at и last_sync
	TimeFields []string
}

func (s TableSchema) isBool(field string) bool {
	for _, f := range s.BoolFields {
		if f == field {
			return true
		}
	}
	return false
}

func (s TableSchema) isTime(field string) bool {
	if field == FieldUpdatedAt || field == FieldLastSync {
		return true
	}
	for _, f := range s.TimeFields {
		if f == field {
			return true
		}
	}
	return false
}

func (s TableSchema) validate() error {
	if !ValidIdentifier(s.Name) {
		return fmt.Errorf("%w: table name %q", ErrInvalidSchema, s.Name)
	}
	if !ValidIdentifier(s.PrimaryKey) {
		return fmt.Errorf("%w: primary key %q of table %s", ErrInvalidSchema, s.PrimaryKey, s.Name)
	}
	for _, f := range append(append([]string{}, s.BoolFields...), s.TimeFields...) {
		if !ValidIdentifier(f) {
			return fmt.Errorf("%w: field %q of table %s", ErrInvalidSchema, f, s.Name)
		}
	}
	return nil
}

// Registry неизменяемый реестр схем. Порядок регистрации задает порядок FullSync:
// таблицы, на которые ссылаются внешние ключи, должны идти раньше ссылающихся.
type Registry struct {
	order   []string
	schemas map[string]TableSchema
}

// NewRegistry проверяет схемы и строит реестр
func NewRegistry(schemas ...TableSchema) (*Registry, error) {
	r := &Registry{
		order:   make([]string, 0, len(schemas)),
		schemas: make(map[string]TableSchema, len(schemas)),
	}

	for _, s := range schemas {
		if s.PrimaryKey == "" {
			s.PrimaryKey = DefaultPrimaryKey
		}
		if err := s.validate(); err != nil {
			return nil, err
		}
		if _, dup := r.schemas[s.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate table %s", ErrInvalidSchema, s.Name)
		}
		r.order = append(r.order, s.Name)
		r.schemas[s.Name] = s
	}

	return r, nil
}

// MustRegistry как NewRegistry, но паникует на ошибке. Для реестров, заданных в коде.
func MustRegistry(schemas ...TableSchema) *Registry {
	r, err := NewRegistry(schemas...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup возвращает схему таблицы. Для незарегистрированной таблицы возвращается
// схема по умолчанию и ok=false.
func (r *Registry) Lookup(table string) (TableSchema, bool) {
	if r != nil {
		if s, ok := r.schemas[table]; ok {
			return s, true
		}
	}
	return TableSchema{Name: table, PrimaryKey: DefaultPrimaryKey}, false
}

// Has проверяет, зарегистрирована ли таблица
func (r *Registry) Has(table string) bool {
	_, ok := r.Lookup(table)
	return ok
}

// Tables возвращает имена таблиц в порядке зависимостей
func (r *Registry) Tables() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.order...)
}

// Normalize нормализует запись по схеме таблицы
func (r *Registry) Normalize(table string, rec Record) Record {
	s, ok := r.Lookup(table)
	if !ok {
		return rec.Clone()
	}
	return Normalize(s, rec)
}

// ValidIdentifier проверяет, что имя можно безопасно подставить в SQL
func ValidIdentifier(name string) bool {
	return identRe.MatchString(name)
}
