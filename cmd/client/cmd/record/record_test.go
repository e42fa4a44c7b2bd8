package record

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offsync/cmd/client/cmd/output"
	"offsync/internal/domain/replication"
)

func TestParseAssignments(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    replication.Record
		wantErr bool
	}{
		{
			name: "typed values",
			args: []string{"id=7", "name=Ann", "price=2.5", "active=false", "email=null"},
			want: replication.Record{"id": int64(7), "name": "Ann", "price": 2.5, "active": false, "email": nil},
		},
		{
			name: "quoted stays string",
			args: []string{`phone="0042"`},
			want: replication.Record{"phone": "0042"},
		},
		{
			name: "value with equals sign",
			args: []string{"note=a=b"},
			want: replication.Record{"note": "a=b"},
		},
		{name: "no equals", args: []string{"name"}, wantErr: true},
		{name: "empty field", args: []string{"=1"}, wantErr: true},
		{name: "bad identifier", args: []string{"na me=1"}, wantErr: true},
		{name: "duplicate", args: []string{"id=1", "id=2"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAssignments(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestColumns(t *testing.T) {
	records := []replication.Record{
		{"id": 1, "name": "a", "updated_at": "x", "last_sync": nil},
		{"id": 2, "email": "b"},
	}

	assert.Equal(t, []string{"id", "email", "name", "updated_at", "last_sync"}, columns(records))
}

func TestPrintRecordsTable(t *testing.T) {
	var buf bytes.Buffer
	output.SetWriter(&buf)
	output.Setup(false, true)

	err := printRecordsTable([]replication.Record{
		{"id": int64(1), "name": "synced", "updated_at": "2024-01-01T00:00:00.000000Z", "last_sync": "2024-01-01T00:00:00.000000Z"},
		{"id": int64(2), "name": "pending", "updated_at": "2024-01-02T00:00:00.000000Z", "last_sync": nil},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "synced")
	assert.Contains(t, out, "* ")
	assert.Contains(t, out, "Всего записей: 2")
}
