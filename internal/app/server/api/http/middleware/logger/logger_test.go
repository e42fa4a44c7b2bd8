package logger

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"golang.org/x/exp/slog"
)

func TestLogger_Middleware(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{"ok is info", http.StatusNoContent, `"level":"INFO"`},
		{"client error is warn", http.StatusNotFound, `"level":"WARN"`},
		{"server error is error", http.StatusServiceUnavailable, `"level":"ERROR"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := slog.New(slog.NewJSONHandler(&buf, nil))

			_, api := humatest.New(t)
			huma.Register(api, huma.Operation{
				OperationID:   "probe",
				Method:        http.MethodGet,
				Path:          "/api/v1/tables/{table}/probe",
				DefaultStatus: http.StatusNoContent,
				Middlewares:   huma.Middlewares{New(log).Middleware()},
			}, func(ctx context.Context, in *struct {
				Table string `path:"table"`
			}) (*struct{}, error) {
				if tt.status >= 400 {
					return nil, huma.NewError(tt.status, "failed")
				}
				return nil, nil
			})

			resp := api.Get("/api/v1/tables/client/probe")
			assert.Equal(t, tt.status, resp.Code)

			out := buf.String()
			assert.Contains(t, out, tt.wantLevel)
			assert.Contains(t, out, `"path":"/api/v1/tables/client/probe"`)
			assert.Contains(t, out, `"table":"client"`)
			assert.Contains(t, out, `"component":"http_logger"`)
		})
	}
}
