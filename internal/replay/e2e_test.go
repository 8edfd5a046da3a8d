package replay

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funnyzak/reqtape/internal/filter"
	"github.com/funnyzak/reqtape/internal/forwarder"
	"github.com/funnyzak/reqtape/internal/logger"
	"github.com/funnyzak/reqtape/internal/report"
	"github.com/funnyzak/reqtape/internal/server"
)

func TestRecordThenReplay(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/y":
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"ok":true}`)
		default:
			w.WriteHeader(http.StatusCreated)
		}
	}))
	defer upstream.Close()

	writer, err := report.NewWriter(report.WriterOptions{
		Name:      "Get Only",
		OutputDir: t.TempDir(),
		BaseURL:   upstream.URL,
	})
	require.NoError(t, err)

	srv, err := server.New(server.Options{Upstream: upstream.URL}, server.Deps{
		Client:   forwarder.NewForwarder(logger.Nop(), forwarder.Options{}),
		Recorder: writer,
		Methods:  filter.NewMethodPredicate([]string{"GET"}, nil),
		Logger:   logger.Nop(),
	})
	require.NoError(t, err)
	proxy := httptest.NewServer(srv.Handler())
	defer proxy.Close()

	resp, err := http.Post(proxy.URL+"/x", "text/plain", strings.NewReader("payload"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = http.Get(proxy.URL + "/y")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, `{"ok":true}`, string(body))

	require.NoError(t, srv.Stop(context.Background()))
	assert.True(t, strings.HasSuffix(writer.FinalPath(), "get-only.json"))

	rep, err := report.Load(writer.FinalPath())
	require.NoError(t, err)
	require.Len(t, rep.Requests, 1)
	assert.Equal(t, "GET", rep.Requests[0].Method)
	assert.Equal(t, "/y", rep.Requests[0].URL)

	outcome, err := NewRunner(newClient(t), Options{}, Deps{}).RunFile(context.Background(), writer.FinalPath())
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Passed)
	assert.Zero(t, outcome.Failed)
}
