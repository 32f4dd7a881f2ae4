package daemon

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coldbell/wager/backend/internal/config"
)

type fakeSettings struct{ log config.LogConfig }

func (f fakeSettings) Logging() config.LogConfig { return f.log }

type fakeService struct {
	err error
	ran bool
}

func (f *fakeService) Run(ctx context.Context) error {
	f.ran = true
	return f.err
}

func fileLog(t *testing.T) fakeSettings {
	return fakeSettings{log: config.LogConfig{Output: "file", FilePath: filepath.Join(t.TempDir(), "svc.log")}}
}

func TestRunReturnsZeroOnCleanStop(t *testing.T) {
	svc := &fakeService{}
	code := run(context.Background(), &bytes.Buffer{}, "keeper",
		func() (fakeSettings, error) { return fileLog(t), nil },
		func(fakeSettings, *slog.Logger) (*fakeService, error) { return svc, nil },
	)
	assert.Equal(t, 0, code)
	assert.True(t, svc.ran)
}

func TestRunReportsFailures(t *testing.T) {
	var console bytes.Buffer
	code := run(context.Background(), &console, "indexer",
		func() (fakeSettings, error) { return fakeSettings{}, errors.New("bad INDEXER_POLL_INTERVAL") },
		func(fakeSettings, *slog.Logger) (*fakeService, error) { t.Fatal("built without config"); return nil, nil },
	)
	assert.Equal(t, 1, code)
	assert.Contains(t, console.String(), "bad INDEXER_POLL_INTERVAL")

	console.Reset()
	code = run(context.Background(), &console, "indexer",
		func() (fakeSettings, error) { return fakeSettings{log: config.LogConfig{Format: "xml"}}, nil },
		func(fakeSettings, *slog.Logger) (*fakeService, error) { return &fakeService{}, nil },
	)
	assert.Equal(t, 1, code)
	assert.Contains(t, console.String(), "init logger")

	svc := &fakeService{err: errors.New("rpc down")}
	code = run(context.Background(), &console, "api-server",
		func() (fakeSettings, error) { return fileLog(t), nil },
		func(fakeSettings, *slog.Logger) (*fakeService, error) { return svc, nil },
	)
	assert.Equal(t, 1, code)
	assert.True(t, svc.ran)
}
