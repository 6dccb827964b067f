//nolint:thelper,whitespace,lll,funlen // ok for tests
package simulate

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"github.com/stretchr/testify/assert"
	gta "gotest.tools/v3/assert"

	"github.com/mpapenbr/racenav/pkg/config"
	"github.com/mpapenbr/racenav/pkg/events"
)

const trackFile = "../../track/testdata/oval.yaml"

func TestRunText(t *testing.T) {
	var out bytes.Buffer
	err := Run(context.Background(), trackFile, config.DefaultConfig(), &out)
	gta.NilError(t, err)

	text := out.String()
	assert.Contains(t, text, "race finished")
	assert.Contains(t, text, "fast")
	assert.Contains(t, text, "complete, position 1")
	assert.Contains(t, text, "POS")
}

func TestRunJSON(t *testing.T) {
	var out bytes.Buffer
	cfg := config.DefaultConfig()
	cfg.Output = "json"
	cfg.Laps = 1
	gta.NilError(t, Run(context.Background(), trackFile, cfg, &out))

	kinds := map[string]int{}
	kind := jp.MustParseString("$.kind")
	sc := bufio.NewScanner(&out)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		obj, err := oj.ParseString(sc.Text())
		gta.NilError(t, err)
		for _, k := range kind.Get(obj) {
			kinds[k.(string)]++
		}
	}
	assert.Equal(t, 1, kinds[string(events.SessionStarted)])
	assert.Equal(t, 1, kinds[string(events.SessionFinished)])
	assert.Equal(t, 2, kinds[string(events.Completed)])
	assert.GreaterOrEqual(t, kinds[string(events.LapCompleted)], 2)
	assert.Positive(t, kinds[string(events.Standings)])
}

func TestRunPracticeStopsAfterDuration(t *testing.T) {
	var out bytes.Buffer
	cfg := config.DefaultConfig()
	cfg.Mode = "practice"
	cfg.Duration = 5 * time.Second
	gta.NilError(t, Run(context.Background(), trackFile, cfg, &out))
	assert.NotContains(t, out.String(), "race finished")
	assert.Contains(t, out.String(), "in-progress")
}

func TestRunErrors(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Mode = "demolition"
	err := Run(context.Background(), trackFile, cfg, &bytes.Buffer{})
	assert.Error(t, err)

	err = Run(context.Background(), "missing.yaml", config.DefaultConfig(), &bytes.Buffer{})
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	gta.NilError(t, os.WriteFile(bad, []byte("version: 9.0.0\nname: x\n"), 0o600))
	err = Run(context.Background(), bad, config.DefaultConfig(), &bytes.Buffer{})
	assert.Error(t, err)
}

func TestRunInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Run(ctx, trackFile, config.DefaultConfig(), &bytes.Buffer{})
	assert.Error(t, err)
}
