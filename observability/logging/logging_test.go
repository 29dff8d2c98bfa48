package logging

import (
	"bytes"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupWithWriterRenamesKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithWriter(" dcad ", "test", &buf)
	logger.Info("hello", "order", 7)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "hello", line["message"])
	require.Equal(t, "INFO", line["severity"])
	require.Equal(t, "dcad", line["service"])
	require.Equal(t, "test", line["env"])
	require.Contains(t, line, "timestamp")
	require.EqualValues(t, 7, line["order"])

	buf.Reset()
	log.Print("bridged")
	require.Contains(t, buf.String(), `"message":"bridged"`)
}

func TestSetupWithFileWritesRotatedLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dcad.log")
	logger, closer := SetupWithFile("dcad", "", FileSink{Path: path, MaxSizeMB: 1})
	logger.Warn("disk")
	require.NoError(t, closer.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"severity":"WARN"`)
	require.NotContains(t, string(raw), `"env"`)
}

func TestSetupWithFileWithoutPath(t *testing.T) {
	logger, closer := SetupWithFile("dcad", "dev", FileSink{})
	require.NotNil(t, logger)
	require.NoError(t, closer.Close())
}
