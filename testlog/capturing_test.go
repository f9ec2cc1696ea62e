package testlog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/log"
)

func TestCaptureLogger(t *testing.T) {
	logger, logs := CaptureLogger(t, log.LevelInfo)
	child := logger.New("contract", "HashStore")
	child.Info("submitted transaction", "gas", uint64(52500))
	child.Debug("not captured below level")

	rec := logs.FindLog(log.LevelInfo, "submitted")
	require.NotNil(t, rec)
	require.Equal(t, uint64(52500), rec.AttrValue("gas"))
	require.Equal(t, "HashStore", rec.AttrValue("contract"))
	require.Nil(t, rec.AttrValue("missing"))
	require.Empty(t, logs.FindLogs("not captured"))

	logs.Clear()
	require.Nil(t, logs.FindLog(log.LevelInfo, "submitted"))
}
