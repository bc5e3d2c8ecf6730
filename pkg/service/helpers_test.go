package service

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-bench/pkg/logging"
	"github.com/dd0wney/cluso-bench/pkg/snapshot"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.Counter.GetValue()
}

func mustStore(t *testing.T, dir string) snapshot.Store {
	t.Helper()
	s, err := snapshot.NewFileStore(dir, snapshot.CompressionNone, logging.NewNopLogger())
	require.NoError(t, err)
	return s
}
