package pipeline_test

import (
	"os/exec"
	"testing"
	"time"

	"github.com/ElementBaths/parsedmarc/internal/pipeline"
	"github.com/stretchr/testify/require"
)

func TestRunner(t *testing.T) {
	t.Parallel()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("skipped, binary sh not available: %v", err)
	}

	var runner pipeline.Runner

	t.Run("success", func(t *testing.T) {
		cmd := pipeline.Command{
			Path:    sh,
			Args:    []string{"-c", "echo one; echo two; echo three 1>&2"},
			Timeout: 5 * time.Second,
		}
		res, err := runner.Run(t.Context(), cmd)
		require.NoError(t, err)
		require.Equal(t, 0, res.ExitCode)
		require.Equal(t, sh, res.Path)
		require.NotZero(t, res.Started)
		require.NotZero(t, res.Stopped)
		require.False(t, res.Stopped.Before(res.Started))
		// stdout/stderr interleaving is best-effort, assert membership
		require.Len(t, res.Lines, 3)
		require.ElementsMatch(t, []string{"one", "two", "three"}, res.Lines)
	})

	t.Run("stdout order preserved", func(t *testing.T) {
		cmd := pipeline.Command{
			Path:    sh,
			Args:    []string{"-c", "printf 'a\\nb\\nc\\n'"},
			Timeout: 5 * time.Second,
		}
		res, err := runner.Run(t.Context(), cmd)
		require.NoError(t, err)
		require.Equal(t, []string{"a", "b", "c"}, res.Lines)
	})

	t.Run("nonzero exit is not an error", func(t *testing.T) {
		cmd := pipeline.Command{
			Path:    sh,
			Args:    []string{"-c", "echo boom; exit 42"},
			Timeout: 5 * time.Second,
		}
		res, err := runner.Run(t.Context(), cmd)
		require.NoError(t, err)
		require.Equal(t, 42, res.ExitCode)
		require.Equal(t, []string{"boom"}, res.Lines)
	})

	t.Run("launch error", func(t *testing.T) {
		cmd := pipeline.Command{
			Path:    "does not exist",
			Timeout: 5 * time.Second,
		}
		_, err := runner.Run(t.Context(), cmd)
		require.Error(t, err)
		var execErr *exec.Error
		require.ErrorAs(t, err, &execErr)
	})

	t.Run("timeout kills", func(t *testing.T) {
		cmd := pipeline.Command{
			Path:    sh,
			Args:    []string{"-c", "sleep 10"},
			Timeout: 100 * time.Millisecond,
		}
		start := time.Now()
		res, err := runner.Run(t.Context(), cmd)
		require.NoError(t, err)
		require.Less(t, time.Since(start), 5*time.Second)
		// killed by SIGKILL, reported shell-style
		require.Equal(t, 128+9, res.ExitCode)
	})

	t.Run("env", func(t *testing.T) {
		cmd := pipeline.Command{
			Path:    sh,
			Args:    []string{"-c", "echo $GREETING"},
			Env:     []string{"GREETING=hello"},
			Timeout: 5 * time.Second,
		}
		res, err := runner.Run(t.Context(), cmd)
		require.NoError(t, err)
		require.Equal(t, []string{"hello"}, res.Lines)
	})
}
