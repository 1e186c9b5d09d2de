package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/3leaps/engineshift/internal/config"
	"github.com/3leaps/engineshift/test/fakeappsearch"
)

const (
	sourceKey = "source-private-key"
	targetKey = "target-private-key"
)

// resetFlags restores every flag of the command tree to its default so
// tests do not see values from earlier executions.
func resetFlags(t *testing.T) {
	t.Helper()
	var walk func(c *cobra.Command)
	walk = func(c *cobra.Command) {
		reset := func(f *pflag.Flag) {
			if sv, ok := f.Value.(pflag.SliceValue); ok {
				_ = sv.Replace(nil)
			} else {
				_ = f.Value.Set(f.DefValue)
			}
			f.Changed = false
		}
		c.Flags().VisitAll(reset)
		c.PersistentFlags().VisitAll(reset)
		for _, child := range c.Commands() {
			walk(child)
		}
	}
	walk(rootCmd)
	config.Use(nil)
}

// execute runs the command tree with args and returns what it printed on
// stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	resetFlags(t)
	t.Cleanup(func() { resetFlags(t) })

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	rootCmd.SetContext(context.Background())
	err := rootCmd.Execute()
	rootCmd.SetArgs(nil)
	rootCmd.SetOut(nil)
	rootCmd.SetErr(nil)
	return stdout.String(), stderr.String(), err
}

// clusters starts a source and a target fake cluster.
func clusters(t *testing.T, sourceEngines ...string) (*fakeappsearch.Server, *fakeappsearch.Server) {
	t.Helper()
	src := fakeappsearch.New(t, sourceKey)
	for _, name := range sourceEngines {
		src.AddEngine(fakeappsearch.Engine{
			Name:     name,
			Language: "en",
			Schema:   map[string]string{"title": "text"},
			Synonyms: [][]string{{"park", "reserve"}},
		})
	}
	dst := fakeappsearch.New(t, targetKey)
	return src, dst
}

func clusterArgs(src, dst *fakeappsearch.Server) []string {
	return []string{
		"--source-endpoint", src.URL, "--source-key", sourceKey,
		"--target-endpoint", dst.URL, "--target-key", targetKey,
	}
}
