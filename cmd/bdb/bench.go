package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/andreyvit/bdb"
)

var benchCmd = &cobra.Command{
	Use:         "bench",
	Short:       "Measure set and get throughput in a scratch database",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{"db": "none"},
	RunE: func(cmd *cobra.Command, args []string) error {
		n := viper.GetInt("ops")
		keys := viper.GetInt("keys")
		if n <= 0 || keys <= 0 {
			return fmt.Errorf("--ops and --keys must be positive")
		}

		dir, err := os.MkdirTemp("", "bdb-bench-*")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "MODE\tOP\tOPS\tTOTAL\tPER OP")
		for _, mode := range []struct {
			name string
			opt  bdb.Options
		}{
			{"cached", bdb.Options{}},
			{"cached-nosave", bdb.Options{NoAutoSave: true}},
			{"readthrough", bdb.Options{NoCache: true}},
		} {
			opt := mode.opt
			opt.Logger = newLogger(viper.GetBool("verbose"))
			if viper.GetBool("bolt") {
				opt.Storage = bdb.BoltStorage(filepath.Join(dir, mode.name+".bolt"))
			} else {
				opt.Path = filepath.Join(dir, mode.name+".bdb")
			}
			results, err := runBench(opt, n, keys)
			if err != nil {
				return err
			}
			for _, r := range results {
				fmt.Fprintf(w, "%s\t%s\t%d\t%v\t%v\n", mode.name, r.op, n, r.total.Round(time.Microsecond), (r.total / time.Duration(n)).Round(time.Nanosecond))
			}
		}
		return w.Flush()
	},
}

type benchResult struct {
	op    string
	total time.Duration
}

func runBench(opt bdb.Options, n, keys int) ([]benchResult, error) {
	bench, err := bdb.Open(opt)
	if err != nil {
		return nil, err
	}
	defer bench.Close()

	var results []benchResult
	measure := func(op string, f func(i int)) {
		start := time.Now()
		for i := 0; i < n; i++ {
			f(i)
		}
		results = append(results, benchResult{op, time.Since(start)})
	}

	measure("set", func(i int) {
		bench.Set(fmt.Sprintf("bench.k%d", i%keys), i)
	})
	measure("get", func(i int) {
		bench.Get(fmt.Sprintf("bench.k%d", i%keys))
	})
	measure("add", func(i int) {
		bench.Add("bench.counter", 1)
	})
	measure("push", func(i int) {
		bench.Push("bench.log", i)
	})
	return results, bench.Save()
}

func init() {
	key := "ops"
	benchCmd.Flags().Int(key, 1000, "operations per benchmark")
	key = "keys"
	benchCmd.Flags().Int(key, 100, "distinct keys to spread sets and gets over")
}
