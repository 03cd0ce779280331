package main

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/andreyvit/bdb"
	"github.com/andreyvit/bdb/dotpath"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Print the value at key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			v := db.GetOr(key, notFound)
			if v == notFound {
				if !cmd.Flags().Changed("default") {
					return fmt.Errorf("%s: not found", key)
				}
				def, _ := cmd.Flags().GetString("default")
				var err error
				v, err = parseValue(def)
				if err != nil {
					return err
				}
			}
			return printValue(cmd.OutOrStdout(), v)
		},
	}
	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Store a YAML value at key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseValue(args[1])
			if err != nil {
				return err
			}
			db.Set(args[0], v)
			return printValue(cmd.OutOrStdout(), db.Get(args[0]))
		},
	}
	hasCmd = &cobra.Command{
		Use:   "has [key]",
		Short: "Report whether key has a value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printValue(cmd.OutOrStdout(), db.Has(args[0]))
		},
	}
	deleteCmd = &cobra.Command{
		Use:     "delete [key]",
		Aliases: []string{"del", "rm"},
		Short:   "Remove the value at key",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printValue(cmd.OutOrStdout(), db.Delete(args[0]))
		},
	}
	addCmd = &cobra.Command{
		Use:   "add [key] [amount]",
		Short: "Add a number to the value at key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return arith(cmd, args, db.Add)
		},
	}
	subtractCmd = &cobra.Command{
		Use:     "subtract [key] [amount]",
		Aliases: []string{"sub"},
		Short:   "Subtract a number from the value at key",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return arith(cmd, args, db.Subtract)
		},
	}
	pushCmd = &cobra.Command{
		Use:   "push [key] [value...]",
		Short: "Append YAML values to the sequence at key",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			values := make([]any, 0, len(args)-1)
			for _, arg := range args[1:] {
				v, err := parseValue(arg)
				if err != nil {
					return err
				}
				values = append(values, v)
			}
			seq, err := db.Push(args[0], values...)
			if err != nil {
				return err
			}
			return printValue(cmd.OutOrStdout(), seq)
		},
	}
	pullCmd = &cobra.Command{
		Use:   "pull [key] [value]",
		Short: "Remove every element equal to value from the sequence at key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseValue(args[1])
			if err != nil {
				return err
			}
			seq, err := db.Pull(args[0], bdb.Matching(v))
			if err != nil {
				return err
			}
			return printValue(cmd.OutOrStdout(), seq)
		},
	}
	allCmd = &cobra.Command{
		Use:   "all",
		Short: "Print the whole database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := dotpath.NewMap()
			for _, e := range db.All() {
				m.Set(e.ID, e.Data)
			}
			return printValue(cmd.OutOrStdout(), m)
		},
	}
	keysCmd = &cobra.Command{
		Use:   "keys",
		Short: "List root keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, k := range db.Keys() {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}
	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Remove every key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db.Clear()
			return nil
		},
	}
	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Print key count and activity counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printStats(cmd.OutOrStdout(), db)
		},
	}
)

// notFound is the GetOr default that marks a missing key.
var notFound = &struct{ byte }{}

func init() {
	getCmd.Flags().String("default", "", "YAML value to print when key is missing")
}

func printStats(w io.Writer, db *bdb.DB) error {
	keys := db.Len()
	st := db.Stats()
	_, err := fmt.Fprintf(w, "file: %v\nkeys: %d\nreads: %d\nwrites: %d\nsaves: %d\nsave_errors: %d\ndecodes: %d\nlast_size: %d\n",
		db, keys, st.Reads, st.Writes, st.Saves, st.SaveErrors, st.Decodes, st.LastSize)
	return err
}

func arith(cmd *cobra.Command, args []string, op func(string, float64) float64) error {
	amount, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("amount must be a number: %w", err)
	}
	return printValue(cmd.OutOrStdout(), normalizeResult(op(args[0], amount)))
}

func normalizeResult(f float64) any {
	if f == math.Trunc(f) && math.Abs(f) < 1<<63 {
		return int64(f)
	}
	return f
}
