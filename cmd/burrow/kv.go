package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cuemby/burrow/pkg/crdt"
	"github.com/cuemby/burrow/pkg/data"
)

var setCmd = &cobra.Command{
	Use:   "set <name> <value>",
	Short: "Write a register",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, closeDB, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer closeDB()

		key := crdt.Key{Name: args[0], Kind: crdt.KindReg}
		rctx, err := d.Get(key)
		if err != nil {
			return err
		}
		return d.Update(key, rctx.AddCtx(d.Actor()), func(v *data.Data, ctx crdt.AddCtx) crdt.Op {
			// Kind is part of the composite key, so v is always Nil or Reg.
			reg, _ := v.Reg()
			return data.RegOp(reg.Write(crdt.PrimStr(args[1]), ctx))
		})
	},
}

var getCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Read a register",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, closeDB, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer closeDB()

		key := crdt.Key{Name: args[0], Kind: crdt.KindReg}
		rctx, err := d.Get(key)
		if err != nil {
			return err
		}
		if rctx.Val.Kind() == crdt.KindNil {
			return fmt.Errorf("%q not found", args[0])
		}
		reg, err := rctx.Val.Reg()
		if err != nil {
			return err
		}
		vals := make([]string, 0, 1)
		for _, p := range reg.Read().Val {
			s, err := p.Str()
			if err != nil {
				return err
			}
			vals = append(vals, s)
		}
		// Concurrent writes that have not been overwritten since are all
		// retained; surface every one rather than silently picking a winner.
		fmt.Println(strings.Join(vals, "\t"))
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <name>",
	Short: "Remove a register",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, closeDB, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer closeDB()

		key := crdt.Key{Name: args[0], Kind: crdt.KindReg}
		rctx, err := d.Get(key)
		if err != nil {
			return err
		}
		return d.Rm(key, rctx.RmCtx())
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List every live key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, closeDB, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer closeDB()

		entries, err := d.Iter()
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%s\t%s\n", e.Key.Kind, e.Key.Name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(lsCmd)
}
