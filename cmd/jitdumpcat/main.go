// Command jitdumpcat inspects a jitdump file written by jitprobeagent,
// without needing perf installed. It supports two subcommands: show, which
// prints a table of the records in the file, and verify, which re-walks the
// file checking the structural invariants jitprobeagent promises to uphold
// (monotonic code_index, non-overlapping addresses is left to perf itself).
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/urfave/cli.v1"

	"github.com/jitprobe/rvmti-agent/internal/jitdump"
)

func main() {
	app := cli.NewApp()
	app.Name = "jitdumpcat"
	app.Usage = "inspect jitdump files produced by jitprobeagent"
	app.Commands = []cli.Command{
		showCommand,
		verifyCommand,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "jitdumpcat:", err)
		os.Exit(1)
	}
}

var showCommand = cli.Command{
	Action:    show,
	Name:      "show",
	Usage:     "print the records in a jitdump file as a table",
	ArgsUsage: "<file>",
	Flags: []cli.Flag{
		cli.BoolFlag{
			Name:  "raw",
			Usage: "also print CODE_DEBUG_INFO line-table entries",
		},
	},
	Description: `The show command decodes a jitdump file record by record and
renders CODE_LOAD, CODE_DEBUG_INFO, and CODE_CLOSE records as a table.`,
}

var verifyCommand = cli.Command{
	Action:      verify,
	Name:        "verify",
	Usage:       "check a jitdump file's structural invariants",
	ArgsUsage:   "<file>",
	Description: `The verify command walks a jitdump file and reports any code_index that is not strictly increasing, and any CODE_DEBUG_INFO record whose code_addr does not match the CODE_LOAD record written immediately after it.`,
}

func show(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.NewExitError("show requires a file argument", 1)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	hdr, err := jitdump.DecodeHeader(f)
	if err != nil {
		return err
	}
	fmt.Printf("pid=%d elf_mach=%d timestamp=%d\n", hdr.Pid, hdr.ElfMach, hdr.Timestamp)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"kind", "timestamp", "code_index", "address", "size", "name"})

	raw := c.Bool("raw")
	var debugRows [][]string

	for {
		rec, err := jitdump.DecodeRecord(f)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		switch rec.ID {
		case jitdump.RecordCodeLoad:
			cl, err := jitdump.DecodeCodeLoad(rec.Body)
			if err != nil {
				return err
			}
			table.Append([]string{
				colorKind("CODE_LOAD", color.FgGreen),
				fmt.Sprintf("%d", rec.Timestamp),
				fmt.Sprintf("%d", cl.CodeIndex),
				fmt.Sprintf("0x%x", cl.CodeAddr),
				fmt.Sprintf("%d", cl.CodeSize),
				cl.Name,
			})
		case jitdump.RecordCodeDebugInfo:
			di, err := jitdump.DecodeDebugInfo(rec.Body)
			if err != nil {
				return err
			}
			table.Append([]string{
				colorKind("CODE_DEBUG_INFO", color.FgYellow),
				fmt.Sprintf("%d", rec.Timestamp),
				"",
				fmt.Sprintf("0x%x", di.CodeAddr),
				fmt.Sprintf("%d entries", len(di.Entries)),
				"",
			})
			if raw {
				for _, e := range di.Entries {
					debugRows = append(debugRows, []string{
						fmt.Sprintf("0x%x", di.CodeAddr),
						fmt.Sprintf("0x%x", e.Addr),
						fmt.Sprintf("%d", e.Lineno),
						e.Path,
					})
				}
			}
		case jitdump.RecordCodeClose:
			table.Append([]string{
				colorKind("CODE_CLOSE", color.FgRed),
				fmt.Sprintf("%d", rec.Timestamp),
				"", "", "", "",
			})
		default:
			table.Append([]string{
				fmt.Sprintf("unknown(%d)", rec.ID),
				fmt.Sprintf("%d", rec.Timestamp),
				"", "", "", "",
			})
		}
	}
	table.Render()

	if raw && len(debugRows) > 0 {
		fmt.Println()
		dt := tablewriter.NewWriter(os.Stdout)
		dt.SetHeader([]string{"code_addr", "pc", "line", "path"})
		dt.AppendBulk(debugRows)
		dt.Render()
	}
	return nil
}

func colorKind(kind string, attr color.Attribute) string {
	return color.New(attr).Sprint(kind)
}

func verify(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.NewExitError("verify requires a file argument", 1)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := jitdump.DecodeHeader(f); err != nil {
		return err
	}

	var lastIndex uint64
	haveIndex := false
	problems := 0

	var pendingDebugInfo *jitdump.DecodedDebugInfo

	for {
		rec, err := jitdump.DecodeRecord(f)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		switch rec.ID {
		case jitdump.RecordCodeLoad:
			cl, err := jitdump.DecodeCodeLoad(rec.Body)
			if err != nil {
				return err
			}
			if haveIndex && cl.CodeIndex <= lastIndex {
				fmt.Printf("code_index not increasing: %d after %d\n", cl.CodeIndex, lastIndex)
				problems++
			}
			lastIndex = cl.CodeIndex
			haveIndex = true

			if pendingDebugInfo != nil && pendingDebugInfo.CodeAddr != cl.CodeAddr {
				fmt.Printf("debug info code_addr 0x%x does not match following CODE_LOAD 0x%x\n", pendingDebugInfo.CodeAddr, cl.CodeAddr)
				problems++
			}
			pendingDebugInfo = nil
		case jitdump.RecordCodeDebugInfo:
			di, err := jitdump.DecodeDebugInfo(rec.Body)
			if err != nil {
				return err
			}
			if pendingDebugInfo != nil {
				fmt.Printf("debug info for code_addr 0x%x never followed by a CODE_LOAD\n", pendingDebugInfo.CodeAddr)
				problems++
			}
			pendingDebugInfo = &di
		}
	}

	if pendingDebugInfo != nil {
		fmt.Printf("debug info for code_addr 0x%x never followed by a CODE_LOAD\n", pendingDebugInfo.CodeAddr)
		problems++
	}

	if problems == 0 {
		fmt.Println("ok")
		return nil
	}
	return cli.NewExitError(fmt.Sprintf("%d problem(s) found", problems), 1)
}
