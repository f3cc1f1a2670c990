// Command fsck checks an extentfs image's structural invariants read-only:
// `fsck [-csv report.csv] <image>`.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/blockfs/extentfs/fsck"
	"github.com/blockfs/extentfs/image"
)

func main() {
	app := &cli.App{
		Name:      "fsck",
		Usage:     "Check an extentfs image for structural consistency",
		ArgsUsage: "IMAGE",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "csv", Usage: "write violations to a CSV report"},
		},
		Action: runFsck,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("fsck: %s", err)
	}
}

func runFsck(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.Exit("missing IMAGE argument", 1)
	}

	img, err := image.Open(path)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer img.Close()

	report, err := fsck.Check(img.Bytes)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	if report.OK() {
		fmt.Println("clean")
		return nil
	}

	for _, v := range report.Violations {
		fmt.Println(v.String())
	}

	if csvPath := c.String("csv"); csvPath != "" {
		f, err := os.Create(csvPath)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		defer f.Close()
		if err := fsck.WriteCSV(f, report.Violations); err != nil {
			return cli.Exit(err.Error(), 1)
		}
	}

	return cli.Exit(fmt.Sprintf("%d violation(s) found", len(report.Violations)), 1)
}
