// Command mkfs formats an extentfs image: `mkfs -i N [-f] [-z] <image>`.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/blockfs/extentfs/image"
	"github.com/blockfs/extentfs/layout"
	"github.com/blockfs/extentfs/mkfs"
)

func main() {
	app := &cli.App{
		Name:      "mkfs",
		Usage:     "Format an extentfs image",
		ArgsUsage: "IMAGE",
		Flags: []cli.Flag{
			&cli.UintFlag{Name: "inodes", Aliases: []string{"i"}, Required: true, Usage: "number of inodes to provision"},
			&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "overwrite an existing image"},
			&cli.BoolFlag{Name: "zero", Aliases: []string{"z"}, Usage: "zero-fill the image before formatting (default behavior; flag kept for script compatibility)"},
			&cli.Int64Flag{Name: "size", Aliases: []string{"s"}, Value: 1024 * 1024, Usage: "image size in bytes, when creating a new image"},
		},
		Action: runMkfs,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("mkfs: %s", err)
	}
}

func runMkfs(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.Exit("missing IMAGE argument", 1)
	}

	size := c.Int64("size")
	force := c.Bool("force")

	if _, err := os.Stat(path); err == nil && !force {
		return cli.Exit(fmt.Sprintf("%s already exists; pass -f to overwrite", path), 1)
	}

	img, err := image.Create(path, size)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer img.Close()

	opts := mkfs.Options{InodeCount: uint32(c.Uint("inodes"))}
	if err := mkfs.Format(img.Bytes, size, opts); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if err := img.Sync(); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	fmt.Printf("formatted %s: %d blocks, %d inodes\n", path, size/layout.BlockSize, opts.InodeCount)
	return nil
}
