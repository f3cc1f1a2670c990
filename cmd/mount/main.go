// Command mount attaches an extentfs image as a FUSE filesystem:
// `mount -i IMAGE MOUNTPOINT`.
package main

import (
	"log"
	"os"

	"github.com/hanwen/go-fuse/v2/fuse/nodefs"
	"github.com/hanwen/go-fuse/v2/fuse/pathfs"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/blockfs/extentfs"
	"github.com/blockfs/extentfs/fuseshim"
	"github.com/blockfs/extentfs/image"
)

func main() {
	app := &cli.App{
		Name:      "mount",
		Usage:     "Mount an extentfs image via FUSE",
		ArgsUsage: "MOUNTPOINT",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "image", Aliases: []string{"i"}, Required: true, Usage: "path to the image file"},
			&cli.BoolFlag{Name: "debug", Usage: "log every FUSE call"},
		},
		Action: runMount,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("mount: %s", err)
	}
}

func runMount(c *cli.Context) error {
	mountpoint := c.Args().First()
	if mountpoint == "" {
		return cli.Exit("missing MOUNTPOINT argument", 1)
	}

	log := logrus.StandardLogger()

	img, err := image.Open(c.String("image"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer img.Close()

	fs, err := extentfs.New(img.Bytes)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	fs.SetLogger(log)

	nfs := pathfs.NewPathNodeFs(fuseshim.New(fs), nil)
	server, _, err := nodefs.MountRoot(mountpoint, nfs.Root(), &nodefs.Options{Debug: c.Bool("debug")})
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	log.WithFields(logrus.Fields{"image": c.String("image"), "mountpoint": mountpoint}).Info("mounted")
	server.Serve()
	return img.Sync()
}
