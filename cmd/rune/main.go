package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/runelang/rune/hash"
	"github.com/runelang/rune/modules"
	"github.com/runelang/rune/registry"
	"github.com/runelang/rune/version"
	"github.com/runelang/rune/workspace"
)

var log = logrus.New()

func main() {
	app := &cli.Command{
		Name:  "rune",
		Usage: "Developer tooling for the rune runtime",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log verbosity (debug, info, warn, error)",
				Value: "warn",
				Action: func(_ context.Context, _ *cli.Command, s string) error {
					level, err := logrus.ParseLevel(s)
					if err != nil {
						return err
					}
					log.SetLevel(level)
					return nil
				},
			},
		},
		Commands: []*cli.Command{
			hashCommand,
			functionsCommand,
			workspaceCommand,
			versionCommand,
		},
	}
	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

// hashCommand computes the type hash of item paths, the identity every
// runtime lookup pivots on.
var hashCommand = &cli.Command{
	Name:      "hash",
	Usage:     "Compute the type hash of one or more item paths",
	ArgsUsage: "<path>...",
	Action: func(_ context.Context, cmd *cli.Command) error {
		if cmd.Args().Len() == 0 {
			return fmt.Errorf("expected at least one item path")
		}
		for _, arg := range cmd.Args().Slice() {
			item, err := hash.ParseItem(arg)
			if err != nil {
				return err
			}
			fmt.Printf("%s = %s\n", item, hash.Type(item))
		}
		return nil
	},
}

// functionsCommand lists the native signatures of the default context.
var functionsCommand = &cli.Command{
	Name:  "functions",
	Usage: "List the native functions of the default context",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "prefix",
			Usage: "Only list functions under this item prefix",
		},
	},
	Action: func(_ context.Context, cmd *cli.Command) error {
		ctx, err := modules.DefaultContext(true)
		if err != nil {
			return err
		}

		var prefix *hash.Item
		if p := cmd.String("prefix"); p != "" {
			prefix, err = hash.ParseItem(p)
			if err != nil {
				return err
			}
		}

		signatures := collectSignatures(ctx, prefix)
		for _, sig := range signatures {
			fmt.Println(sig)
		}
		log.WithField("count", len(signatures)).Debug("listed functions")
		return nil
	},
}

func collectSignatures(ctx *registry.Context, prefix *hash.Item) []string {
	var roots []*hash.Item
	if prefix != nil {
		roots = append(roots, prefix)
	} else {
		roots = append(roots, hash.CrateItem("std"))
	}

	seen := make(map[string]struct{})
	var out []string
	var walk func(item *hash.Item)
	walk = func(item *hash.Item) {
		if meta, ok := ctx.LookupMeta(item); ok {
			if sig, ok := ctx.LookupSignature(meta.Hash); ok {
				text := sig.String()
				if _, dup := seen[text]; !dup {
					seen[text] = struct{}{}
					out = append(out, text)
				}
			}
		}
		for _, component := range ctx.IterComponents(item) {
			walk(item.Extended(component))
		}
	}
	for _, root := range roots {
		walk(root)
	}
	sort.Strings(out)
	return out
}

// workspaceCommand lists the entry points of a project manifest.
var workspaceCommand = &cli.Command{
	Name:      "workspace",
	Usage:     "List the entry points declared by a manifest",
	ArgsUsage: "<Rune.toml>",
	Action: func(_ context.Context, cmd *cli.Command) error {
		path := cmd.Args().First()
		if path == "" {
			path = "Rune.toml"
		}
		m, err := workspace.Load(path)
		if err != nil {
			return err
		}
		fmt.Printf("package %s %s\n", m.Package.Name, m.Package.Version)
		for _, entry := range m.EntryPoints() {
			fmt.Printf("  %-8s %-16s %s\n", entry.Kind, entry.Name, entry.Path)
		}
		return nil
	},
}

var versionCommand = &cli.Command{
	Name:  "version",
	Usage: "Print the version",
	Action: func(_ context.Context, _ *cli.Command) error {
		fmt.Println(version.Version())
		return nil
	},
}
