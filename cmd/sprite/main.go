package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	sprite "github.com/i5heu/ouroboros-sprite"
	"github.com/i5heu/ouroboros-sprite/pkg/render"
	"github.com/i5heu/ouroboros-sprite/pkg/types"
)

var errUsage = errors.New("usage")

func usage(out io.Writer) {
	fmt.Fprintln(out, "Usage: sprite [-config file] <command> [arguments]")
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  build [-size variant] [-class name] <item-id>...")
	fmt.Fprintln(out, "  show <hash>")
	fmt.Fprintln(out, "  list")
	fmt.Fprintln(out, "  hash [-size variant] <item-id>...")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()

	if errors.Is(err, errUsage) {
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run executes one command. The service, when opened, is closed before run
// returns.
func run(ctx context.Context, args []string, out io.Writer) (err error) {
	fs := flag.NewFlagSet("sprite", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() { usage(out) }
	configPath := fs.String("config", "sprite.yaml", "path to the YAML configuration")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	if fs.NArg() < 1 {
		usage(out)
		return errUsage
	}

	args = fs.Args()
	switch args[0] {
	case "hash":
		return hashCmd(args[1:], out)
	case "build", "show", "list":
	default:
		fmt.Fprintf(out, "Unknown command: %s\n", args[0])
		return errUsage
	}

	s, err := open(ctx, *configPath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(context.Background()); cerr != nil {
			err = errors.Join(err, fmt.Errorf("closing: %w", cerr))
		}
	}()

	switch args[0] {
	case "build":
		return buildCmd(ctx, s, args[1:], out)
	case "show":
		return showCmd(ctx, s, args[1:], out)
	default:
		return listCmd(ctx, s, out)
	}
}

func open(ctx context.Context, configPath string) (*sprite.Sprite, error) {
	conf, err := sprite.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	s, err := sprite.New(conf)
	if err != nil {
		return nil, fmt.Errorf("initializing: %w", err)
	}
	if err := s.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting: %w", err)
	}
	return s, nil
}

func hashCmd(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("hash", flag.ContinueOnError)
	fs.SetOutput(out)
	size := fs.String("size", types.DefaultSizeVariant, "size variant")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	items, err := parseItems(fs.Args())
	if err != nil {
		return err
	}
	h, err := types.DeriveHash(items, *size)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, h)
	return nil
}

func buildCmd(ctx context.Context, s *sprite.Sprite, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	fs.SetOutput(out)
	size := fs.String("size", "", "size variant, defaults to the configured one")
	class := fs.String("class", "", "CSS class of the style rule")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	items, err := parseItems(fs.Args())
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(out, "Usage: sprite build [-size variant] [-class name] <item-id>...")
		return errUsage
	}

	rec, err := s.Get(ctx, items, *size)
	if err != nil {
		return fmt.Errorf("building sprite: %w", err)
	}
	printRecord(out, rec, *class)
	return nil
}

func showCmd(ctx context.Context, s *sprite.Sprite, args []string, out io.Writer) error {
	if len(args) < 1 {
		fmt.Fprintln(out, "Usage: sprite show <hash>")
		return errUsage
	}

	rec, ok, err := s.Lookup(ctx, types.ContentHash(args[0]))
	if err != nil {
		return fmt.Errorf("loading sprite: %w", err)
	}
	if !ok {
		return fmt.Errorf("no sprite stored under %s", args[0])
	}
	printRecord(out, rec, "")
	return nil
}

func listCmd(ctx context.Context, s *sprite.Sprite, out io.Writer) error {
	records, err := s.List(ctx)
	if err != nil {
		return fmt.Errorf("listing sprites: %w", err)
	}
	for _, rec := range records {
		fmt.Fprintf(out, "%s  %-10s %3d items  %s\n", rec.Hash, rec.SizeVariant, len(rec.Items), rec.ImageURL)
	}
	fmt.Fprintf(out, "%d sprites\n", len(records))
	return nil
}

func printRecord(out io.Writer, rec types.SpriteRecord, class string) {
	fmt.Fprintf(out, "Hash:   %s\n", rec.Hash)
	fmt.Fprintf(out, "Size:   %s\n", rec.SizeVariant)
	fmt.Fprintf(out, "Image:  %s (%dx%d)\n", rec.ImageURL, rec.ImageWidth, rec.ImageHeight)
	if len(rec.Skipped) > 0 {
		fmt.Fprintf(out, "Skipped: %v\n", rec.Skipped)
	}
	if rec.IsEmpty() {
		fmt.Fprintln(out, "Sprite is empty.")
		return
	}

	fmt.Fprintln(out, render.StyleTag(rec, class))
	for _, pos := range render.Positions(rec) {
		fmt.Fprintf(out, "  %-8d %s\n", pos.ItemID, pos.Declaration())
	}
}

// parseItems accepts ids separated by spaces or commas.
func parseItems(args []string) ([]int64, error) {
	var items []int64
	for _, arg := range args {
		for _, field := range strings.Split(arg, ",") {
			if field == "" {
				continue
			}
			id, err := strconv.ParseInt(field, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid item id %q", field)
			}
			items = append(items, id)
		}
	}
	return items, nil
}
