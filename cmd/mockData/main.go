// mockData writes a demo upload directory: generated item images in several
// size variants, the manifest describing them and a config pointing at both.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/i5heu/ouroboros-sprite/internal/config"
	"github.com/i5heu/ouroboros-sprite/internal/metadataStore"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// every size variant an attachment may have, with its width and height range
var variants = []struct {
	name       string
	width      int
	minHeight  int
	maxHeight  int
	coverageOf int // 1 in coverageOf attachments lacks the variant
}{
	{name: "thumbnail", width: 150, minHeight: 80, maxHeight: 150},
	{name: "medium", width: 300, minHeight: 150, maxHeight: 400, coverageOf: 4},
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		logrus.WithError(err).Error("mockData failed")
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("mockData", flag.ContinueOnError)
	path := fs.String("path", "./demo", "directory receiving uploads/, manifest.yaml and sprite.yaml")
	items := fs.Int("items", 20, "number of items to create")
	randSeed := fs.Int64("seed", time.Now().UnixNano(), "rand seed - useful for reproducible data")
	if err := fs.Parse(args); err != nil {
		return err
	}

	log := logrus.New()
	rng := rand.New(rand.NewSource(*randSeed))
	uploads := filepath.Join(*path, "uploads")
	startTime := time.Now()

	var manifest metadataStore.Manifest
	for i := 1; i <= *items; i++ {
		itemID := int64(i)
		attachmentID := int64(1000 + i)
		dir := fmt.Sprintf("%d/%02d", startTime.Year(), 1+rng.Intn(12))
		if err := os.MkdirAll(filepath.Join(uploads, dir), 0o755); err != nil {
			return fmt.Errorf("mkdir: %w", err)
		}

		attachment := metadataStore.Attachment{
			ID:    attachmentID,
			File:  fmt.Sprintf("%s/item-%d.png", dir, i),
			Sizes: map[string]metadataStore.Size{},
		}
		c := color.NRGBA{R: uint8(rng.Intn(256)), G: uint8(rng.Intn(256)), B: uint8(rng.Intn(256)), A: 255}

		for _, v := range variants {
			if v.coverageOf > 0 && rng.Intn(v.coverageOf) == 0 {
				continue
			}
			height := v.minHeight + rng.Intn(v.maxHeight-v.minHeight+1)
			file := fmt.Sprintf("item-%d-%dx%d.png", i, v.width, height)
			if err := writePNG(filepath.Join(uploads, dir, file), v.width, height, c); err != nil {
				return err
			}
			attachment.Sizes[v.name] = metadataStore.Size{
				File:     file,
				Width:    v.width,
				Height:   height,
				MimeType: "image/png",
			}
		}

		manifest.Items = append(manifest.Items, metadataStore.Item{ID: itemID, Attachment: attachmentID})
		manifest.Attachments = append(manifest.Attachments, attachment)
	}

	if err := writeYAML(filepath.Join(*path, "manifest.yaml"), manifest); err != nil {
		return err
	}

	conf := config.Default()
	conf.DataDir = "data"
	conf.UploadDir = "uploads"
	conf.Manifest = "manifest.yaml"
	if err := writeYAML(filepath.Join(*path, "sprite.yaml"), conf); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"items":    *items,
		"path":     *path,
		"duration": time.Since(startTime),
	}).Info("mock data written")
	return nil
}

// writePNG draws a horizontal gradient so slices stay distinguishable in the
// composite.
func writePNG(path string, w, h int, c color.NRGBA) error {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			shade := uint8(x * 255 / w)
			img.SetNRGBA(x, y, color.NRGBA{R: c.R ^ shade, G: c.G, B: c.B, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func writeYAML(path string, v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	return os.WriteFile(path, data, 0o644)
}
