// Package certificate fills the participation certificate PDF template
// with a recipient's name and certificate text and uploads the result as
// an email-attachable artifact.
package certificate

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/aws-educate-tw/tpet-pipeline/internal/storage"
)

const (
	fontSizeName = 32
	fontSizeText = 18

	nameOffsetX = 365
	nameOffsetY = 210
	textOffsetX = 250
	textOffsetY = 265

	// Latin names render in the brand font; anything wider falls back to
	// a font with CJK coverage.
	latinFont = "AmazonEmber-Regular"
	cjkFont   = "NotoSansTC-Regular"
)

// Result is one generated certificate: the uploaded object key plus the
// raw bytes for direct attachment.
type Result struct {
	Key      string
	FileName string
	PDF      []byte
}

// Generator renders certificates from a fixed PDF template. The template
// is fetched from object storage once and cached on local disk for the
// lifetime of the process.
type Generator struct {
	store       *storage.ObjectStore
	templateKey string
	cacheDir    string

	mu           sync.Mutex
	templatePath string
}

// NewGenerator creates a Generator. cacheDir may be empty, in which case
// the system temp dir is used.
func NewGenerator(store *storage.ObjectStore, templateKey, cacheDir string) *Generator {
	if cacheDir == "" {
		cacheDir = os.TempDir()
	}
	return &Generator{store: store, templateKey: templateKey, cacheDir: cacheDir}
}

// InstallFonts registers the TTF files in dir with the PDF engine so the
// brand and CJK fonts resolve by name. Call once at startup.
func InstallFonts(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read font dir %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".ttf" {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return fmt.Errorf("no ttf fonts in %s", dir)
	}
	if err := api.InstallFonts(paths); err != nil {
		return fmt.Errorf("install fonts: %w", err)
	}
	return nil
}

// Generate overlays the participant name and certificate text on the
// template, uploads the result, and returns it. Any failure is a hard
// failure; the caller decides what it means for the email send.
func (g *Generator) Generate(ctx context.Context, runID, participantName, certificateText string) (*Result, error) {
	if participantName == "" {
		return nil, fmt.Errorf("participant name is required")
	}
	if certificateText == "" {
		return nil, fmt.Errorf("certificate text is required")
	}

	tmplPath, err := g.ensureTemplate(ctx)
	if err != nil {
		return nil, err
	}

	tmpl, err := os.ReadFile(tmplPath)
	if err != nil {
		return nil, fmt.Errorf("read cached template: %w", err)
	}

	withName, err := overlayText(tmpl, participantName, fontFor(participantName), fontSizeName, nameOffsetX, nameOffsetY)
	if err != nil {
		return nil, fmt.Errorf("overlay name: %w", err)
	}
	final, err := overlayText(withName, certificateText, fontFor(certificateText), fontSizeText, textOffsetX, textOffsetY)
	if err != nil {
		return nil, fmt.Errorf("overlay certificate text: %w", err)
	}

	key := fmt.Sprintf("runs/%s/certificates/%s_certificate.pdf", runID, participantName)
	if err := g.store.Put(ctx, key, final, "application/pdf"); err != nil {
		return nil, fmt.Errorf("upload certificate: %w", err)
	}

	return &Result{
		Key:      key,
		FileName: participantName + "_certificate.pdf",
		PDF:      final,
	}, nil
}

// ensureTemplate downloads the template on first use and reuses the local
// copy afterwards.
func (g *Generator) ensureTemplate(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.templatePath != "" {
		if _, err := os.Stat(g.templatePath); err == nil {
			return g.templatePath, nil
		}
		g.templatePath = ""
	}

	data, err := g.store.Get(ctx, g.templateKey)
	if err != nil {
		return "", fmt.Errorf("fetch certificate template: %w", err)
	}

	path := filepath.Join(g.cacheDir, "certificate_template.pdf")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("cache certificate template: %w", err)
	}
	g.templatePath = path
	return path, nil
}

func overlayText(pdf []byte, text, font string, points, offX, offY int) ([]byte, error) {
	desc := fmt.Sprintf(
		"font:%s, points:%d, pos:bl, offset:%d %d, fillcolor:#000000, rot:0, scale:1 abs, op:1",
		font, points, offX, offY)
	wm, err := api.TextWatermark(text, desc, true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("build text overlay: %w", err)
	}

	var out bytes.Buffer
	if err := api.AddWatermarks(bytes.NewReader(pdf), &out, nil, wm, model.NewDefaultConfiguration()); err != nil {
		return nil, fmt.Errorf("apply text overlay: %w", err)
	}
	return out.Bytes(), nil
}

func fontFor(s string) string {
	for _, r := range s {
		if r > 127 {
			return cjkFont
		}
	}
	return latinFont
}
