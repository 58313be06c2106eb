package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/FocuswithJustin/versecite/internal/citeindex"
	"github.com/FocuswithJustin/versecite/internal/validation"
)

// IndexGroup contains citation index operations.
type IndexGroup struct {
	Add     IndexAddCmd     `cmd:"" help:"Scan files and store their citations"`
	List    IndexListCmd    `cmd:"" help:"List indexed documents"`
	Query   IndexQueryCmd   `cmd:"" help:"Find citations of a book"`
	Remove  IndexRemoveCmd  `cmd:"" help:"Remove a document"`
	Export  IndexExportCmd  `cmd:"" help:"Export the index as xz-compressed JSON lines"`
	Reindex IndexReindexCmd `cmd:"" help:"Rescan stored texts with the current parser settings"`
}

// IndexFlags selects the index database.
type IndexFlags struct {
	DB string `name:"db" help:"Citation index database" required:"" type:"path" env:"VERSECITE_DB"`
}

func (f IndexFlags) open(g *Globals) (*citeindex.Index, error) {
	return citeindex.OpenWithTexts(f.DB, g.parser())
}

// IndexAddCmd indexes files by path. XML files are indexed by their text
// content.
type IndexAddCmd struct {
	IndexFlags
	Files []string `arg:"" help:"Files to index" type:"existingfile"`
	XPath string   `name:"xpath" help:"XPath selecting the text of XML files"`
}

func (c *IndexAddCmd) Run(g *Globals) error {
	ix, err := c.open(g)
	if err != nil {
		return err
	}
	defer ix.Close()

	ctx := context.Background()
	for _, path := range c.Files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		asXML := validation.DetectKind(data, path) == validation.KindXML
		text, err := loadText(path, data, asXML, c.XPath)
		if err != nil {
			return err
		}
		doc, err := ix.Add(ctx, path, text)
		if err != nil {
			return fmt.Errorf("indexing %s: %w", path, err)
		}
		fmt.Fprintf(g.stdout, "%s  %s  (%d references, %d diagnostics)\n",
			doc.ID, doc.Name, doc.RefCount, doc.DiagnosticCount)
	}
	return nil
}

// IndexListCmd lists indexed documents.
type IndexListCmd struct {
	IndexFlags
	JSON bool `name:"json" help:"Output as JSON"`
}

func (c *IndexListCmd) Run(g *Globals) error {
	ix, err := c.open(g)
	if err != nil {
		return err
	}
	defer ix.Close()

	docs, err := ix.Documents(context.Background())
	if err != nil {
		return err
	}
	if c.JSON {
		enc := json.NewEncoder(g.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(docs)
	}
	if len(docs) == 0 {
		fmt.Fprintln(g.stdout, "No documents indexed.")
		return nil
	}
	for _, d := range docs {
		fmt.Fprintf(g.stdout, "%s  %-30s %4d refs  %s\n", d.ID, d.Name, d.RefCount, d.IndexedAt)
	}
	return nil
}

// IndexQueryCmd prints every stored reference to a book.
type IndexQueryCmd struct {
	IndexFlags
	Book    string `help:"Book name, matched exactly as written" required:""`
	Chapter int    `help:"Only references touching this chapter (0 for any)" default:"0"`
}

func (c *IndexQueryCmd) Run(g *Globals) error {
	ix, err := c.open(g)
	if err != nil {
		return err
	}
	defer ix.Close()

	hits, err := ix.Query(context.Background(), c.Book, c.Chapter)
	if err != nil {
		return err
	}
	for _, h := range hits {
		fmt.Fprintf(g.stdout, "%s#%d  %s\n", h.DocumentName, h.Ordinal, h.Reference)
	}
	return nil
}

// IndexRemoveCmd deletes one document.
type IndexRemoveCmd struct {
	IndexFlags
	ID string `arg:"" help:"Document ID"`
}

func (c *IndexRemoveCmd) Run(g *Globals) error {
	ix, err := c.open(g)
	if err != nil {
		return err
	}
	defer ix.Close()

	if err := ix.Remove(context.Background(), c.ID); err != nil {
		return err
	}
	fmt.Fprintf(g.stdout, "Removed %s\n", c.ID)
	return nil
}

// IndexExportCmd writes the index to a .jsonl.xz file.
type IndexExportCmd struct {
	IndexFlags
	Out string `short:"o" help:"Output file (- for stdout)" required:""`
}

func (c *IndexExportCmd) Run(g *Globals) error {
	ix, err := c.open(g)
	if err != nil {
		return err
	}
	defer ix.Close()

	if c.Out == "-" {
		return ix.Export(context.Background(), g.stdout)
	}
	f, err := os.Create(c.Out)
	if err != nil {
		return fmt.Errorf("creating %s: %w", c.Out, err)
	}
	if err := ix.Export(context.Background(), f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// IndexReindexCmd rescans every stored text.
type IndexReindexCmd struct {
	IndexFlags
}

func (c *IndexReindexCmd) Run(g *Globals) error {
	ix, err := c.open(g)
	if err != nil {
		return err
	}
	defer ix.Close()

	n, err := ix.Reindex(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(g.stdout, "Reindexed %d documents\n", n)
	return nil
}
