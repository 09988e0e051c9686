package extract

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// OOXML documents are zip containers of XML parts. Word keeps its body in
// word/document.xml with text in <w:t> runs grouped into <w:p> paragraphs;
// PowerPoint keeps one part per slide under ppt/slides/ with the same shape
// in the drawing namespace (<a:t> runs, <a:p> paragraphs). Both parse with
// the same token walk, so no full OOXML model is needed here.

func docxText(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("opening docx: %w", err)
	}
	defer zr.Close()

	var body *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			body = f
			break
		}
	}
	if body == nil {
		return "", fmt.Errorf("docx has no word/document.xml part")
	}

	rc, err := body.Open()
	if err != nil {
		return "", fmt.Errorf("reading docx body: %w", err)
	}
	defer rc.Close()

	var sb strings.Builder
	if err := runText(rc, &sb); err != nil {
		return "", fmt.Errorf("parsing docx body: %w", err)
	}
	return strings.TrimSpace(sb.String()), nil
}

func pptxText(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("opening pptx: %w", err)
	}
	defer zr.Close()

	var slides []*zip.File
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "ppt/slides/slide") && strings.HasSuffix(f.Name, ".xml") {
			slides = append(slides, f)
		}
	}
	// Zip order is arbitrary and lexical order puts slide10 before slide2.
	sort.Slice(slides, func(i, j int) bool {
		return slideNumber(slides[i].Name) < slideNumber(slides[j].Name)
	})

	var sb strings.Builder
	for _, slide := range slides {
		rc, err := slide.Open()
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", slide.Name, err)
		}
		err = runText(rc, &sb)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("parsing %s: %w", slide.Name, err)
		}
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String()), nil
}

func slideNumber(name string) int {
	digits := strings.TrimSuffix(strings.TrimPrefix(name, "ppt/slides/slide"), ".xml")
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return n
}

// runText appends the character data of <t> runs to sb, closing each <p>
// with a blank line and each <br> with a newline so the chunker sees
// paragraph boundaries.
func runText(r io.Reader, sb *strings.Builder) error {
	dec := xml.NewDecoder(r)
	inRun := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch el := tok.(type) {
		case xml.StartElement:
			if el.Name.Local == "t" {
				inRun = true
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inRun = false
			case "p":
				sb.WriteString("\n\n")
			case "br":
				sb.WriteString("\n")
			}
		case xml.CharData:
			if inRun {
				sb.Write(el)
			}
		}
	}
}
