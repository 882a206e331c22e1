package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"DocTalk/internal/modules/kb/domain/repository"
	"DocTalk/pkg/xerr"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
)

// FileExtractor 按扩展名分发到对应的文本解析器。
type FileExtractor struct{}

func NewFileExtractor() *FileExtractor {
	return &FileExtractor{}
}

func (e *FileExtractor) Extract(ctx context.Context, filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt", ".md":
		return string(data), nil
	case ".pdf":
		return extractPDF(data, ext)
	case ".html", ".htm":
		return extractHTML(data, ext)
	case ".doc", ".docx":
		return extractWord(data, ext)
	default:
		return "", xerr.NewUnsupportedFormatError(ext)
	}
}

func extractPDF(data []byte, ext string) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", xerr.NewExtractionError(ext, err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", xerr.NewExtractionError(ext, err)
	}
	out, err := io.ReadAll(plain)
	if err != nil {
		return "", xerr.NewExtractionError(ext, err)
	}
	return string(out), nil
}

func extractHTML(data []byte, ext string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", xerr.NewExtractionError(ext, err)
	}
	doc.Find("script, style, noscript").Remove()

	body := doc.Find("body")
	var text string
	if body.Length() > 0 {
		text = body.Text()
	} else {
		text = doc.Text()
	}
	return collapseWhitespace(text), nil
}

// extractWord 解析 WordprocessingML。
// .docx 是 zip 容器；旧式二进制 .doc 不是 zip，按损坏文件处理。
func extractWord(data []byte, ext string) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", xerr.NewExtractionError(ext, fmt.Errorf("not a word document: %w", err))
	}

	var docXML io.ReadCloser
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docXML, err = f.Open()
			if err != nil {
				return "", xerr.NewExtractionError(ext, err)
			}
			break
		}
	}
	if docXML == nil {
		return "", xerr.NewExtractionError(ext, fmt.Errorf("word/document.xml not found"))
	}
	defer docXML.Close()

	text, err := walkWordXML(docXML)
	if err != nil {
		return "", xerr.NewExtractionError(ext, err)
	}
	return text, nil
}

// walkWordXML 顺序扫描 XML token 流，取出 w:t 的文本，
// 段落（w:p）结束处补换行。
func walkWordXML(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)
	var b strings.Builder
	inText := false
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}

func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

var _ repository.Extractor = (*FileExtractor)(nil)
