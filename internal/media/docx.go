package media

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

const docxBody = "word/document.xml"

// docxParagraphs returns the text of each w:p element in word/document.xml.
// Legacy binary .doc files are not zip archives and fail here.
func docxParagraphs(data []byte) ([]string, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("docx: %w", err)
	}
	defer r.Close()

	return paragraphTexts(strings.NewReader(r.Editable().GetContent()))
}

func paragraphTexts(body io.Reader) ([]string, error) {
	var (
		paras  []string
		cur    strings.Builder
		inPara bool
		inText bool
	)
	dec := xml.NewDecoder(body)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("docx: %w", err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "p":
				inPara = true
				cur.Reset()
			case "t":
				inText = true
			case "tab":
				if inPara {
					cur.WriteByte('\t')
				}
			case "br", "cr":
				if inPara {
					cur.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				paras = append(paras, cur.String())
				inPara = false
			}
		case xml.CharData:
			if inText {
				cur.Write(el)
			}
		}
	}
	return paras, nil
}
