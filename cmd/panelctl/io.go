package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"MacroPanel/internal/domain/models"
	"MacroPanel/pkg/panelio"
)

func isXLSX(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xlsx")
}

func readPanel(path string) (models.Panel, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: --in is required", models.ErrConfig)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if isXLSX(path) {
		return panelio.ReadXLSX(f)
	}
	return panelio.ReadCSV(f)
}

// writePanel writes CSV to stdout when path is empty or "-".
func writePanel(stdout io.Writer, path string, p models.Panel) error {
	if path == "" || path == "-" {
		return panelio.WriteCSV(stdout, p)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if isXLSX(path) {
		err = panelio.WriteXLSX(f, p)
	} else {
		err = panelio.WriteCSV(f, p)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}
