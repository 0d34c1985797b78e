package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestReadCSV(t *testing.T) {
	input := strings.Join([]string{
		"No.,Pump,Led,Dmx2Vfd,Notes",
		"1, 1, 2, 10, spare",
		",,,,",
		"2,3,4",
	}, "\n")

	rows, err := ReadCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	want := []Row{
		{No: "1", Pump: "1", Led: "2", Dmx2Vfd: "10"},
		{No: "2", Pump: "3", Led: "4"},
	}
	if len(rows) != len(want) {
		t.Fatalf("got %d rows, want %d", len(rows), len(want))
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, rows[i], want[i])
		}
	}
}

func TestReadCSV_HeaderOnly(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader("No.,Pump,Led,Dmx2Vfd\n")); !errors.Is(err, ErrNoRows) {
		t.Errorf("ReadCSV() error = %v, want ErrNoRows", err)
	}
}

func TestLoadFile_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worklist.xlsx")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	data := [][]any{
		{"No.", "Pump", "Led", "Dmx2Vfd"},
		{1, 1, 2, 10},
		{2, 3, 4, 11},
	}
	for i, row := range data {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs() error = %v", err)
	}
	f.Close()

	rows, err := LoadFile(path, "")
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[1] != (Row{No: "2", Pump: "3", Led: "4", Dmx2Vfd: "11"}) {
		t.Errorf("row 1 = %+v", rows[1])
	}
}

func TestLoadFile_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worklist.csv")
	if err := os.WriteFile(path, []byte("No.,Pump,Led,Dmx2Vfd\n1,5,6,7\n"), 0600); err != nil {
		t.Fatal(err)
	}

	rows, err := LoadFile(path, "")
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if len(rows) != 1 || rows[0].Dmx2Vfd != "7" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()
	corrupt := filepath.Join(dir, "broken.xlsx")
	if err := os.WriteFile(corrupt, []byte("not a zip"), 0600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"unsupported extension", filepath.Join(dir, "list.txt"), ErrUnsupportedFormat},
		{"missing csv", filepath.Join(dir, "missing.csv"), os.ErrNotExist},
		{"corrupt workbook", corrupt, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := LoadFile(tt.path, "")
			if err == nil {
				t.Fatal("LoadFile() error = nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("LoadFile() error = %v, want %v", err, tt.wantErr)
			}
			if rows != nil {
				t.Errorf("LoadFile() rows = %v, want nil", rows)
			}
		})
	}
}
