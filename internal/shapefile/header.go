package shapefile

import (
	"encoding/binary"
	"fmt"
	"os"
)

const (
	shpMagic   = 9994
	shpVersion = 1000

	shapeTypePolygon = 5
	shapeTypeNull    = 0
)

// checkShpHeader reads the 100-byte main file header: big-endian magic at
// offset 0, little-endian version at 28 and shape type at 32.
func checkShpHeader(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &SourceFormatError{Path: path, Reason: err.Error()}
	}
	defer f.Close()

	var hdr [100]byte
	if _, err := f.ReadAt(hdr[:], 0); err != nil {
		return &SourceFormatError{Path: path, Reason: "file shorter than main header"}
	}
	if code := binary.BigEndian.Uint32(hdr[0:4]); code != shpMagic {
		return &SourceFormatError{Path: path, Reason: fmt.Sprintf("bad file code %d", code)}
	}
	if v := binary.LittleEndian.Uint32(hdr[28:32]); v != shpVersion {
		return &SourceFormatError{Path: path, Reason: fmt.Sprintf("unsupported version %d", v)}
	}
	shapeType := binary.LittleEndian.Uint32(hdr[32:36])
	if shapeType != shapeTypePolygon && shapeType != shapeTypeNull {
		return &SourceFormatError{Path: path, Reason: fmt.Sprintf("shape type %d is not polygonal", shapeType)}
	}
	return nil
}

// readDbfRecordCount reads the record count from the fixed 32-byte dBASE
// header (little-endian uint32 at offset 4).
func readDbfRecordCount(path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, &SourceFormatError{Path: path, Reason: err.Error()}
	}
	defer f.Close()

	var hdr [32]byte
	if _, err := f.ReadAt(hdr[:], 0); err != nil {
		return 0, &SourceFormatError{Path: path, Reason: "file shorter than dbf header"}
	}
	return binary.LittleEndian.Uint32(hdr[4:8]), nil
}
