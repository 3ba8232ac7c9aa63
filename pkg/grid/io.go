package grid

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"os"

	"github.com/hydrolt/luraster/pkg/errors"
)

// Artifact format: the interchange raster written between pipeline
// stages and as the final deliverable.
//
//	bytes 0..7   magic "LURASTR1"
//	bytes 8..11  header length (uint32, little-endian)
//	header       JSON-encoded Spec
//	payload      Nrows*Ncols cells (int32, little-endian, row-major)
//
// The encoding has no timestamps or unordered maps, so re-running a
// stage with identical inputs reproduces a byte-identical artifact.

var magic = []byte("LURASTR1")

// Write encodes the raster to w.
func Write(w io.Writer, r *Raster) error {
	header, err := json.Marshal(r.Spec)
	if err != nil {
		return errors.Wrap(errors.ErrCodeIOWrite, err, "raster: encode header")
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(magic); err != nil {
		return errors.Wrap(errors.ErrCodeIOWrite, err, "raster: write magic")
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(header))); err != nil {
		return errors.Wrap(errors.ErrCodeIOWrite, err, "raster: write header length")
	}
	if _, err := bw.Write(header); err != nil {
		return errors.Wrap(errors.ErrCodeIOWrite, err, "raster: write header")
	}
	if err := binary.Write(bw, binary.LittleEndian, r.Cells); err != nil {
		return errors.Wrap(errors.ErrCodeIOWrite, err, "raster: write cells")
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(errors.ErrCodeIOWrite, err, "raster: flush")
	}
	return nil
}

// Read decodes a raster from r and validates its cell count against the
// header spec.
func Read(r io.Reader) (*Raster, error) {
	br := bufio.NewReader(r)

	got := make([]byte, len(magic))
	if _, err := io.ReadFull(br, got); err != nil {
		return nil, errors.Wrap(errors.ErrCodeIORead, err, "raster: read magic")
	}
	if !bytes.Equal(got, magic) {
		return nil, errors.New(errors.ErrCodeIORead, "raster: bad magic %q, not a raster artifact", got)
	}

	var headerLen uint32
	if err := binary.Read(br, binary.LittleEndian, &headerLen); err != nil {
		return nil, errors.Wrap(errors.ErrCodeIORead, err, "raster: read header length")
	}
	header := make([]byte, headerLen)
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, errors.Wrap(errors.ErrCodeIORead, err, "raster: read header")
	}

	var spec Spec
	if err := json.Unmarshal(header, &spec); err != nil {
		return nil, errors.Wrap(errors.ErrCodeIORead, err, "raster: decode header")
	}
	if err := spec.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeIORead, err, "raster: invalid grid in header")
	}

	cells := make([]int32, spec.Ncells())
	if err := binary.Read(br, binary.LittleEndian, cells); err != nil {
		return nil, errors.Wrap(errors.ErrCodeIORead, err,
			"raster: read %d cells", spec.Ncells())
	}
	return &Raster{Spec: spec, Cells: cells}, nil
}

// WriteFile writes the raster artifact to path, overwriting any
// existing file.
func WriteFile(path string, r *Raster) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeIOWrite, err, "raster: create %s", path)
	}
	defer f.Close()
	if err := Write(f, r); err != nil {
		return errors.Wrap(errors.ErrCodeIOWrite, err, "raster: write %s", path)
	}
	return f.Close()
}

// ReadFile reads a raster artifact from path.
func ReadFile(path string) (*Raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIORead, err, "raster: open %s", path)
	}
	defer f.Close()
	r, err := Read(f)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIORead, err, "raster: read %s", path)
	}
	return r, nil
}
