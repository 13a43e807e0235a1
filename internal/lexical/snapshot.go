package lexical

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// Snapshot file layout: a fixed header, a JSON body and a crc32 footer over
// the body.
const (
	MagicBytes    uint32 = 0x46534c58
	FormatVersion uint32 = 1
	HeaderSize    int    = 32
	FooterSize    int    = 4
)

var ErrCorruptSnapshot = errors.New("corrupt lexical snapshot")

type snapshotHeader struct {
	Magic     uint32
	Version   uint32
	DocCount  uint32
	VocabSize uint32
	CreatedAt int64
	BodySize  int64
}

type snapshotBody struct {
	Fingerprint string   `json:"fingerprint"`
	Model       *model   `json:"model"`
	Vectors     []vector `json:"vectors"`
	IDs         []string `json:"ids"`
}

// Save writes ix to path atomically: the snapshot is written to a .tmp file,
// synced and renamed. A sibling .lock file serializes writers across
// processes.
func (ix *Index) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking snapshot: %w", err)
	}
	defer lock.Unlock()

	body, err := json.Marshal(snapshotBody{
		Fingerprint: ix.fingerprint,
		Model:       ix.model,
		Vectors:     ix.vectors,
		IDs:         ix.ids,
	})
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	header := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(header[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(ix.ids)))
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(ix.model.Vocab)))
	binary.LittleEndian.PutUint64(header[16:24], uint64(time.Now().Unix()))
	binary.LittleEndian.PutUint64(header[24:32], uint64(len(body)))

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer, crc32.ChecksumIEEE(body))

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp snapshot file: %w", err)
	}
	defer f.Close()
	for _, chunk := range [][]byte{header, body, footer} {
		if _, err := f.Write(chunk); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("writing snapshot: %w", err)
		}
	}
	if err := f.Sync(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("syncing snapshot file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming snapshot file: %w", err)
	}
	return nil
}

// Load reads a snapshot written by Save. Any structural problem is reported
// as ErrCorruptSnapshot; a missing file surfaces as fs.ErrNotExist.
func Load(path string) (*Index, error) {
	lock := flock.New(path + ".lock")
	if err := lock.RLock(); err != nil {
		return nil, fmt.Errorf("locking snapshot: %w", err)
	}
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", path, err)
	}
	if len(data) < HeaderSize+FooterSize {
		return nil, fmt.Errorf("%w: file too small (%d bytes)", ErrCorruptSnapshot, len(data))
	}
	header := snapshotHeader{
		Magic:     binary.LittleEndian.Uint32(data[0:4]),
		Version:   binary.LittleEndian.Uint32(data[4:8]),
		DocCount:  binary.LittleEndian.Uint32(data[8:12]),
		VocabSize: binary.LittleEndian.Uint32(data[12:16]),
		CreatedAt: int64(binary.LittleEndian.Uint64(data[16:24])),
		BodySize:  int64(binary.LittleEndian.Uint64(data[24:32])),
	}
	if header.Magic != MagicBytes {
		return nil, fmt.Errorf("%w: bad magic %x", ErrCorruptSnapshot, header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, header.Version)
	}
	if int64(len(data)) != int64(HeaderSize)+header.BodySize+int64(FooterSize) {
		return nil, fmt.Errorf("%w: body size mismatch", ErrCorruptSnapshot)
	}
	body := data[HeaderSize : HeaderSize+int(header.BodySize)]
	want := binary.LittleEndian.Uint32(data[HeaderSize+int(header.BodySize):])
	if got := crc32.ChecksumIEEE(body); got != want {
		return nil, fmt.Errorf("%w: checksum %x != %x", ErrCorruptSnapshot, got, want)
	}

	var snap snapshotBody
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if snap.Model == nil ||
		len(snap.IDs) != int(header.DocCount) ||
		len(snap.Vectors) != len(snap.IDs) ||
		len(snap.Model.Vocab) != int(header.VocabSize) ||
		len(snap.Model.IDF) != len(snap.Model.Vocab) {
		return nil, fmt.Errorf("%w: inconsistent counts", ErrCorruptSnapshot)
	}
	return &Index{
		model:       snap.Model,
		vectors:     snap.Vectors,
		ids:         snap.IDs,
		fingerprint: snap.Fingerprint,
	}, nil
}
