/*
Copyright © 2025 Atlas Authors
SPDX-License-Identifier: Apache-2.0
*/
package snapshot

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/golang/snappy"

	"github.com/tpotmap/atlas/pkg/errors"
)

// Archive file layout: an 8-byte magic, a section count, then sections of
// (name, uncompressed length, compressed length, crc32 of the raw bytes,
// snappy block). Integers are little-endian. The manifest lives beside the
// archive as plain JSON.
const (
	archiveMagic    = "ATLSPEC1"
	SpectralFile    = "snapshot.spectral"
	ManifestFile    = "snapshot.manifest"
	sectionEmbed    = "embedding"
	sectionNodeIDs  = "node_ids"
	sectionEigen    = "eigenvalues"
	sectionLinkage  = "linkage"
)

// Write stores the snapshot under dir atomically: both files are written to
// temporary names and renamed into place, manifest last. A cancelled or
// failed build never leaves a partial artifact visible.
func Write(dir string, s *Snapshot) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "creating snapshot dir", err)
	}

	var buf bytes.Buffer
	buf.WriteString(archiveMagic)
	writeU32(&buf, 4)

	writeSection(&buf, sectionEmbed, float32Bytes(s.Embedding))
	writeSection(&buf, sectionNodeIDs, stringBytes(s.NodeIDs))
	writeSection(&buf, sectionEigen, float32Bytes(s.Eigenvalues))
	writeSection(&buf, sectionLinkage, float32Bytes(s.Linkage))

	if err := atomicWrite(filepath.Join(dir, SpectralFile), buf.Bytes()); err != nil {
		return err
	}

	manifest, err := json.MarshalIndent(s.Manifest, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "encoding manifest", err)
	}
	return atomicWrite(filepath.Join(dir, ManifestFile), manifest)
}

// Load reads and validates a snapshot from dir. Truncated or corrupted
// sections yield an INTEGRITY_ERROR; a missing artifact yields NOT_FOUND.
func Load(dir string) (*Snapshot, error) {
	manifestRaw, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.ErrCodeNotFound, "no snapshot manifest in %s", dir)
		}
		return nil, errors.Wrap(errors.ErrCodeIntegrity, "reading manifest", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(manifestRaw, &manifest); err != nil {
		return nil, errors.Wrap(errors.ErrCodeIntegrity, "decoding manifest", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, SpectralFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.ErrCodeNotFound, "no spectral archive in %s", dir)
		}
		return nil, errors.Wrap(errors.ErrCodeIntegrity, "reading spectral archive", err)
	}

	sections, err := readSections(raw)
	if err != nil {
		return nil, err
	}

	s := &Snapshot{Manifest: manifest}
	if b, ok := sections[sectionEmbed]; ok {
		s.Embedding = bytesFloat32(b)
	}
	if b, ok := sections[sectionNodeIDs]; ok {
		if s.NodeIDs, err = bytesStrings(b); err != nil {
			return nil, err
		}
	}
	if b, ok := sections[sectionEigen]; ok {
		s.Eigenvalues = bytesFloat32(b)
	}
	if b, ok := sections[sectionLinkage]; ok {
		s.Linkage = bytesFloat32(b)
	}

	if err := checkShape(s); err != nil {
		return nil, err
	}
	return s, nil
}

func checkShape(s *Snapshot) error {
	n := len(s.NodeIDs)
	if n == 0 {
		return errors.New(errors.ErrCodeIntegrity, "snapshot has no node ids")
	}
	if len(s.Embedding)%n != 0 {
		return errors.Newf(errors.ErrCodeIntegrity,
			"embedding length %d is not a multiple of node count %d", len(s.Embedding), n)
	}
	if got, want := len(s.Linkage), (n-1)*4; got != want {
		return errors.Newf(errors.ErrCodeIntegrity,
			"linkage length %d, want %d", got, want)
	}
	if s.Dims() != len(s.Eigenvalues) {
		return errors.Newf(errors.ErrCodeIntegrity,
			"embedding dims %d do not match %d eigenvalues", s.Dims(), len(s.Eigenvalues))
	}
	return nil
}

func readSections(raw []byte) (map[string][]byte, error) {
	r := bytes.NewReader(raw)
	magic := make([]byte, len(archiveMagic))
	if _, err := r.Read(magic); err != nil || string(magic) != archiveMagic {
		return nil, errors.New(errors.ErrCodeIntegrity, "bad archive magic")
	}
	count, err := readU32(r)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIntegrity, "truncated section count", err)
	}

	sections := make(map[string][]byte, count)
	for i := uint32(0); i < count; i++ {
		name, err := readLenString(r)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeIntegrity, "truncated section header", err)
		}
		rawLen, err := readU32(r)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeIntegrity, "truncated section length", err)
		}
		compLen, err := readU32(r)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeIntegrity, "truncated section length", err)
		}
		sum, err := readU32(r)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeIntegrity, "truncated section checksum", err)
		}
		comp := make([]byte, compLen)
		if _, err := io.ReadFull(r, comp); err != nil {
			return nil, errors.Newf(errors.ErrCodeIntegrity, "truncated section %q", name)
		}
		data, err := snappy.Decode(nil, comp)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeIntegrity, "decompressing section "+name, err)
		}
		if uint32(len(data)) != rawLen {
			return nil, errors.Newf(errors.ErrCodeIntegrity,
				"section %q decompressed to %d bytes, want %d", name, len(data), rawLen)
		}
		if crc32.ChecksumIEEE(data) != sum {
			return nil, errors.Newf(errors.ErrCodeIntegrity, "section %q checksum mismatch", name)
		}
		sections[name] = data
	}
	return sections, nil
}

func writeSection(buf *bytes.Buffer, name string, data []byte) {
	writeU32(buf, uint32(len(name)))
	buf.WriteString(name)
	writeU32(buf, uint32(len(data)))
	comp := snappy.Encode(nil, data)
	writeU32(buf, uint32(len(comp)))
	writeU32(buf, crc32.ChecksumIEEE(data))
	buf.Write(comp)
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "writing "+path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrap(errors.ErrCodeInternal, "renaming "+path, err)
	}
	return nil
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func readU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readLenString(r *bytes.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func float32Bytes(v []float32) []byte {
	out := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

func bytesFloat32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

func stringBytes(ids []string) []byte {
	var buf bytes.Buffer
	writeU32(&buf, uint32(len(ids)))
	for _, id := range ids {
		writeU32(&buf, uint32(len(id)))
		buf.WriteString(id)
	}
	return buf.Bytes()
}

func bytesStrings(b []byte) ([]string, error) {
	r := bytes.NewReader(b)
	n, err := readU32(r)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIntegrity, "truncated node id table", err)
	}
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := readLenString(r)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeIntegrity, "truncated node id entry", err)
		}
		out = append(out, s)
	}
	return out, nil
}
