// Package chunker splits large document files into fixed-size parts with a
// JSON manifest, and reassembles them with integrity checks. The service's
// chunked intake endpoint and the CLI chunk command both build on it: a
// client splits locally, uploads parts independently, and the server joins
// and verifies against the manifest hashes.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DefaultPartSize is used when the caller passes a size <= 0.
const DefaultPartSize int64 = 8 * 1024 * 1024

// ManifestName is the manifest file written next to the parts.
const ManifestName = "manifest.json"

// PartMeta describes one part within a manifest.
type PartMeta struct {
	Index       int    `json:"index"`
	FileName    string `json:"file_name"`
	OffsetBytes int64  `json:"offset_bytes"`
	SizeBytes   int64  `json:"size_bytes"`
	SHA256      string `json:"sha256"`
}

// Manifest describes the original file and all of its parts.
type Manifest struct {
	OriginalName   string     `json:"original_name"`
	OriginalSize   int64      `json:"original_size"`
	OriginalSHA256 string     `json:"original_sha256"`
	PartSize       int64      `json:"part_size"`
	TotalParts     int        `json:"total_parts"`
	Parts          []PartMeta `json:"parts"`
	CreatedAt      string     `json:"created_at"`
}

// ProgressFunc is called after each part is processed. index is zero-based;
// total is 0 while streaming, when the part count is not yet known.
type ProgressFunc func(index, total int, bytes int64)

// Split reads srcPath and writes part files plus a manifest into outDir.
func Split(srcPath, outDir string, partSize int64, progress ProgressFunc) (*Manifest, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer src.Close()
	return SplitReader(src, filepath.Base(srcPath), outDir, partSize, progress)
}

// SplitReader streams r into part files plus a manifest in outDir, computing
// the whole-file SHA-256 on the way through. partSize <= 0 selects
// DefaultPartSize; progress may be nil.
func SplitReader(r io.Reader, originalName, outDir string, partSize int64, progress ProgressFunc) (*Manifest, error) {
	if partSize <= 0 {
		partSize = DefaultPartSize
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	fileHasher := sha256.New()
	tee := io.TeeReader(r, fileHasher)

	m := &Manifest{
		OriginalName: originalName,
		PartSize:     partSize,
		Parts:        make([]PartMeta, 0),
		CreatedAt:    time.Now().UTC().Format(time.RFC3339),
	}

	buf := make([]byte, partSize)
	var offset int64
	for idx := 0; ; idx++ {
		n, readErr := io.ReadFull(tee, buf)
		if readErr != nil && readErr != io.EOF && readErr != io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("read part %d: %w", idx, readErr)
		}
		if n == 0 {
			break
		}
		data := buf[:n]

		name := partName(idx)
		if err := os.WriteFile(filepath.Join(outDir, name), data, 0644); err != nil {
			return nil, fmt.Errorf("write part %d: %w", idx, err)
		}

		m.Parts = append(m.Parts, PartMeta{
			Index:       idx,
			FileName:    name,
			OffsetBytes: offset,
			SizeBytes:   int64(n),
			SHA256:      hashHex(data),
		})
		offset += int64(n)

		if progress != nil {
			progress(idx, 0, offset)
		}
		if readErr != nil {
			break
		}
	}

	m.OriginalSize = offset
	m.OriginalSHA256 = hex.EncodeToString(fileHasher.Sum(nil))
	m.TotalParts = len(m.Parts)

	if progress != nil && m.TotalParts > 0 {
		progress(m.TotalParts-1, m.TotalParts, offset)
	}

	if err := writeManifest(outDir, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Join reassembles the parts in partsDir into outPath, verifying each part
// hash and the final file hash against the manifest. A hash mismatch removes
// the partial output.
func Join(partsDir, outPath string, progress ProgressFunc) error {
	m, err := LoadManifest(partsDir)
	if err != nil {
		return err
	}
	if err := checkPartNames(partsDir, m); err != nil {
		return err
	}

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer out.Close()

	fileHasher := sha256.New()
	w := io.MultiWriter(out, fileHasher)

	parts := make([]PartMeta, len(m.Parts))
	copy(parts, m.Parts)
	sort.Slice(parts, func(i, j int) bool { return parts[i].Index < parts[j].Index })

	var written int64
	for _, pm := range parts {
		data, err := os.ReadFile(filepath.Join(partsDir, pm.FileName))
		if err != nil {
			return fmt.Errorf("read part %d: %w", pm.Index, err)
		}
		if actual := hashHex(data); actual != pm.SHA256 {
			return fmt.Errorf("part %d hash mismatch: manifest %s, got %s", pm.Index, pm.SHA256, actual)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("write part %d: %w", pm.Index, err)
		}
		written += int64(len(data))
		if progress != nil {
			progress(pm.Index, m.TotalParts, written)
		}
	}

	if actual := hex.EncodeToString(fileHasher.Sum(nil)); actual != m.OriginalSHA256 {
		out.Close()
		os.Remove(outPath)
		return fmt.Errorf("joined file hash mismatch: manifest %s, got %s", m.OriginalSHA256, actual)
	}
	return nil
}

// VerifyResult holds the outcome of a Verify call.
type VerifyResult struct {
	TotalParts int
	TotalSize  int64
	Errors     []string
}

// OK reports whether every part checked out.
func (v *VerifyResult) OK() bool { return len(v.Errors) == 0 }

// Verify checks every part in partsDir against its manifest without joining.
func Verify(partsDir string) (*VerifyResult, error) {
	m, err := LoadManifest(partsDir)
	if err != nil {
		return nil, err
	}
	if err := checkPartNames(partsDir, m); err != nil {
		return nil, err
	}

	result := &VerifyResult{TotalParts: m.TotalParts}
	for _, pm := range m.Parts {
		data, err := os.ReadFile(filepath.Join(partsDir, pm.FileName))
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("missing part %d (%s)", pm.Index, pm.FileName))
			continue
		}
		if hashHex(data) != pm.SHA256 {
			result.Errors = append(result.Errors, fmt.Sprintf("corrupt part %d (%s)", pm.Index, pm.FileName))
			continue
		}
		if int64(len(data)) != pm.SizeBytes {
			result.Errors = append(result.Errors, fmt.Sprintf("part %d size %d, manifest says %d", pm.Index, len(data), pm.SizeBytes))
			continue
		}
		result.TotalSize += int64(len(data))
	}

	if result.TotalSize != m.OriginalSize {
		result.Errors = append(result.Errors, fmt.Sprintf("parts total %d bytes, manifest says %d", result.TotalSize, m.OriginalSize))
	}
	return result, nil
}

// LoadManifest reads and parses the manifest from a parts directory.
func LoadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ManifestName, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ManifestName, err)
	}
	return &m, nil
}

func writeManifest(dir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestName), data, 0644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// checkPartNames rejects manifests whose file names escape the parts
// directory. Manifests can arrive from untrusted clients.
func checkPartNames(dir string, m *Manifest) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve parts dir: %w", err)
	}
	for _, pm := range m.Parts {
		if strings.Contains(pm.FileName, "..") || filepath.IsAbs(pm.FileName) {
			return fmt.Errorf("invalid part filename %q", pm.FileName)
		}
		abs, err := filepath.Abs(filepath.Join(dir, pm.FileName))
		if err != nil {
			return fmt.Errorf("resolve part path %q: %w", pm.FileName, err)
		}
		if !strings.HasPrefix(abs, absDir+string(filepath.Separator)) {
			return fmt.Errorf("part %q resolves outside parts directory", pm.FileName)
		}
	}
	return nil
}

func partName(idx int) string {
	return fmt.Sprintf("part_%05d.bin", idx)
}

func hashHex(data []byte) string {
	h := sha256.New()
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
