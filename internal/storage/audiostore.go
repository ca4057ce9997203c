// Package storage caches submitted audio locally, keyed by the vendor's job
// id, so playback never needs a second download. Blobs live on disk; a sqlite
// index maps job ids to filenames and blake3 content hashes (re-submitting an
// identical file is detectable through the hash). Absence of a blob is never
// an error: callers fall back to other audio sources.
package storage

import (
	"bytes"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"lukechampine.com/blake3"

	"github.com/rezkysantika/Expression-Measurement/internal/domain"
)

var audioExtensionFallback = map[string]string{
	"audio/mpeg":  ".mp3",
	"audio/mp3":   ".mp3",
	"audio/mp4":   ".m4a",
	"audio/x-m4a": ".m4a",
	"audio/wav":   ".wav",
	"audio/x-wav": ".wav",
	"audio/webm":  ".webm",
	"audio/ogg":   ".ogg",
	"audio/flac":  ".flac",
}

type AudioStore struct {
	db        *sql.DB
	audioDir  string
	stageDir  string
	reportDir string
	maxBytes  int64
}

func NewAudioStore(dataDir string, maxBytes int64) (*AudioStore, error) {
	s := &AudioStore{
		audioDir:  filepath.Join(dataDir, "audio"),
		stageDir:  filepath.Join(dataDir, "staging"),
		reportDir: filepath.Join(dataDir, "reports"),
		maxBytes:  maxBytes,
	}

	for _, dir := range []string{dataDir, s.audioDir, s.stageDir, s.reportDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", "file:"+filepath.Join(dataDir, "jobs.db"))
	if err != nil {
		return nil, fmt.Errorf("open job index: %w", err)
	}

	if _, err := db.Exec(`
	PRAGMA busy_timeout  = 10000;
	PRAGMA journal_mode  = WAL;
	PRAGMA synchronous   = NORMAL;
	PRAGMA foreign_keys  = ON;

	create table if not exists jobs (
		job_id      text primary key,
		label       text not null,
		source_type text not null,
		filename    text not null default '',
		blake3_hash text not null default '',
		created_at  integer not null
	);

	create index if not exists jobs_hash on jobs (blake3_hash);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init job index schema: %w", err)
	}

	s.db = db
	return s, nil
}

func (s *AudioStore) Close() error {
	return s.db.Close()
}

// StagedAudio is an upload written to the staging area: hashed and
// size-checked but not yet tied to a job id.
type StagedAudio struct {
	Path string
	Ext  string
	Hash string
	Size int64
}

// Stage streams an upload to disk, enforcing the size cap and computing the
// blake3 content hash on the way through. When the filename carries no
// extension, one is sniffed from the first bytes of content.
func (s *AudioStore) Stage(origName string, r io.Reader) (StagedAudio, error) {
	sample := make([]byte, 512)
	n, err := io.ReadFull(r, sample)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return StagedAudio{}, fmt.Errorf("read audio sample: %w", err)
	}
	sample = sample[:n]

	ext := normalizeExtension(origName)
	if ext == "" {
		contentType := strings.ToLower(http.DetectContentType(sample))
		ext = audioExtensionFallback[contentType]
	}
	if ext == "" {
		ext = ".bin"
	}

	tmp, err := os.CreateTemp(s.stageDir, "upload-*"+ext)
	if err != nil {
		return StagedAudio{}, fmt.Errorf("create staging file: %w", err)
	}

	hasher := blake3.New(32, nil)
	out := io.MultiWriter(tmp, hasher)
	size, err := copyWithLimit(out, io.MultiReader(bytes.NewReader(sample), r), s.maxBytes)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return StagedAudio{}, err
	}

	return StagedAudio{
		Path: tmp.Name(),
		Ext:  ext,
		Hash: hex.EncodeToString(hasher.Sum(nil)),
		Size: size,
	}, nil
}

// Discard removes a staged file that never got committed.
func (s *AudioStore) Discard(staged StagedAudio) {
	if staged.Path != "" {
		os.Remove(staged.Path)
	}
}

// Commit moves a staged blob into the cache under its job id and records the
// job in the index.
func (s *AudioStore) Commit(jobID, label, sourceType string, staged StagedAudio) (domain.Job, error) {
	job := domain.Job{
		ID:         jobID,
		Label:      label,
		SourceType: sourceType,
		Filename:   jobID + staged.Ext,
		Blake3Hash: staged.Hash,
		CreatedAt:  time.Now().Unix(),
	}

	dest := filepath.Join(s.audioDir, job.Filename)
	if err := os.Rename(staged.Path, dest); err != nil {
		return domain.Job{}, fmt.Errorf("move staged audio: %w", err)
	}

	if err := s.insertJob(job); err != nil {
		os.Remove(dest)
		return domain.Job{}, err
	}
	return job, nil
}

// RecordJob indexes a job that has no local blob (URL submissions).
func (s *AudioStore) RecordJob(jobID, label, sourceType string) (domain.Job, error) {
	job := domain.Job{
		ID:         jobID,
		Label:      label,
		SourceType: sourceType,
		CreatedAt:  time.Now().Unix(),
	}
	if err := s.insertJob(job); err != nil {
		return domain.Job{}, err
	}
	return job, nil
}

func (s *AudioStore) insertJob(job domain.Job) error {
	_, err := s.db.Exec(
		"insert into jobs (job_id, label, source_type, filename, blake3_hash, created_at) values ($1, $2, $3, $4, $5, $6)",
		job.ID, job.Label, job.SourceType, job.Filename, job.Blake3Hash, job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("persisting job into index: %w", err)
	}
	return nil
}

// Get returns the blob path for a job id. A miss is not an error.
func (s *AudioStore) Get(jobID string) (string, bool) {
	var filename string
	err := s.db.
		QueryRow("select filename from jobs where job_id = $1", jobID).
		Scan(&filename)
	if err != nil || filename == "" {
		return "", false
	}

	path := filepath.Join(s.audioDir, filename)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// GetJob returns the index record for a job id.
func (s *AudioStore) GetJob(jobID string) (domain.Job, bool) {
	var job domain.Job
	err := s.db.
		QueryRow("select job_id, label, source_type, filename, blake3_hash, created_at from jobs where job_id = $1", jobID).
		Scan(&job.ID, &job.Label, &job.SourceType, &job.Filename, &job.Blake3Hash, &job.CreatedAt)
	if err != nil {
		return domain.Job{}, false
	}
	return job, true
}

// LookupByHash finds the earliest job whose cached blob carries the same
// content hash.
func (s *AudioStore) LookupByHash(hash string) (domain.Job, bool) {
	if hash == "" {
		return domain.Job{}, false
	}
	var job domain.Job
	err := s.db.
		QueryRow("select job_id, label, source_type, filename, blake3_hash, created_at from jobs where blake3_hash = $1 order by created_at limit 1", hash).
		Scan(&job.ID, &job.Label, &job.SourceType, &job.Filename, &job.Blake3Hash, &job.CreatedAt)
	if err != nil {
		return domain.Job{}, false
	}
	return job, true
}

// ListJobs returns every indexed job, newest first.
func (s *AudioStore) ListJobs() ([]domain.Job, error) {
	rows, err := s.db.Query("select job_id, label, source_type, filename, blake3_hash, created_at from jobs order by created_at desc")
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		var job domain.Job
		if err := rows.Scan(&job.ID, &job.Label, &job.SourceType, &job.Filename, &job.Blake3Hash, &job.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Delete drops the index row and the cached blob, if any.
func (s *AudioStore) Delete(jobID string) error {
	job, ok := s.GetJob(jobID)
	if !ok {
		return fmt.Errorf("job %s not found", jobID)
	}

	if _, err := s.db.Exec("delete from jobs where job_id = $1", jobID); err != nil {
		return fmt.Errorf("delete job row: %w", err)
	}
	if job.Filename != "" {
		_ = os.Remove(filepath.Join(s.audioDir, job.Filename))
	}
	return nil
}

// ReportPath is where the generated PDF for a job lives.
func (s *AudioStore) ReportPath(jobID string) string {
	return filepath.Join(s.reportDir, jobID+".pdf")
}

func copyWithLimit(dst io.Writer, src io.Reader, limit int64) (int64, error) {
	buf := make([]byte, 32*1024)
	total := int64(0)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			total += int64(n)
			if limit > 0 && total > limit {
				return total, fmt.Errorf("audio file exceeds maximum size")
			}
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return total, fmt.Errorf("write audio file: %w", werr)
			}
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, fmt.Errorf("read audio content: %w", err)
		}
	}
}

func normalizeExtension(filename string) string {
	ext := strings.ToLower(strings.TrimSpace(filepath.Ext(filename)))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

var extContentTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
	".webm": "audio/webm",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
}

// ContentTypeForExt maps a cached blob's extension back to a MIME type for
// serving.
func ContentTypeForExt(ext string) string {
	if ct, ok := extContentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
