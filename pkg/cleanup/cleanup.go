/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

// Package cleanup reclaims disk space from finished jobs. Sweeps are
// best-effort: a failure on one job is logged and never interrupts
// the sweep or the caller.
package cleanup

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/PoetCoderJun/video-auto-cut/pkg/config"
	"github.com/PoetCoderJun/video-auto-cut/pkg/jobstore"
	"github.com/PoetCoderJun/video-auto-cut/pkg/state"
	"github.com/PoetCoderJun/video-auto-cut/pkg/utils/pathutil"
	"github.com/PoetCoderJun/video-auto-cut/pkg/utils/timeutil"
)

// Sweeper applies the retention policy over the job store.
type Sweeper struct {
	store     *jobstore.Store
	enabled   bool
	ttl       time.Duration
	batchSize int
	onStartup bool
}

func New(store *jobstore.Store) *Sweeper {
	return &Sweeper{
		store:     store,
		enabled:   config.IsCleanupEnabled(),
		ttl:       config.GetCleanupTTL(),
		batchSize: config.GetCleanupBatchSize(),
		onStartup: config.IsCleanupOnStartup(),
	}
}

// NewWithPolicy builds a sweeper with an explicit policy, for tests
// and one-off invocations.
func NewWithPolicy(store *jobstore.Store, ttl time.Duration, batchSize int) *Sweeper {
	return &Sweeper{store: store, enabled: true, ttl: ttl, batchSize: batchSize, onStartup: true}
}

// Eligible statuses for artifact cleanup: the user has confirmed the
// final chapters or downloaded the result.
func eligibleStatus(status state.Status) bool {
	return status == state.StatusSucceeded || status == state.StatusStep2Confirmed
}

// CleanupJobArtifacts removes every declared artifact and the job
// directory, then rebuilds the retained shell row: empty manifest,
// status SUCCEEDED, progress 100, errors cleared.
func (s *Sweeper) CleanupJobArtifacts(jobID, reason string) int {
	meta, err := s.store.LoadMeta(jobID)
	if err != nil {
		return 0
	}
	files, err := s.store.LoadFiles(jobID)
	if err != nil {
		klog.ErrorS(err, "cleanup failed loading manifest", "job", jobID)
		files = map[string]string{}
	}

	removed := 0
	for _, path := range s.collectPaths(jobID, files) {
		if removePath(path) {
			removed++
		}
	}

	meta.Status = state.StatusSucceeded
	meta.Progress = state.ProgressSucceeded
	meta.ErrorCode = ""
	meta.ErrorMessage = ""
	meta.UpdatedAt = timeutil.NowISO()
	if err := s.store.SaveMeta(meta); err != nil {
		klog.ErrorS(err, "cleanup failed rewriting job meta", "job", jobID)
	}
	if err := s.store.ResetFiles(jobID); err != nil {
		klog.ErrorS(err, "cleanup failed resetting manifest", "job", jobID)
	}

	klog.Infof("cleaned artifacts job=%s reason=%s removed_paths=%d", jobID, reason, removed)
	return removed
}

// collectPaths gathers declared artifacts inside the work directory
// plus the job base directory, deduplicated and ordered deepest
// first so files go before their parents.
func (s *Sweeper) collectPaths(jobID string, files map[string]string) []string {
	var paths []string
	for slot, raw := range files {
		path := strings.TrimSpace(raw)
		if path == "" {
			continue
		}
		if !pathutil.IsWithin(s.store.WorkDir(), path) {
			klog.Warningf("skip cleanup path outside workdir job=%s slot=%s path=%s", jobID, slot, path)
			continue
		}
		paths = append(paths, path)
	}
	paths = append(paths, s.store.JobDir(jobID))

	seen := make(map[string]struct{}, len(paths))
	var deduped []string
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			continue
		}
		if _, dup := seen[abs]; dup {
			continue
		}
		seen[abs] = struct{}{}
		deduped = append(deduped, abs)
	}
	sort.SliceStable(deduped, func(i, j int) bool {
		return strings.Count(deduped[i], string(filepath.Separator)) > strings.Count(deduped[j], string(filepath.Separator))
	})
	return deduped
}

func removePath(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		_ = os.RemoveAll(path)
		return true
	}
	_ = os.Remove(path)
	return true
}

// CleanupOrphanDirs removes directories under jobs/ that carry no
// job.meta.json. A zero olderThan disables the age filter; a zero or
// negative limit removes every candidate.
func (s *Sweeper) CleanupOrphanDirs(olderThan time.Time, limit int, reason string) int {
	ids, err := s.store.ListJobIDs()
	if err != nil {
		klog.ErrorS(err, "orphan cleanup failed listing jobs")
		return 0
	}

	var candidates []string
	for _, id := range ids {
		if !strings.HasPrefix(id, "job_") || s.store.HasMeta(id) {
			continue
		}
		if !olderThan.IsZero() {
			info, err := os.Stat(s.store.JobDir(id))
			if err != nil || info.ModTime().After(olderThan) {
				continue
			}
		}
		candidates = append(candidates, id)
	}
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	removed := 0
	for _, id := range candidates {
		if err := s.store.RemoveJobDir(id); err != nil {
			klog.ErrorS(err, "orphan cleanup failed", "job", id)
			continue
		}
		removed++
	}
	if removed > 0 {
		klog.Infof("orphan cleanup completed reason=%s removed_dirs=%d", reason, removed)
	}
	return removed
}

// CleanupExpiredJobs is the periodic TTL sweep: finished jobs whose
// updated_at fell behind now-ttl lose their artifacts, batch-limited
// per pass, followed by an orphan-directory pass with the same cutoff.
func (s *Sweeper) CleanupExpiredJobs() int {
	if !s.enabled {
		return 0
	}
	cutoff := time.Now().UTC().Add(-s.ttl)

	cleaned := 0
	for _, jobID := range s.expiredJobs(cutoff) {
		s.CleanupJobArtifacts(jobID, "ttl")
		cleaned++
	}
	orphans := s.CleanupOrphanDirs(cutoff, s.batchSize, "ttl")
	if cleaned > 0 || orphans > 0 {
		klog.Infof("cleanup sweep completed cleaned_jobs=%d cleaned_orphans=%d cutoff=%s",
			cleaned, orphans, timeutil.FormatISO(cutoff))
	}
	return cleaned + orphans
}

func (s *Sweeper) expiredJobs(cutoff time.Time) []string {
	ids, err := s.store.ListJobIDs()
	if err != nil {
		klog.ErrorS(err, "cleanup failed listing jobs")
		return nil
	}

	var expired []string
	for _, jobID := range ids {
		if len(expired) >= s.batchSize && s.batchSize > 0 {
			break
		}
		meta, err := s.store.LoadMeta(jobID)
		if err != nil {
			continue
		}
		if !eligibleStatus(meta.Status) {
			continue
		}
		files, err := s.store.LoadFiles(jobID)
		if err != nil || len(files) == 0 {
			continue
		}
		updatedAt, err := timeutil.ParseISO(meta.UpdatedAt)
		if err != nil || updatedAt.After(cutoff) {
			continue
		}
		expired = append(expired, jobID)
	}
	return expired
}

// CleanupOnStartup drains every finished job with artifacts plus all
// orphan directories, regardless of TTL.
func (s *Sweeper) CleanupOnStartup() int {
	if !s.enabled || !s.onStartup {
		return 0
	}

	orphans := s.CleanupOrphanDirs(time.Time{}, 0, "startup")
	cleaned := 0
	ids, err := s.store.ListJobIDs()
	if err != nil {
		klog.ErrorS(err, "startup cleanup failed listing jobs")
		return orphans
	}
	for _, jobID := range ids {
		meta, err := s.store.LoadMeta(jobID)
		if err != nil || !eligibleStatus(meta.Status) {
			continue
		}
		files, err := s.store.LoadFiles(jobID)
		if err != nil || len(files) == 0 {
			continue
		}
		s.CleanupJobArtifacts(jobID, "startup")
		cleaned++
	}
	if cleaned > 0 || orphans > 0 {
		klog.Infof("startup cleanup completed cleaned_jobs=%d cleaned_orphans=%d", cleaned, orphans)
	}
	return cleaned + orphans
}

// MarkCleanupFromNow restarts the TTL clock for a job, typically right
// after its result was downloaded.
func (s *Sweeper) MarkCleanupFromNow(jobID, reason string) {
	if !s.enabled {
		return
	}
	if _, err := s.store.UpdateJob(jobID, func(*jobstore.Meta) {}); err != nil {
		klog.ErrorS(err, "failed marking delayed cleanup", "job", jobID)
		return
	}
	klog.Infof("marked delayed cleanup job=%s reason=%s ttl=%s", jobID, reason, s.ttl)
}

// PurgeJob removes a job entirely: declared artifacts, directory, and
// the meta row. Unlike CleanupJobArtifacts no shell is retained; the
// job no longer exists afterwards.
func (s *Sweeper) PurgeJob(jobID, reason string) int {
	files, err := s.store.LoadFiles(jobID)
	if err != nil {
		files = map[string]string{}
	}

	removed := 0
	for _, path := range s.collectPaths(jobID, files) {
		if removePath(path) {
			removed++
		}
	}
	if err := s.store.RemoveJobDir(jobID); err != nil {
		klog.ErrorS(err, "purge failed removing job dir", "job", jobID)
	}
	klog.Infof("purged job=%s reason=%s removed_paths=%d", jobID, reason, removed)
	return removed
}

// CleanupAfterDownload purges a downloaded job in the background once
// the response body has been written. The job is gone on the next
// lookup.
func (s *Sweeper) CleanupAfterDownload(jobID string) {
	if !s.enabled {
		return
	}
	go s.PurgeJob(jobID, "download")
}
