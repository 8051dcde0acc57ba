// Package precache fills a local cache directory from a server-declared playlist.
//
// A run resolves the configured server and playlist, fetches the playlist (a
// JSON array of file names) and downloads every entry into the cache
// directory one after the other. Problems that make the whole run pointless
// (bad server address, missing playlist, unusable directory, unreachable or
// unparsable playlist) are returned as errors. Problems with a single entry
// are reported in its models.DownloadResult and the run carries on.
package precache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"precache/config"
	"precache/internal/cache"
	"precache/internal/fetch"
	"precache/internal/locator"
	"precache/internal/models"
	"precache/internal/report"
	"precache/pkg/utils"
)

var (
	ErrMissingPlaylist     = errors.New("playlist is not optional in the settings")
	ErrCacheDirectory      = errors.New("cannot use the cache directory")
	ErrPlaylistUnavailable = errors.New("unable to fetch the playlist")
	ErrPlaylistMalformed   = errors.New("unexpected playlist document, expected an array of strings")
)

const maxPlaylistSize = 16 << 20

var utf8BOM = []byte("\xef\xbb\xbf")

// Reporter receives progress as the run goes.
type Reporter interface {
	Downloading(basename string)
	Track(basename string, size int64, r io.Reader) report.Tracker
	Result(res models.DownloadResult)
	Summary(res *models.SyncResult)
}

type Synchronizer struct {
	cfg      *config.Config
	source   fetch.Source
	reporter Reporter
	logger   *slog.Logger
}

func New(cfg *config.Config, source fetch.Source, reporter Reporter, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		cfg:      cfg,
		source:   source,
		reporter: reporter,
		logger:   logger,
	}
}

// Run performs one full synchronization. Every precondition is checked before
// the first request goes out.
func (s *Synchronizer) Run(ctx context.Context) (*models.SyncResult, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := s.logger.With("run_id", runID)

	base, err := locator.ParseBase(s.cfg.DownloadServer)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(s.cfg.Playlist) == "" {
		return nil, ErrMissingPlaylist
	}
	dir, err := cache.Open(s.cfg.DownloadDirectory)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrCacheDirectory, s.cfg.DownloadDirectory, err)
	}
	playlistURL, err := locator.Resolve(base, s.cfg.Playlist)
	if err != nil {
		return nil, err
	}

	entries, err := s.FetchPlaylist(ctx, playlistURL)
	if err != nil {
		return nil, err
	}
	logger.Info("playlist fetched", "url", playlistURL, "entries", len(entries), "cache", dir.Root())

	result := &models.SyncResult{
		RunID:          runID,
		PlaylistURL:    playlistURL,
		CacheDirectory: dir.Root(),
		TotalCount:     len(entries),
		Failed:         []string{},
		OperationTime:  utils.FormatTime(start),
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run interrupted after %d of %d entries: %w", result.SuccessCount, result.TotalCount, err)
		}

		res := s.Download(ctx, base, dir, entry)
		s.reporter.Result(res)
		if res.Succeeded() {
			result.SuccessCount++
			result.TotalSizeBytes += res.Bytes
			logger.Debug("entry cached", "entry", entry, "path", res.LocalPath, "bytes", res.Bytes)
		} else {
			result.Failed = append(result.Failed, entry)
			logger.Debug("entry failed", "entry", entry, "failure", res.Failure, "error", res.Err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run interrupted after %d of %d entries: %w", result.SuccessCount, result.TotalCount, err)
	}

	result.TotalSizeHuman = utils.FormatBytes(result.TotalSizeBytes)
	result.Duration = utils.FormatDuration(time.Since(start))
	s.reporter.Summary(result)
	logger.Info("run complete", "succeeded", result.SuccessCount, "total", result.TotalCount, "duration", result.Duration)

	return result, nil
}

// FetchPlaylist downloads and parses the playlist. A leading UTF-8 byte order
// mark is skipped. A JSON null document is an empty playlist, anything else
// that is not an array of strings is rejected.
func (s *Synchronizer) FetchPlaylist(ctx context.Context, playlistURL string) ([]string, error) {
	body, err := s.source.Open(ctx, playlistURL)
	if err != nil {
		return nil, fmt.Errorf("%w at %s: %w", ErrPlaylistUnavailable, playlistURL, err)
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, maxPlaylistSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w at %s: %w", ErrPlaylistUnavailable, playlistURL, err)
	}
	if len(data) > maxPlaylistSize {
		return nil, fmt.Errorf("%w: document larger than %s", ErrPlaylistMalformed, utils.FormatBytes(maxPlaylistSize))
	}

	data = bytes.TrimPrefix(data, utf8BOM)

	var entries []string
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlaylistMalformed, err)
	}
	if entries == nil {
		entries = []string{}
	}
	return entries, nil
}

// Download reconciles one playlist entry with the cache.
//
// A response other than 200 removes any file left for the entry by an earlier
// run. A transport failure leaves it alone. A failure to write the cache file
// removes whatever is there and counts as a failure. A file locked by another
// process is left alone.
func (s *Synchronizer) Download(ctx context.Context, base *url.URL, dir *cache.Dir, entry string) models.DownloadResult {
	res := models.DownloadResult{Entry: entry, Outcome: models.OutcomeFailed}

	basename, err := locator.Basename(entry)
	if err != nil {
		s.reporter.Downloading(entry)
		res.Failure = models.FailureResolve
		res.Err = err
		return res
	}
	res.LocalPath = dir.Path(basename)
	s.reporter.Downloading(basename)

	source, err := locator.Resolve(base, entry)
	if err != nil {
		res.Failure = models.FailureResolve
		res.Err = err
		return res
	}
	res.SourceURL = source

	body, err := s.source.Open(ctx, source)
	if err != nil {
		res.Err = err
		res.Failure = models.FailureTransport
		if code := fetch.StatusCode(err); code != 0 {
			res.Failure = models.FailureStatus
			res.StatusCode = code
			res.StaleRemoved = s.removeStale(dir, basename)
		}
		return res
	}
	defer body.Close()

	f, err := dir.Create(basename)
	if err != nil {
		res.Err = err
		if errors.Is(err, cache.ErrLocked) {
			res.Failure = models.FailureLocked
			return res
		}
		res.Failure = models.FailureWrite
		res.StaleRemoved = s.removeStale(dir, basename)
		return res
	}

	n, err := s.store(f, basename, body)
	res.Bytes = n
	if err != nil {
		res.Failure = models.FailureWrite
		res.Err = err
		res.StaleRemoved = s.removeStale(dir, basename)
		return res
	}

	res.Outcome = models.OutcomeSuccess
	return res
}

// store streams body into f and always releases it. On error nothing written
// by this call is left in place.
func (s *Synchronizer) store(f *cache.File, basename string, body *fetch.Body) (int64, error) {
	tracker := s.reporter.Track(basename, body.Size, body)
	n, err := io.Copy(f, tracker)
	if err != nil {
		tracker.Finish(false)
		if discardErr := f.Discard(); discardErr != nil {
			s.logger.Warn("failed to remove partial file", "path", f.Name(), "error", discardErr)
		}
		return n, fmt.Errorf("failed to copy %s: %w", basename, err)
	}
	tracker.Finish(true)

	if err := f.Commit(); err != nil {
		return n, err
	}
	return n, nil
}

func (s *Synchronizer) removeStale(dir *cache.Dir, basename string) bool {
	removed, err := dir.Remove(basename)
	if err != nil {
		s.logger.Warn("failed to remove cached file", "path", dir.Path(basename), "error", err)
	}
	return removed
}
