package journal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/gacha-release/internal/config"
	"github.com/oshokin/gacha-release/internal/domain/release"
)

// Repository defines persistence operations for the run journal.
type Repository interface {
	Load(ctx context.Context) (*release.Run, error)
	Save(ctx context.Context, run *release.Run) error
}

// FileRepository persists the last run to a JSON file on disk.
// JSON is produced and consumed via protojson over google.protobuf.Struct.
type FileRepository struct {
	// path is the filesystem location of the journal file.
	path string
	// mu protects concurrent access to the journal file.
	mu sync.Mutex
}

var (
	// ErrNotFound is returned when no run has been recorded yet.
	ErrNotFound = errors.New("journal not found")

	errRunRequired = errors.New("run must be provided")
)

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Path returns the journal file location.
func (r *FileRepository) Path() string {
	return r.path
}

// Load reads the last run from disk.
func (r *FileRepository) Load(_ context.Context) (*release.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read journal file: %w", err)
	}

	var document structpb.Struct
	if err = protojson.Unmarshal(contents, &document); err != nil {
		return nil, fmt.Errorf("decode journal file: %w", err)
	}

	run, err := fromStruct(&document)
	if err != nil {
		return nil, fmt.Errorf("decode journal file: %w", err)
	}

	return run, nil
}

// Save replaces the journal with run.
func (r *FileRepository) Save(_ context.Context, run *release.Run) error {
	if run == nil {
		return errRunRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	document, err := toStruct(run)
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}

	marshalOptions := protojson.MarshalOptions{
		Multiline: true,
		Indent:    "  ",
	}

	data, err := marshalOptions.Marshal(document)
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}

	if err = os.WriteFile(r.path, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write journal file: %w", err)
	}

	return nil
}

// toStruct converts the run into a protobuf Struct.
func toStruct(run *release.Run) (*structpb.Struct, error) {
	stages := make([]any, 0, len(run.Stages))
	for _, record := range run.Stages {
		stages = append(stages, map[string]any{
			"stage":       string(record.Stage),
			"started_at":  formatTime(record.StartedAt),
			"finished_at": formatTime(record.FinishedAt),
			"error":       record.Error,
			"succeeded":   record.Succeeded(),
		})
	}

	fields := map[string]any{
		"run_id":      run.ID,
		"version":     run.Version.String(),
		"started_at":  formatTime(run.StartedAt),
		"finished_at": formatTime(run.FinishedAt),
		"stages":      stages,
		"orphaned":    run.Orphaned,
		"rolled_back": run.RolledBack,
	}

	if run.Actor != nil {
		fields["actor"] = map[string]any{
			"hostname": run.Actor.Hostname,
			"username": run.Actor.Username,
			"pid":      float64(run.Actor.PID),
			"ci":       run.Actor.CI,
		}
	}

	if run.Archive != nil {
		fields["archive"] = map[string]any{
			"path":     run.Archive.Path,
			"name":     run.Archive.Name,
			"size":     float64(run.Archive.Size),
			"checksum": run.Archive.Checksum,
			"entries":  float64(run.Archive.Entries),
		}
	}

	if run.Release != nil {
		fields["release"] = map[string]any{
			"id":         float64(run.Release.ID),
			"tag":        run.Release.Tag,
			"upload_url": run.Release.UploadURL,
			"html_url":   run.Release.HTMLURL,
		}
	}

	if run.Asset != nil {
		fields["asset"] = map[string]any{
			"id":           float64(run.Asset.ID),
			"name":         run.Asset.Name,
			"content_type": run.Asset.ContentType,
			"size":         float64(run.Asset.Size),
			"download_url": run.Asset.DownloadURL,
		}
	}

	return structpb.NewStruct(fields)
}

// fromStruct converts a protobuf Struct back into a run.
func fromStruct(document *structpb.Struct) (*release.Run, error) {
	fields := document.GetFields()

	run := &release.Run{
		ID:         fields["run_id"].GetStringValue(),
		Version:    release.Version(fields["version"].GetStringValue()),
		Orphaned:   fields["orphaned"].GetBoolValue(),
		RolledBack: fields["rolled_back"].GetBoolValue(),
	}

	var err error

	if run.StartedAt, err = parseTime(fields["started_at"]); err != nil {
		return nil, err
	}

	if run.FinishedAt, err = parseTime(fields["finished_at"]); err != nil {
		return nil, err
	}

	if actor := fields["actor"].GetStructValue(); actor != nil {
		run.Actor = &release.Actor{
			Hostname: stringField(actor, "hostname"),
			Username: stringField(actor, "username"),
			PID:      int(numberField(actor, "pid")),
			CI:       stringField(actor, "ci"),
		}
	}

	for _, value := range fields["stages"].GetListValue().GetValues() {
		stage := value.GetStructValue()
		record := &release.StageRecord{
			Stage: release.Stage(stringField(stage, "stage")),
			Error: stringField(stage, "error"),
		}

		if record.StartedAt, err = parseTime(stage.GetFields()["started_at"]); err != nil {
			return nil, err
		}

		if record.FinishedAt, err = parseTime(stage.GetFields()["finished_at"]); err != nil {
			return nil, err
		}

		run.Stages = append(run.Stages, record)
	}

	if archive := fields["archive"].GetStructValue(); archive != nil {
		run.Archive = &release.Archive{
			Path:     stringField(archive, "path"),
			Name:     stringField(archive, "name"),
			Size:     int64(numberField(archive, "size")),
			Checksum: stringField(archive, "checksum"),
			Entries:  int(numberField(archive, "entries")),
		}
	}

	if target := fields["release"].GetStructValue(); target != nil {
		run.Release = &release.Target{
			ID:        int64(numberField(target, "id")),
			Tag:       stringField(target, "tag"),
			UploadURL: stringField(target, "upload_url"),
			HTMLURL:   stringField(target, "html_url"),
		}
	}

	if asset := fields["asset"].GetStructValue(); asset != nil {
		run.Asset = &release.Asset{
			ID:          int64(numberField(asset, "id")),
			Name:        stringField(asset, "name"),
			ContentType: stringField(asset, "content_type"),
			Size:        int64(numberField(asset, "size")),
			DownloadURL: stringField(asset, "download_url"),
		}
	}

	return run, nil
}

func stringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func numberField(s *structpb.Struct, key string) float64 {
	return s.GetFields()[key].GetNumberValue()
}

// formatTime renders t as RFC 3339; the zero time is empty.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value *structpb.Value) (time.Time, error) {
	raw := value.GetStringValue()
	if raw == "" {
		return time.Time{}, nil
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", raw, err)
	}

	return t, nil
}
