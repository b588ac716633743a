package backup

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dianbiao-backend/config"
	"dianbiao-backend/internal/model"
	"dianbiao-backend/internal/store"
)

type fakeDumper struct {
	dump *store.Dump
	err  error
}

func (f fakeDumper) Dump(ctx context.Context) (*store.Dump, error) { return f.dump, f.err }

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3.PutObjectOutput{}, nil
}

func sampleDump() *store.Dump {
	return &store.Dump{
		TakenAt:  time.Date(2024, 3, 3, 2, 0, 0, 0, time.UTC),
		Areas:    []model.Area{{ID: 1, Name: "A"}},
		Devices:  []model.Device{{ID: 1, Code: "M-1", AreaID: 1}},
		Readings: []model.Reading{{ID: 1, DeviceID: 1, Value: 10}, {ID: 2, DeviceID: 1, Value: 12}},
	}
}

func TestSnapshot_DirUploader(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	res, err := Snapshot(context.Background(), fakeDumper{dump: sampleDump()}, NewDirUploader(dir))
	require.NoError(t, err)

	assert.Equal(t, 1, res.Devices)
	assert.Equal(t, 2, res.Readings)
	assert.Regexp(t, `^dianbiao-20240303T020000Z-[0-9a-f]{8}\.json$`, res.Key)

	raw, err := os.ReadFile(filepath.Join(dir, res.Key))
	require.NoError(t, err)
	var got store.Dump
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Len(t, got.Readings, 2)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file is renamed away")
}

func TestSnapshot_DumpError(t *testing.T) {
	_, err := Snapshot(context.Background(), fakeDumper{err: errors.New("db down")}, NewDirUploader(t.TempDir()))
	assert.ErrorContains(t, err, "db down")
}

func TestS3Uploader(t *testing.T) {
	putter := &fakePutter{}
	u := NewS3UploaderWithAPI(putter, "meters", "backups/weekly")
	require.NoError(t, u.Upload(context.Background(), "snap.json", []byte(`{"ok":true}`)))

	assert.Equal(t, "meters", aws.ToString(putter.input.Bucket))
	assert.Equal(t, "backups/weekly/snap.json", aws.ToString(putter.input.Key))
	assert.Equal(t, "application/json", aws.ToString(putter.input.ContentType))
	assert.JSONEq(t, `{"ok":true}`, string(putter.body))
}

func TestNew(t *testing.T) {
	u, err := New(context.Background(), config.BackupConfig{Target: "dir", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &DirUploader{}, u)

	_, err = New(context.Background(), config.BackupConfig{Target: "ftp"})
	assert.Error(t, err)

	_, err = New(context.Background(), config.BackupConfig{Target: "s3"})
	assert.ErrorContains(t, err, "s3_bucket")
}
