package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/erp/tools/acctest/internal/config"
	"github.com/example/erp/tools/acctest/internal/runner"
	"github.com/example/erp/tools/acctest/internal/sheet"
)

func testResult() runner.TabResult {
	return runner.TabResult{
		Tab:    "Customers",
		Source: "customers.json",
		Table: &sheet.Table{
			Name:    "Customers",
			Columns: []string{"INPUTS::CUSTOMER::CODE", "OUTPUTS::CUSTOMER::STATUS"},
			Rows: [][]string{
				{"C-1", "ACTIVE"},
				{"C-2", "INACTIVE"},
			},
		},
		Outcomes: []runner.Outcome{
			{Row: 1, Status: runner.StatusSuccess},
			{Row: 2, Status: runner.StatusFail, Comment: "Value from Test case: INACTIVE and value from result: ACTIVE do not match!"},
		},
		Duration: 1500 * time.Millisecond,
	}
}

func readCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, testResult()))

	rows := readCSV(t, buf.Bytes())
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"INPUTS::CUSTOMER::CODE", "OUTPUTS::CUSTOMER::STATUS", StatusColumn, CommentsColumn}, rows[0])
	assert.Equal(t, []string{"C-1", "ACTIVE", "SUCCESS", ""}, rows[1])
	assert.Equal(t, "FAIL", rows[2][2])
	assert.Contains(t, rows[2][3], "do not match!")
}

func TestWriteCSV_MissingOutcomeDefaultsToFail(t *testing.T) {
	result := testResult()
	result.Outcomes = result.Outcomes[:1]

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, result))

	rows := readCSV(t, buf.Bytes())
	assert.Equal(t, []string{"C-2", "INACTIVE", "FAIL", ""}, rows[2])
}

func TestWriteCSV_MultilineComment(t *testing.T) {
	result := testResult()
	result.Outcomes[1].Comment = "Exception encountered while processing the test case, row -- 2 ||| Sequence -- 1 ||| Entity -- CUSTOMER\nException details: boom"

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, result))

	rows := readCSV(t, buf.Bytes())
	assert.Equal(t, result.Outcomes[1].Comment, rows[2][3])
}

func TestWriteCSV_NoTable(t *testing.T) {
	err := WriteCSV(io.Discard, runner.TabResult{Tab: "Customers"})
	assert.ErrorIs(t, err, ErrNoTable)
}

func TestOutputFileName(t *testing.T) {
	assert.Equal(t, "Customers_output.csv", OutputFileName("Customers"))
}

func TestTabWriter(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "outputs")
	sink, err := NewDirSink(dir)
	require.NoError(t, err)

	require.NoError(t, TabWriter(sink)(context.Background(), testResult()))

	data, err := os.ReadFile(filepath.Join(dir, "Customers_output.csv"))
	require.NoError(t, err)
	assert.Len(t, readCSV(t, data), 3)

	err = TabWriter(sink)(context.Background(), runner.TabResult{Tab: "Orders"})
	assert.ErrorIs(t, err, ErrNoTable)
}

func TestDirSink_StaysInsideDir(t *testing.T) {
	dir := t.TempDir()
	sink := &DirSink{Dir: dir}

	require.NoError(t, sink.Put(context.Background(), "../escape.csv", []byte("x")))

	_, err := os.Stat(filepath.Join(dir, "escape.csv"))
	assert.NoError(t, err)
}

type fakePutter struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	err     error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = make(map[string][]byte)
		f.types = make(map[string]string)
	}
	key := *in.Bucket + "/" + *in.Key
	f.objects[key] = data
	f.types[key] = *in.ContentType
	return &s3.PutObjectOutput{}, nil
}

func TestS3Sink(t *testing.T) {
	fake := &fakePutter{}
	sink, err := NewS3Sink(context.Background(), config.S3Config{Bucket: "results", Prefix: "/acctest/"}, "run-1", WithS3Client(fake))
	require.NoError(t, err)

	assert.Equal(t, "acctest/run-1/Customers_output.csv", sink.Key("Customers_output.csv"))
	assert.Equal(t, "s3://results/acctest/run-1", sink.String())

	require.NoError(t, sink.Put(context.Background(), "Customers_output.csv", []byte("a,b\n")))
	require.NoError(t, sink.Put(context.Background(), SummaryFileName, []byte("{}")))

	assert.Equal(t, []byte("a,b\n"), fake.objects["results/acctest/run-1/Customers_output.csv"])
	assert.Equal(t, "text/csv", fake.types["results/acctest/run-1/Customers_output.csv"])
	assert.Equal(t, "application/json", fake.types["results/acctest/run-1/summary.json"])
}

func TestS3Sink_Error(t *testing.T) {
	fake := &fakePutter{err: errors.New("access denied")}
	sink, err := NewS3Sink(context.Background(), config.S3Config{Bucket: "results"}, "run-1", WithS3Client(fake))
	require.NoError(t, err)

	err = sink.Put(context.Background(), "x.csv", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://results/run-1/x.csv")
	assert.Contains(t, err.Error(), "access denied")
}

func TestNewS3Sink_MissingBucket(t *testing.T) {
	_, err := NewS3Sink(context.Background(), config.S3Config{}, "run-1")
	assert.ErrorIs(t, err, ErrMissingBucket)
}

func TestNewS3Sink_StaticCredentials(t *testing.T) {
	sink, err := NewS3Sink(context.Background(), config.S3Config{
		Bucket:       "results",
		Endpoint:     "localhost:9000",
		AccessKey:    "key",
		SecretKey:    "secret",
		UsePathStyle: true,
	}, "run-1")
	require.NoError(t, err)
	assert.NotNil(t, sink.client)
}

func TestMultiSink(t *testing.T) {
	dir := t.TempDir()
	good := &DirSink{Dir: dir}
	fake := &fakePutter{}
	s3sink, err := NewS3Sink(context.Background(), config.S3Config{Bucket: "results"}, "run-1", WithS3Client(fake))
	require.NoError(t, err)

	multi := MultiSink{good, s3sink}
	require.NoError(t, multi.Put(context.Background(), "a.csv", []byte("x")))
	assert.FileExists(t, filepath.Join(dir, "a.csv"))
	assert.Contains(t, fake.objects, "results/run-1/a.csv")

	failing, err := NewS3Sink(context.Background(), config.S3Config{Bucket: "results"}, "run-1",
		WithS3Client(&fakePutter{err: errors.New("offline")}))
	require.NoError(t, err)

	multi = MultiSink{failing, good}
	err = multi.Put(context.Background(), "b.csv", []byte("y"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "offline")
	assert.FileExists(t, filepath.Join(dir, "b.csv"), "later sinks still run")
}

func TestNewSummary(t *testing.T) {
	results := []runner.TabResult{
		testResult(),
		{Tab: "Orders", Source: "orders.json", Err: errors.New("sheet: sheet not found")},
	}

	s := NewSummary("run-1", "http://localhost:8080", results)

	assert.Equal(t, "run-1", s.Metadata.RunID)
	assert.Equal(t, Version, s.Metadata.Version)
	assert.Equal(t, "acctest", s.Metadata.Generator)
	assert.False(t, s.Metadata.GeneratedAt.IsZero())

	assert.Equal(t, Totals{Tabs: 2, FailedTabs: 1, Cases: 2, Passed: 1, Failed: 1}, s.Totals)
	require.Len(t, s.Tabs, 2)
	assert.Equal(t, "Customers_output.csv", s.Tabs[0].Output)
	assert.Equal(t, "sheet: sheet not found", s.Tabs[1].Error)
	assert.Empty(t, s.Tabs[1].Output)
	assert.NotNil(t, s.Tabs[1].Rows)
	assert.False(t, s.OK())

	assert.True(t, NewSummary("run-2", "", []runner.TabResult{{Tab: "Empty", Table: &sheet.Table{}}}).OK())
}

func TestSummary_WriteToFile(t *testing.T) {
	s := NewSummary("run-1", "", []runner.TabResult{testResult()})
	tmpDir := t.TempDir()

	t.Run("simple path", func(t *testing.T) {
		path, err := s.WriteToFile(filepath.Join(tmpDir, "summary.json"))
		require.NoError(t, err)

		data, err := os.ReadFile(path)
		require.NoError(t, err)

		var parsed Summary
		require.NoError(t, json.Unmarshal(data, &parsed))
		assert.Equal(t, s.Totals, parsed.Totals)
		assert.Equal(t, 1500*time.Millisecond, parsed.Tabs[0].Duration.Duration)
		assert.Equal(t, runner.StatusFail, parsed.Tabs[0].Rows[1].Status)
	})

	t.Run("templates", func(t *testing.T) {
		path, err := s.WriteToFile(filepath.Join(tmpDir, "nested", "{{.RunID}}-{{.Date}}.json"))
		require.NoError(t, err)
		assert.Regexp(t, `run-1-\d{4}-\d{2}-\d{2}\.json$`, path)
		assert.FileExists(t, path)
	})
}

func TestExpandPathTemplate(t *testing.T) {
	assert.Equal(t, "path/to/file.json", expandPathTemplate("path/to/file.json", "r"))
	assert.Regexp(t, `results/\d{8}-\d{6}\.json`, expandPathTemplate("results/{{.Timestamp}}.json", "r"))
	assert.Equal(t, "results/abc/summary.json", expandPathTemplate("results/{{.RunID}}/summary.json", "abc"))
}

func TestDuration_MarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		contains []string
	}{
		{"seconds only", 30 * time.Second, []string{`"seconds":30`, `"display":"30.0s"`}},
		{"minutes and seconds", 5*time.Minute + 30*time.Second, []string{`"seconds":330`, `"display":"5m30s"`}},
		{"hours and minutes", 2*time.Hour + 15*time.Minute, []string{`"seconds":8100`, `"display":"2h15m"`}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data, err := json.Marshal(Duration{tc.duration})
			require.NoError(t, err)
			for _, c := range tc.contains {
				assert.Contains(t, string(data), c)
			}
		})
	}
}

func TestConsole_PrintSummary(t *testing.T) {
	s := NewSummary("run-1", "", []runner.TabResult{
		testResult(),
		{Tab: "Orders", Err: errors.New("sheet: sheet not found")},
	})

	var buf bytes.Buffer
	NewConsole(&buf, false).PrintSummary(s)
	out := buf.String()

	assert.Contains(t, out, "Run ID: run-1")
	assert.Contains(t, out, "Customers")
	assert.Contains(t, out, "ERROR: sheet: sheet not found")
	assert.Contains(t, out, "1 tab(s) could not be processed")
	assert.NotContains(t, out, "\033[")

	lines := strings.Split(out, "\n")
	var total string
	for _, l := range lines {
		if strings.Contains(l, "Total") {
			total = l
		}
	}
	assert.Equal(t, []string{"Total", "2", "1", "1"}, strings.Fields(total))

	buf.Reset()
	NewConsole(&buf, true).PrintSummary(s)
	assert.Contains(t, buf.String(), colorGreen)
}
