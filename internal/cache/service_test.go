package cache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmined/syftcache/internal/blob"
)

type fakeObject struct {
	etag string
	data []byte
}

// fakeClient is an in-memory blob.Client that counts calls per operation.
type fakeClient struct {
	mu        sync.Mutex
	objects   map[string]*fakeObject
	listCalls int
	headCalls int
	getCalls  int
}

func newFakeClient() *fakeClient {
	return &fakeClient{objects: make(map[string]*fakeObject)}
}

func (f *fakeClient) put(key, etag string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = &fakeObject{etag: etag, data: data}
}

func (f *fakeClient) ListObjects(_ context.Context, prefix string) ([]*blob.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++

	var infos []*blob.ObjectInfo
	for key, obj := range f.objects {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, &blob.ObjectInfo{
				Key:  key,
				ETag: obj.etag,
				Size: int64(len(obj.data)),
			})
		}
	}
	return infos, nil
}

func (f *fakeClient) HeadObject(_ context.Context, key string) (*blob.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headCalls++

	obj, ok := f.objects[key]
	if !ok {
		return nil, nil
	}
	return &blob.ObjectInfo{Key: key, ETag: obj.etag, Size: int64(len(obj.data))}, nil
}

func (f *fakeClient) GetObject(_ context.Context, key string) (*blob.GetObjectResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++

	obj, ok := f.objects[key]
	if !ok {
		return nil, errors.New("no such key: " + key)
	}
	return &blob.GetObjectResponse{
		Body: io.NopCloser(bytes.NewReader(obj.data)),
		ETag: obj.etag,
		Size: int64(len(obj.data)),
	}, nil
}

var _ blob.Client = (*fakeClient)(nil)

func testManifest(names ...string) *Manifest {
	m := &Manifest{Folder: "configs/app"}
	for _, name := range names {
		m.Resources = append(m.Resources, Resource{Name: name})
	}
	return m
}

func seedClient(fc *fakeClient, m *Manifest) {
	for i, res := range m.Resources {
		etag := "etag-" + res.Name
		data := []byte(`{"id":` + string(rune('0'+i)) + `,"name":"` + res.Name + `"}`)
		fc.put(path.Join(m.Folder, res.Name), etag, data)
	}
}

func newTestService(t *testing.T, fc *fakeClient, opts ...Option) *Service {
	t.Helper()
	svc, err := New(fc, t.TempDir(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestFirstRunFetchesAll(t *testing.T) {
	m := testManifest("a.json", "b.json", "c.json")
	fc := newFakeClient()
	seedClient(fc, m)

	svc := newTestService(t, fc)
	require.NoError(t, svc.Synchronize(context.Background(), m))

	assert.Equal(t, 3, fc.getCalls)
	assert.Len(t, svc.Entries(), 3)

	for _, res := range m.Resources {
		data, err := svc.GetRaw(res)
		require.NoError(t, err)
		assert.Equal(t, fc.objects[m.Key(res)].data, data)
	}
}

func TestSecondPassIsIdempotent(t *testing.T) {
	m := testManifest("a.json", "b.json")
	fc := newFakeClient()
	seedClient(fc, m)

	svc := newTestService(t, fc)
	require.NoError(t, svc.Synchronize(context.Background(), m))
	before, err := svc.GetRaw(m.Resources[0])
	require.NoError(t, err)

	require.NoError(t, svc.Synchronize(context.Background(), m))

	// second pass costs one listing and zero content fetches
	assert.Equal(t, 2, fc.getCalls)
	assert.Equal(t, 2, fc.listCalls)

	after, err := svc.GetRaw(m.Resources[0])
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestChangedTagRefetchesOnlyThatResource(t *testing.T) {
	m := testManifest("a.json", "b.json", "c.json")
	fc := newFakeClient()
	seedClient(fc, m)

	svc := newTestService(t, fc)
	require.NoError(t, svc.Synchronize(context.Background(), m))
	require.Equal(t, 3, fc.getCalls)

	updated := []byte(`{"id":0,"name":"a.json","v":2}`)
	fc.put(m.Key(m.Resources[0]), "etag-a2", updated)

	require.NoError(t, svc.Synchronize(context.Background(), m))
	assert.Equal(t, 4, fc.getCalls)

	data, err := svc.GetRaw(m.Resources[0])
	require.NoError(t, err)
	assert.Equal(t, updated, data)

	tag, ok := svc.journal.Get("a.json")
	require.True(t, ok)
	assert.Equal(t, "etag-a2", tag)
}

func TestGetRawBeforeSyncNotCached(t *testing.T) {
	svc := newTestService(t, newFakeClient())

	_, err := svc.GetRaw(Resource{Name: "a.json"})
	assert.ErrorIs(t, err, ErrNotCached)

	_, err = Decoded[map[string]any](svc, Resource{Name: "a.json"})
	assert.ErrorIs(t, err, ErrNotCached)
}

func TestContentTooLargeFailsOnlyThatResource(t *testing.T) {
	m := testManifest("small.json", "huge.json")
	fc := newFakeClient()
	fc.put(m.Key(m.Resources[0]), "etag-s", []byte(`{"ok":true}`))
	fc.put(m.Key(m.Resources[1]), "etag-h", bytes.Repeat([]byte("x"), 64))

	svc := newTestService(t, fc, WithMaxObjectSize(32))
	err := svc.Synchronize(context.Background(), m)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrContentTooLarge)

	// the small resource is cached despite the failure
	data, err := svc.GetRaw(m.Resources[0])
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"ok":true}`), data)

	_, err = svc.GetRaw(m.Resources[1])
	assert.ErrorIs(t, err, ErrNotCached)
}

func TestMissingRemoteSilentlySkipped(t *testing.T) {
	m := testManifest("present.json", "absent.json")
	fc := newFakeClient()
	fc.put(m.Key(m.Resources[0]), "etag-p", []byte(`{}`))

	svc := newTestService(t, fc)
	require.NoError(t, svc.Synchronize(context.Background(), m))

	_, err := svc.GetRaw(m.Resources[0])
	assert.NoError(t, err)
	_, err = svc.GetRaw(m.Resources[1])
	assert.ErrorIs(t, err, ErrNotCached)
}

func TestStrictModeReportsMissing(t *testing.T) {
	m := testManifest("present.json", "absent.json")
	fc := newFakeClient()
	fc.put(m.Key(m.Resources[0]), "etag-p", []byte(`{}`))

	svc := newTestService(t, fc, WithStrict(true))
	err := svc.Synchronize(context.Background(), m)
	assert.ErrorIs(t, err, ErrResourceMissing)

	// present resource still cached
	_, err = svc.GetRaw(m.Resources[0])
	assert.NoError(t, err)
}

func TestHeadStrategyMatchesListStrategy(t *testing.T) {
	m := testManifest("a.json", "b.json")
	fc := newFakeClient()
	seedClient(fc, m)

	svc := newTestService(t, fc, WithStrategy(StrategyHead))
	require.NoError(t, svc.Synchronize(context.Background(), m))

	assert.Equal(t, 0, fc.listCalls)
	assert.Equal(t, 2, fc.headCalls)
	assert.Equal(t, 2, fc.getCalls)

	// unchanged tags: head again, fetch nothing
	require.NoError(t, svc.Synchronize(context.Background(), m))
	assert.Equal(t, 4, fc.headCalls)
	assert.Equal(t, 2, fc.getCalls)
}

func TestDuplicateResourceName(t *testing.T) {
	m := testManifest("a.json", "a.json")
	svc := newTestService(t, newFakeClient())

	err := svc.Synchronize(context.Background(), m)
	assert.ErrorIs(t, err, ErrDuplicateResource)
}

func TestJournalSurvivesRestart(t *testing.T) {
	m := testManifest("a.json")
	fc := newFakeClient()
	seedClient(fc, m)

	dir := t.TempDir()

	svc, err := New(fc, dir)
	require.NoError(t, err)
	require.NoError(t, svc.Synchronize(context.Background(), m))
	require.NoError(t, svc.Close())
	require.Equal(t, 1, fc.getCalls)

	// a new service over the same dir revalidates without refetching
	svc2, err := New(fc, dir)
	require.NoError(t, err)
	defer svc2.Close()
	require.NoError(t, svc2.Synchronize(context.Background(), m))
	assert.Equal(t, 1, fc.getCalls)
}

type appConfig struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func TestDecodedRoundTrip(t *testing.T) {
	m := testManifest("a.json")
	fc := newFakeClient()
	seedClient(fc, m)

	svc := newTestService(t, fc)
	require.NoError(t, svc.Synchronize(context.Background(), m))

	raw, err := svc.GetRaw(m.Resources[0])
	require.NoError(t, err)

	var want appConfig
	require.NoError(t, json.Unmarshal(raw, &want))

	got, err := Decoded[appConfig](svc, m.Resources[0])
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// memoized second read returns the same value
	again, err := Decoded[appConfig](svc, m.Resources[0])
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestDecodedBadShape(t *testing.T) {
	m := testManifest("a.json")
	fc := newFakeClient()
	fc.put(m.Key(m.Resources[0]), "etag-a", []byte(`not json at all`))

	svc := newTestService(t, fc)
	require.NoError(t, svc.Synchronize(context.Background(), m))

	_, err := Decoded[appConfig](svc, m.Resources[0])
	assert.ErrorIs(t, err, ErrDecode)

	// decode failure does not evict the raw bytes
	raw, rawErr := svc.GetRaw(m.Resources[0])
	require.NoError(t, rawErr)
	assert.Equal(t, []byte(`not json at all`), raw)
}

func TestConcurrentReadsDuringSync(t *testing.T) {
	m := testManifest("a.json", "b.json", "c.json", "d.json")
	fc := newFakeClient()
	seedClient(fc, m)

	svc := newTestService(t, fc)
	require.NoError(t, svc.Synchronize(context.Background(), m))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				data, err := svc.GetRaw(m.Resources[0])
				assert.NoError(t, err)
				assert.NotEmpty(t, data)
			}
		}()
	}
	for range 3 {
		assert.NoError(t, svc.Synchronize(context.Background(), m))
	}
	wg.Wait()
}
